package tcpserver

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
)

// Handler 连接处理函数，返回即关闭连接
type Handler func(ctx context.Context, cc *ConnContext)

// Server 调试链路 TCP 监听端
type Server struct {
	cfg        cfgpkg.TCPConfig
	ln         net.Listener
	wg         sync.WaitGroup
	stopC      chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	handler    Handler
	logger     *zap.Logger
	sessions   *sessionTable
	nextConnID atomic.Uint64

	// 可选指标回调
	onRecvBytes func(n int)
	onSentBytes func(n int)
}

// New 创建 TCP 监听端
func New(cfg cfgpkg.TCPConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		stopC:    make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		sessions: newSessionTable(cfg),
	}
}

// SetHandler 设置连接处理函数
func (s *Server) SetHandler(h Handler) { s.handler = h }

// SetMetricsCallbacks 设置字节计数回调；会话相关指标通过 Stats 采集
func (s *Server) SetMetricsCallbacks(onRecvBytes, onSentBytes func(int)) {
	s.onRecvBytes, s.onSentBytes = onRecvBytes, onSentBytes
}

// Start 监听并接受连接（非阻塞，内部 goroutine）
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.logger.Info("tcp listening", zap.String("addr", ln.Addr().String()),
		zap.Int("max_sessions", s.sessions.max), zap.String("on_busy", string(s.sessions.policy)))

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr 返回实际监听地址（端口为 0 时由系统分配）
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.stopC:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// 短暂错误等待后重试
			s.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}

		cc := newConnContext(s, conn)
		evicted, err := s.sessions.admit(cc)
		if err != nil {
			s.logger.Warn("connection rejected", zap.Uint64("conn", cc.ID()),
				zap.String("remote_addr", cc.RemoteAddr().String()), zap.String("reason", rejectReason(err)))
			_ = cc.Close()
			continue
		}
		if evicted != nil {
			s.logger.Warn("debug session taken over",
				zap.Uint64("conn", evicted.ID()), zap.String("remote_addr", evicted.RemoteAddr().String()),
				zap.Uint64("by_conn", cc.ID()), zap.String("by_remote_addr", cc.RemoteAddr().String()))
			_ = evicted.Close()
		}

		s.wg.Add(1)
		go s.serve(cc)
	}
}

func (s *Server) serve(cc *ConnContext) {
	defer s.wg.Done()
	defer s.sessions.remove(cc)
	defer cc.Close()

	s.logger.Info("connection accepted", zap.Uint64("conn", cc.ID()), zap.String("remote_addr", cc.RemoteAddr().String()))
	if s.handler != nil {
		s.handler(s.ctx, cc)
	}
	s.logger.Info("connection closed", zap.Uint64("conn", cc.ID()), zap.String("remote_addr", cc.RemoteAddr().String()))
}

// Stats 调试会话统计
func (s *Server) Stats() SessionStats { return s.sessions.stats() }

// Shutdown 停止接入并关闭全部在线会话，等待处理函数退出
// 关闭连接使阻塞中的 Read 立即返回，与 readTimeout 配置无关
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.stopC:
	default:
		close(s.stopC)
	}
	s.cancel()
	if s.ln != nil {
		_ = s.ln.Close()
	}
	for _, cc := range s.sessions.drain() {
		_ = cc.Close()
	}

	ch := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(ch)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}
