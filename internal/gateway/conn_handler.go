package gateway

import (
	"context"
	"errors"
	"io"
	"net"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/connection"
	"github.com/taoyao-code/edlink/internal/pipeline"
	"github.com/taoyao-code/edlink/internal/tcpserver"
)

// HostDeps host 侧连接处理所需的协作方
type HostDeps struct {
	Protocol  cfgpkg.ProtocolConfig
	Logger    *zap.Logger
	Recorder  connection.Recorder
	Identity  connection.IdentityProvider
	Registers connection.RegisterAccess
	Sampler   connection.ChannelSampler
}

// NewConnHandler 构建 TCP 连接处理器：每个连接一个 host 角色的 Conn，
// 循环 接收 -> 分发 -> 回写，传输错误或关闭时记录原因并退出（由 tcpserver 关闭连接）
func NewConnHandler(deps HostDeps) tcpserver.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, cc *tcpserver.ConnContext) {
		log := logger.With(zap.Uint64("tcp_conn", cc.ID()), zap.String("remote_addr", cc.RemoteAddr().String()))

		pipe, err := pipeline.Build(deps.Protocol.Pipeline, pipeline.Options{
			Logger:    log,
			ZstdLevel: deps.Protocol.ZstdLevel,
			ChunkMax:  deps.Protocol.ChunkMax,
		})
		if err != nil {
			log.Error("build pipeline failed", zap.Error(err))
			return
		}
		defer pipe.Close()

		opts := []connection.Option{
			connection.WithPipeline(pipe),
			connection.WithLogger(log),
			connection.WithMaxBuffered(deps.Protocol.MaxFrameBuffer),
			connection.WithReadSize(deps.Protocol.ReadSize),
		}
		if deps.Recorder != nil {
			opts = append(opts, connection.WithRecorder(deps.Recorder))
		}
		if deps.Identity != nil {
			opts = append(opts, connection.WithIdentity(deps.Identity))
		}
		if deps.Registers != nil {
			opts = append(opts, connection.WithRegisters(deps.Registers))
		}
		if deps.Sampler != nil {
			opts = append(opts, connection.WithSampler(deps.Sampler))
		}
		conn := connection.New(cc, connection.RoleHost, opts...)

		err = conn.Serve(ctx)
		switch {
		case ctx.Err() != nil:
			log.Info("connection stopped by shutdown", zap.String("conn_id", conn.ID()))
		case errors.Is(err, net.ErrClosed):
			// 监听端主动关闭：新的调试端接管了会话
			log.Info("debug session taken over", zap.String("conn_id", conn.ID()))
		case errors.Is(err, io.EOF):
			log.Info("debugger disconnected", zap.String("conn_id", conn.ID()))
		default:
			log.Warn("connection terminated", zap.String("conn_id", conn.ID()), zap.Error(err))
		}
	}
}
