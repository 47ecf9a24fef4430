package httpserver

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/health"
	"github.com/taoyao-code/edlink/internal/registers"
)

// RegisterReader 寄存器只读访问（调试查看用）
type RegisterReader interface {
	ReadRegister(ctx context.Context, offset uint32, n int) ([]byte, error)
}

// Options 可选路由
type Options struct {
	MetricsPath    string
	MetricsHandler http.Handler
	Ready          func() bool
	Health         *health.Aggregator // 设置后 /readyz 以其为准，并注册 /health 路由
	Stats          func() any         // GET /stats
	Registers      RegisterReader     // GET /registers/:offset/:len
}

// Server HTTP 服务封装
type Server struct {
	srv *http.Server
}

// maxRegisterRead 单次查看的最大字节数
const maxRegisterRead = 1024

// New 创建并配置 Gin + HTTP Server，注册健康检查、指标与运行状态路由
func New(cfg cfgpkg.HTTPConfig, opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/readyz", func(c *gin.Context) {
		ready := opts.Ready == nil || opts.Ready()
		if opts.Health != nil {
			ready = ready && opts.Health.Ready(c.Request.Context())
		}
		if ready {
			c.String(http.StatusOK, "ready")
			return
		}
		c.String(http.StatusServiceUnavailable, "not-ready")
	})
	if opts.Health != nil {
		health.RegisterHTTPRoutes(r, opts.Health)
	}
	metricsPath := opts.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if opts.MetricsHandler != nil {
		r.GET(metricsPath, gin.WrapH(opts.MetricsHandler))
	}
	if opts.Stats != nil {
		r.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, opts.Stats())
		})
	}
	if opts.Registers != nil {
		r.GET("/registers/:offset/:len", registersHandler(opts.Registers))
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return &Server{srv: srv}
}

func registersHandler(rr RegisterReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		offset, err := strconv.ParseUint(c.Param("offset"), 0, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
			return
		}
		n, err := strconv.Atoi(c.Param("len"))
		if err != nil || n <= 0 || n > maxRegisterRead {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid length"})
			return
		}
		data, err := rr.ReadRegister(c.Request.Context(), uint32(offset), n)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, registers.ErrOutOfRange) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"offset": offset, "len": n, "data": hex.EncodeToString(data)})
	}
}

// Start 启动 HTTP 服务（阻塞）
func (s *Server) Start() error {
	return s.srv.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
