package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/device"
	"github.com/taoyao-code/edlink/internal/gateway"
	"github.com/taoyao-code/edlink/internal/health"
	"github.com/taoyao-code/edlink/internal/httpserver"
	"github.com/taoyao-code/edlink/internal/logging"
	"github.com/taoyao-code/edlink/internal/metrics"
	"github.com/taoyao-code/edlink/internal/observe"
	"github.com/taoyao-code/edlink/internal/registers"
	"github.com/taoyao-code/edlink/internal/tcpserver"
)

// hostStats /stats 输出
type hostStats struct {
	Sessions tcpserver.SessionStats  `json:"sessions"`
	Breaker  *registers.BreakerStats `json:"register_breaker,omitempty"`
}

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (default configs/edlink.yaml or $EDLINK_CONFIG)")
	pflag.Parse()

	// 1) 加载配置
	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		panic(err)
	}

	// 2) 初始化日志
	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3) 指标注册与处理器
	reg := metrics.NewRegistry()
	appm := metrics.NewAppMetrics(reg)

	// 4) 设备身份与采样
	identity, err := loadIdentity(cfg.Device)
	if err != nil {
		log.Fatal("device identity", zap.Error(err))
	}
	sampler := device.NewSampler(identity.DeviceInfo().Channels)

	// 5) 寄存器存储
	backend, err := openRegisters(ctx, cfg)
	if err != nil {
		log.Fatal("register store", zap.Error(err))
	}
	defer backend.close()

	// 6) TCP 监听
	tcpSrv := tcpserver.New(cfg.TCP, log)
	tcpSrv.SetMetricsCallbacks(
		func(n int) { appm.TCPBytesReceived.Add(float64(n)) },
		func(n int) { appm.TCPBytesSent.Add(float64(n)) },
	)
	metrics.RegisterSessions(reg, tcpSrv)
	tcpSrv.SetHandler(gateway.NewConnHandler(gateway.HostDeps{
		Protocol:  cfg.Protocol,
		Logger:    log,
		Recorder:  observe.NewRecorder(log, appm),
		Identity:  identity,
		Registers: backend.store,
		Sampler:   sampler,
	}))

	// 7) 健康检查
	agg := health.NewAggregator(health.NewTCPChecker(tcpSrv))
	if backend.redis != nil {
		agg.AddChecker(health.NewRedisChecker(backend.redis))
	}
	if backend.breaker != nil {
		agg.AddChecker(health.NewBreakerChecker(backend.breaker))
	}

	// 8) HTTP 服务
	opts := httpserver.Options{
		MetricsPath: cfg.Metrics.Path,
		Health:      agg,
		Stats: func() any {
			st := hostStats{Sessions: tcpSrv.Stats()}
			if backend.breaker != nil {
				bs := backend.breaker.Stats()
				st.Breaker = &bs
			}
			return st
		},
		Registers: backend.store,
	}
	if cfg.Metrics.Enable {
		opts.MetricsHandler = metrics.Handler(reg)
	}
	httpSrv := httpserver.New(cfg.HTTP, opts)

	// 并行启动
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", zap.Error(err))
		}
	}()
	if err := tcpSrv.Start(); err != nil {
		log.Fatal("tcp server start error", zap.Error(err))
	}
	log.Info("edhost started",
		zap.String("tcp", tcpSrv.Addr().String()), zap.String("http", cfg.HTTP.Addr),
		zap.Strings("pipeline", cfg.Protocol.Pipeline), zap.String("registers", cfg.Registers.Backend))

	// 信号处理，优雅关闭
	<-ctx.Done()
	log.Info("shutting down")

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(sctx)
	if err := tcpSrv.Shutdown(sctx); err != nil {
		log.Warn("tcp shutdown", zap.Error(err))
	}
}

func loadIdentity(cfg cfgpkg.DeviceConfig) (*device.Identity, error) {
	p := device.DefaultProfile()
	if cfg.Profile != "" {
		var err error
		if p, err = device.LoadProfile(cfg.Profile); err != nil {
			return nil, err
		}
	} else if cfg.Channels > 0 {
		p.Channels = cfg.Channels
	}
	return p.Identity()
}

// registerBackend 寄存器后端及其附属资源
type registerBackend struct {
	store   registers.Store
	breaker *registers.CircuitBreaker // 仅 Redis 后端
	redis   *registers.RedisStore     // 仅 Redis 后端
}

func (b *registerBackend) close() {
	if b.redis != nil {
		_ = b.redis.Close()
	}
}

// openRegisters 按配置选择寄存器后端；Redis 后端加熔断保护
func openRegisters(ctx context.Context, cfg *cfgpkg.Config) (*registerBackend, error) {
	if cfg.Registers.Backend != "redis" {
		return &registerBackend{store: registers.NewMemoryStore(cfg.Registers.Size)}, nil
	}
	rs, err := registers.OpenRedis(ctx, cfg.Redis, cfg.Registers.Key, cfg.Registers.Size)
	if err != nil {
		return nil, err
	}
	cb := registers.NewCircuitBreaker(5, 10*time.Second)
	return &registerBackend{
		store:   registers.NewGuarded(rs, cb),
		breaker: cb,
		redis:   rs,
	}, nil
}
