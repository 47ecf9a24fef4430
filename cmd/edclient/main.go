package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/connection"
	"github.com/taoyao-code/edlink/internal/logging"
	"github.com/taoyao-code/edlink/internal/pipeline"
	"github.com/taoyao-code/edlink/internal/protocol/ed"
	"github.com/taoyao-code/edlink/internal/transport"
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "config file (default configs/edlink.yaml or $EDLINK_CONFIG)")
		addr       = pflag.String("addr", "", "host address, overrides client.addr")
		serialName = pflag.String("serial", "", "serial device, switches transport to serial")
		info       = pflag.Bool("info", false, "query device info")
		writes     = pflag.StringArrayP("write", "w", nil, "write register, OFFSET:HEXDATA[:CTRL] (repeatable)")
		trace      = pflag.String("trace", "", "read channel data: off|continuous|oneshot")
		samples    = pflag.Int("samples", 1, "number of channel samples with --trace")
		watch      = pflag.Bool("watch", false, "keep receiving until interrupted")
		timeout    = pflag.Duration("timeout", 5*time.Second, "per-request timeout")
	)
	pflag.Parse()

	cfg, err := cfgpkg.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Client.Addr = *addr
	}
	if *serialName != "" {
		cfg.Client.Transport = "serial"
		cfg.Client.Serial.Name = *serialName
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "init logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)
	log := zap.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reqs, err := buildRequests(*info, *writes, *trace, *samples)
	if err != nil {
		log.Fatal("invalid arguments", zap.Error(err))
	}

	if err := run(ctx, cfg, log, reqs, *watch, *timeout); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("edclient failed", zap.Error(err))
		stop()
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger, reqs []ed.Payload, watch bool, timeout time.Duration) error {
	link, err := transport.Open(ctx, cfg.Client)
	if err != nil {
		return err
	}
	defer link.Close()

	pipe, err := pipeline.Build(cfg.Protocol.Pipeline, pipeline.Options{
		Logger:    log,
		ZstdLevel: cfg.Protocol.ZstdLevel,
		ChunkMax:  cfg.Protocol.ChunkMax,
	})
	if err != nil {
		return err
	}
	defer pipe.Close()

	conn := connection.New(link, connection.RoleClient,
		connection.WithPipeline(pipe),
		connection.WithLogger(log),
		connection.WithAddress(cfg.Protocol.Unit, cfg.Protocol.Session),
		connection.WithMaxBuffered(cfg.Protocol.MaxFrameBuffer),
		connection.WithReadSize(cfg.Protocol.ReadSize),
	)

	// 先查询版本，再执行命令行请求
	for _, p := range append([]ed.Payload{&ed.GetVersionRequest{}}, reqs...) {
		rctx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := conn.Request(rctx, p)
		cancel()
		if err != nil {
			return fmt.Errorf("%s: %w", p.Command(), err)
		}
		if wr, ok := resp.Payload.(*ed.WriteRegisterResponse); ok && wr.Result != ed.WriteOK {
			log.Warn("register write rejected", zap.Stringer("result", wr.Result))
		}
	}

	if !watch {
		return nil
	}
	// 持续接收：帧错误记录后继续，传输错误退出
	for ctx.Err() == nil {
		content, err := conn.ReceivePacket()
		if err != nil {
			if errors.Is(err, connection.ErrTransportRead) {
				return err
			}
			continue
		}
		if content != nil {
			_, _ = conn.Dispatch(ctx, content)
		}
	}
	return ctx.Err()
}
