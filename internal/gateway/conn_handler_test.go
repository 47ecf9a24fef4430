package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
	"github.com/taoyao-code/edlink/internal/connection"
	"github.com/taoyao-code/edlink/internal/device"
	"github.com/taoyao-code/edlink/internal/metrics"
	"github.com/taoyao-code/edlink/internal/observe"
	"github.com/taoyao-code/edlink/internal/pipeline"
	"github.com/taoyao-code/edlink/internal/protocol/ed"
	"github.com/taoyao-code/edlink/internal/registers"
	"github.com/taoyao-code/edlink/internal/tcpserver"
	"github.com/taoyao-code/edlink/internal/transport"
)

type hostFixture struct {
	srv     *tcpserver.Server
	regs    *registers.MemoryStore
	metrics *metrics.AppMetrics
}

func startHost(t *testing.T, stages []string, tune ...func(*cfgpkg.TCPConfig)) *hostFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	id, err := device.DefaultProfile().Identity()
	require.NoError(t, err)
	regs := registers.NewMemoryStore(256)
	m := metrics.NewAppMetrics(prometheus.NewRegistry())

	tcpCfg := cfgpkg.TCPConfig{
		Addr:         "127.0.0.1:0",
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: time.Second,
		MaxSessions:  4,
	}
	for _, f := range tune {
		f(&tcpCfg)
	}
	srv := tcpserver.New(tcpCfg, logger)
	srv.SetHandler(NewConnHandler(HostDeps{
		Protocol:  cfgpkg.ProtocolConfig{Pipeline: stages, ZstdLevel: 1},
		Logger:    logger,
		Recorder:  observe.NewRecorder(logger, m),
		Identity:  id,
		Registers: regs,
		Sampler:   device.NewSampler(4),
	}))
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return &hostFixture{srv: srv, regs: regs, metrics: m}
}

func dialClient(t *testing.T, addr string, stages []string) (*connection.Conn, *transport.TCP) {
	t.Helper()
	tr, err := transport.DialTCP(context.Background(), addr, time.Second, 50*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })

	pipe, err := pipeline.Build(stages, pipeline.Options{ZstdLevel: 1})
	require.NoError(t, err)
	return connection.New(tr, connection.RoleClient, connection.WithPipeline(pipe), connection.WithLogger(zaptest.NewLogger(t))), tr
}

func TestHostClientExchange(t *testing.T) {
	for name, stages := range map[string][]string{
		"无中间件":    nil,
		"lz4 压缩":  {"inspect", "lz4"},
		"zstd 压缩": {"zstd"},
	} {
		t.Run(name, func(t *testing.T) {
			host := startHost(t, stages)
			client, _ := dialClient(t, host.srv.Addr().String(), stages)

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			resp, err := client.Request(ctx, &ed.GetVersionRequest{})
			require.NoError(t, err)
			v := resp.Payload.(*ed.GetVersionResponse)
			assert.Equal(t, "Test", v.Name)
			assert.Equal(t, []byte{1, 2, 3, 4}, v.Serial)
			assert.Equal(t, ed.Version{Major: 2, Minor: 3, Patch: 1113}, v.App)

			resp, err = client.Request(ctx, &ed.WriteRegisterRequest{Offset: 10, Control: 0xF0, Data: []byte{1, 2, 3, 4}})
			require.NoError(t, err)
			assert.Equal(t, &ed.WriteRegisterResponse{Result: ed.WriteOK}, resp.Payload)

			got, err := host.regs.ReadRegister(ctx, 10, 4)
			require.NoError(t, err)
			assert.Equal(t, []byte{1, 2, 3, 4}, got)

			resp, err = client.Request(ctx, &ed.WriteRegisterRequest{Offset: 255, Data: []byte{1, 2}})
			require.NoError(t, err)
			assert.Equal(t, &ed.WriteRegisterResponse{Result: ed.WriteInvalidOffset}, resp.Payload)

			resp, err = client.Request(ctx, &ed.GetInfoRequest{})
			require.NoError(t, err)
			assert.Equal(t, uint8(4), resp.Payload.(*ed.GetInfoResponse).Channels)

			resp, err = client.Request(ctx, &ed.ReadChannelDataRequest{Mode: ed.TraceContinuous})
			require.NoError(t, err)
			assert.Equal(t, uint16(0x0F), resp.Payload.(*ed.ReadChannelDataResponse).Channels)

			assert.Equal(t, 2.0, testutil.ToFloat64(host.metrics.RegisterWrites.WithLabelValues("ok"))+
				testutil.ToFloat64(host.metrics.RegisterWrites.WithLabelValues("invalid_offset")))
		})
	}
}

func TestHostSurvivesCorruptFrame(t *testing.T) {
	host := startHost(t, nil)
	client, tr := dialClient(t, host.srv.Addr().String(), nil)

	// 校验和错误的 GetInfo 请求 + 噪声
	_, err := tr.Write([]byte{0xAA, 0x00, 0x55, 0x01, 0x01, 0x49, 0x00, 0xAA})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := client.Request(ctx, &ed.GetVersionRequest{})
	require.NoError(t, err)
	assert.Equal(t, ed.CmdGetVersion, resp.Command())

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(host.metrics.DecodeErrors.WithLabelValues("checksum")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSecondDebuggerTakesOver(t *testing.T) {
	host := startHost(t, nil, func(c *cfgpkg.TCPConfig) {
		c.MaxSessions = 1
		c.OnBusy = "takeover"
	})
	addr := host.srv.Addr().String()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first, _ := dialClient(t, addr, nil)
	_, err := first.Request(ctx, &ed.GetVersionRequest{})
	require.NoError(t, err)

	second, _ := dialClient(t, addr, nil)
	_, err = second.Request(ctx, &ed.GetVersionRequest{})
	require.NoError(t, err)

	// 旧调试端的连接已被关闭
	_, err = first.Request(ctx, &ed.GetInfoRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, connection.ErrTransportRead) || errors.Is(err, connection.ErrTransportWrite), "err=%v", err)

	st := host.srv.Stats()
	assert.Equal(t, 1, st.Active)
	assert.Equal(t, int64(1), st.Takeovers)
}

// 连续发出的请求在 TCP 上可能合并或拆分到达，压缩级需按块边界还原
func TestHostBurstOverCompressedStream(t *testing.T) {
	for _, stage := range []string{"lz4", "zstd"} {
		t.Run(stage, func(t *testing.T) {
			stages := []string{stage}
			host := startHost(t, stages)
			client, _ := dialClient(t, host.srv.Addr().String(), stages)

			const burst = 8
			for i := 0; i < burst; i++ {
				require.NoError(t, client.SendPacket(ed.Content{Unit: 1, Session: uint8(i), Payload: &ed.GetInfoRequest{}}))
			}

			var sessions []uint8
			deadline := time.Now().Add(5 * time.Second)
			for len(sessions) < burst && time.Now().Before(deadline) {
				content, err := client.ReceivePacket()
				require.NoError(t, err)
				if content != nil {
					sessions = append(sessions, content.Session)
				}
			}
			assert.Equal(t, []uint8{0, 1, 2, 3, 4, 5, 6, 7}, sessions)
		})
	}
}
