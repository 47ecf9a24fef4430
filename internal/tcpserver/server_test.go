package tcpserver

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	cfgpkg "github.com/taoyao-code/edlink/internal/config"
)

func testConfig() cfgpkg.TCPConfig {
	return cfgpkg.TCPConfig{
		Addr:         "127.0.0.1:0",
		ReadTimeout:  50 * time.Millisecond,
		WriteTimeout: time.Second,
		MaxSessions:  1,
		OnBusy:       "reject",
	}
}

// echoHandler 原样回写，读超时继续，ctx 结束或读错误时返回
func echoHandler(ctx context.Context, cc *ConnContext) {
	buf := make([]byte, 64)
	for ctx.Err() == nil {
		n, err := cc.Read(buf)
		if n > 0 {
			if _, werr := cc.Write(buf[:n]); werr != nil {
				return
			}
		}
		if err != nil && !isTimeout(err) {
			return
		}
	}
}

func startServer(t *testing.T, cfg cfgpkg.TCPConfig, h Handler) *Server {
	t.Helper()
	s := New(cfg, zaptest.NewLogger(t))
	s.SetHandler(h)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func TestServer_Echo(t *testing.T) {
	var recv, sent atomic.Int64
	s := New(testConfig(), zaptest.NewLogger(t))
	s.SetHandler(echoHandler)
	s.SetMetricsCallbacks(func(n int) { recv.Add(int64(n)) }, func(n int) { sent.Add(int64(n)) })
	require.NoError(t, s.Start())
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
	}()

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	msg := []byte{0x55, 0x01, 0x01, 0x49, 0xB5, 0xAA}
	_, err = c.Write(msg)
	require.NoError(t, err)

	got := make([]byte, len(msg))
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	assert.Equal(t, msg, got)

	assert.Equal(t, int64(1), s.Stats().Admitted)
	assert.Equal(t, int64(len(msg)), recv.Load())
	assert.Eventually(t, func() bool { return sent.Load() == int64(len(msg)) }, time.Second, 10*time.Millisecond)
}

// dialEchoed 建立连接并确认服务端已开始处理
func dialEchoed(t *testing.T, s *Server) net.Conn {
	t.Helper()
	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	_, err = c.Write([]byte{1})
	require.NoError(t, err)
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(c, make([]byte, 1))
	require.NoError(t, err)
	return c
}

// waitClosed 等待服务端关闭连接
func waitClosed(t *testing.T, c net.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := c.Read(make([]byte, 1))
	require.Error(t, err)
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		t.Fatal("连接未被服务端关闭")
	}
}

func TestServer_BusyReject(t *testing.T) {
	s := startServer(t, testConfig(), echoHandler)

	first := dialEchoed(t, s)

	second, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer second.Close()
	waitClosed(t, second)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Rejected[RejectBusy])
	assert.Equal(t, 1, st.Active)

	// 原会话不受影响
	_, err = first.Write([]byte{2})
	require.NoError(t, err)
	_, err = io.ReadFull(first, make([]byte, 1))
	assert.NoError(t, err)
}

func TestServer_Takeover(t *testing.T) {
	cfg := testConfig()
	cfg.OnBusy = "takeover"
	s := startServer(t, cfg, echoHandler)

	first := dialEchoed(t, s)
	second := dialEchoed(t, s)
	waitClosed(t, first)

	assert.Eventually(t, func() bool {
		st := s.Stats()
		return st.Active == 1 && st.Takeovers == 1
	}, time.Second, 10*time.Millisecond)
	st := s.Stats()
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, second.LocalAddr().String(), st.Sessions[0].RemoteAddr)
}

func TestServer_AcceptRate(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessions = 4
	cfg.AcceptRate = 0.001
	cfg.AcceptBurst = 1
	s := startServer(t, cfg, echoHandler)

	dialEchoed(t, s)
	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	waitClosed(t, c)

	st := s.Stats()
	assert.Equal(t, int64(1), st.Rejected[RejectRate])
	assert.InDelta(t, 0.001, st.AcceptRate, 1e-9)
}

func TestServer_IdleTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.IdleTimeout = 100 * time.Millisecond

	errC := make(chan error, 1)
	s := startServer(t, cfg, func(ctx context.Context, cc *ConnContext) {
		buf := make([]byte, 8)
		for {
			if _, err := cc.Read(buf); err != nil && !isTimeout(err) {
				errC <- err
				return
			}
		}
	})

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	select {
	case err := <-errC:
		assert.ErrorIs(t, err, ErrIdleTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("空闲连接未被关闭")
	}
}

func TestServer_ShutdownCancelsHandlers(t *testing.T) {
	exited := make(chan struct{})
	s := New(testConfig(), zaptest.NewLogger(t))
	s.SetHandler(func(ctx context.Context, cc *ConnContext) {
		defer close(exited)
		echoHandler(ctx, cc)
	})
	require.NoError(t, s.Start())

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte{1})
	require.NoError(t, err)
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	_, err = io.ReadFull(c, make([]byte, 1))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case <-exited:
	default:
		t.Fatal("Shutdown 返回时处理函数应已退出")
	}
}

// 未配置读超时时处理函数阻塞在 Read 上，Shutdown 需主动关闭连接
func TestServer_ShutdownWithoutReadTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ReadTimeout = 0
	exited := make(chan struct{})
	s := New(cfg, zaptest.NewLogger(t))
	s.SetHandler(func(ctx context.Context, cc *ConnContext) {
		defer close(exited)
		_, _ = cc.Read(make([]byte, 8))
	})
	require.NoError(t, s.Start())

	c, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return s.Stats().Active == 1 }, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case <-exited:
	default:
		t.Fatal("Shutdown 返回时处理函数应已退出")
	}
	assert.Equal(t, 0, s.Stats().Active)
}
