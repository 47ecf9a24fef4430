package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/edlink/internal/tcpserver"
)

func TestAppMetrics(t *testing.T) {
	reg := NewRegistry()
	m := NewAppMetrics(reg)

	m.FramesTotal.WithLabelValues("in", "get_version").Inc()
	m.DecodeErrors.WithLabelValues("checksum").Add(2)
	m.TCPBytesSent.Add(6)

	assert.InDelta(t, 1, testutil.ToFloat64(m.FramesTotal.WithLabelValues("in", "get_version")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.DecodeErrors.WithLabelValues("checksum")), 0)

	rr := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "tcp_bytes_sent_total 6"), "缺少发送字节指标")
	assert.True(t, strings.Contains(body, "go_goroutines"), "缺少 Go 运行时采集器")
}

type fixedSessions tcpserver.SessionStats

func (f fixedSessions) Stats() tcpserver.SessionStats { return tcpserver.SessionStats(f) }

func TestRegisterSessions(t *testing.T) {
	reg := prometheus.NewRegistry()
	RegisterSessions(reg, fixedSessions{
		Active:       1,
		Max:          1,
		Policy:       tcpserver.PolicyTakeover,
		Admitted:     5,
		Takeovers:    3,
		Rejected:     map[string]int64{tcpserver.RejectRate: 2},
		AcceptRate:   10,
		AcceptTokens: 7.5,
	})

	expected := `
# HELP edlink_debug_sessions Debugger sessions currently attached.
# TYPE edlink_debug_sessions gauge
edlink_debug_sessions 1
# HELP edlink_session_takeovers_total Sessions closed because a newer debugger took over.
# TYPE edlink_session_takeovers_total counter
edlink_session_takeovers_total 3
# HELP tcp_reject_total Rejected debugger connections by reason.
# TYPE tcp_reject_total counter
tcp_reject_total{reason="busy"} 0
tcp_reject_total{reason="rate"} 2
tcp_reject_total{reason="shutdown"} 0
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"edlink_debug_sessions", "edlink_session_takeovers_total", "tcp_reject_total")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "edlink_accept_tokens")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
