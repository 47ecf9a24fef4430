package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/taoyao-code/edlink/internal/tcpserver"
)

// SessionSource 调试会话统计来源（tcpserver.Server）
type SessionSource interface {
	Stats() tcpserver.SessionStats
}

// sessionCollector 抓取时读取会话表快照
type sessionCollector struct {
	src SessionSource

	active    *prometheus.Desc
	limit     *prometheus.Desc
	admitted  *prometheus.Desc
	takeovers *prometheus.Desc
	rejected  *prometheus.Desc
	tokens    *prometheus.Desc
}

// RegisterSessions 注册调试会话指标
func RegisterSessions(reg prometheus.Registerer, src SessionSource) {
	reg.MustRegister(&sessionCollector{
		src:       src,
		active:    prometheus.NewDesc("edlink_debug_sessions", "Debugger sessions currently attached.", nil, nil),
		limit:     prometheus.NewDesc("edlink_debug_sessions_max", "Configured debugger session limit.", []string{"policy"}, nil),
		admitted:  prometheus.NewDesc("tcp_accept_total", "Accepted debugger connections.", nil, nil),
		takeovers: prometheus.NewDesc("edlink_session_takeovers_total", "Sessions closed because a newer debugger took over.", nil, nil),
		rejected:  prometheus.NewDesc("tcp_reject_total", "Rejected debugger connections by reason.", []string{"reason"}, nil),
		tokens:    prometheus.NewDesc("edlink_accept_tokens", "Accept rate limiter tokens currently available.", nil, nil),
	})
}

func (c *sessionCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.active
	ch <- c.limit
	ch <- c.admitted
	ch <- c.takeovers
	ch <- c.rejected
	ch <- c.tokens
}

func (c *sessionCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()
	ch <- prometheus.MustNewConstMetric(c.active, prometheus.GaugeValue, float64(st.Active))
	ch <- prometheus.MustNewConstMetric(c.limit, prometheus.GaugeValue, float64(st.Max), string(st.Policy))
	ch <- prometheus.MustNewConstMetric(c.admitted, prometheus.CounterValue, float64(st.Admitted))
	ch <- prometheus.MustNewConstMetric(c.takeovers, prometheus.CounterValue, float64(st.Takeovers))
	for _, reason := range []string{tcpserver.RejectBusy, tcpserver.RejectRate, tcpserver.RejectShutdown} {
		ch <- prometheus.MustNewConstMetric(c.rejected, prometheus.CounterValue, float64(st.Rejected[reason]), reason)
	}
	if st.AcceptRate > 0 {
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.GaugeValue, st.AcceptTokens)
	}
}
