package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	TCPBytesReceived prometheus.Counter
	TCPBytesSent     prometheus.Counter
	FramesTotal      *prometheus.CounterVec // labels: direction=in|out, cmd
	DecodeErrors     *prometheus.CounterVec // labels: reason
	PipelineErrors   *prometheus.CounterVec // labels: stage
	RegisterWrites   *prometheus.CounterVec // labels: result
	TransportErrors  *prometheus.CounterVec // labels: op=read|write
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		TCPBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_received_total",
			Help: "Total bytes received over TCP.",
		}),
		TCPBytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tcp_bytes_sent_total",
			Help: "Total bytes sent over TCP.",
		}),
		FramesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edlink_frames_total",
			Help: "Frames by direction and command.",
		}, []string{"direction", "cmd"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edlink_decode_errors_total",
			Help: "Rejected frames by reason.",
		}, []string{"reason"}),
		PipelineErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edlink_pipeline_errors_total",
			Help: "Middleware pipeline failures by stage.",
		}, []string{"stage"}),
		RegisterWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edlink_register_writes_total",
			Help: "Register write requests by result.",
		}, []string{"result"}),
		TransportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edlink_transport_errors_total",
			Help: "Transport failures by operation.",
		}, []string{"op"}),
	}
	reg.MustRegister(m.TCPBytesReceived, m.TCPBytesSent,
		m.FramesTotal, m.DecodeErrors, m.PipelineErrors, m.RegisterWrites, m.TransportErrors)
	return m
}
