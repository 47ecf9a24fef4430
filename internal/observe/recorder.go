// Package observe 将连接层的观测事件落到日志与 Prometheus 指标
package observe

import (
	"errors"

	"go.uber.org/zap"

	"github.com/taoyao-code/edlink/internal/connection"
	"github.com/taoyao-code/edlink/internal/metrics"
	"github.com/taoyao-code/edlink/internal/pipeline"
	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// Recorder 实现 connection.Recorder
// 指标为 nil 时只写日志
type Recorder struct {
	logger  *zap.Logger
	metrics *metrics.AppMetrics
}

var _ connection.Recorder = (*Recorder)(nil)

// NewRecorder 创建观测记录器
func NewRecorder(logger *zap.Logger, m *metrics.AppMetrics) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{logger: logger, metrics: m}
}

// Record 处理一条事件
func (r *Recorder) Record(e connection.Event) {
	switch e.Kind {
	case connection.EventFrameIn:
		r.frame("in", e)
	case connection.EventFrameOut:
		r.frame("out", e)
	case connection.EventDecodeError, connection.EventUnknownCommand, connection.EventFrameTooLarge:
		reason := DecodeReason(e.Err)
		if r.metrics != nil {
			r.metrics.DecodeErrors.WithLabelValues(reason).Inc()
		}
		r.logger.Debug("frame rejected", zap.String("conn_id", e.ConnID),
			zap.String("reason", reason), zap.Error(e.Err))
	case connection.EventPipelineError:
		stage := "unknown"
		var pe *pipeline.Error
		if errors.As(e.Err, &pe) {
			stage = pe.Stage
		}
		if r.metrics != nil {
			r.metrics.PipelineErrors.WithLabelValues(stage).Inc()
		}
	case connection.EventRegisterWrite:
		if r.metrics != nil {
			r.metrics.RegisterWrites.WithLabelValues(e.Result.String()).Inc()
		}
		r.logger.Info("register write", zap.String("conn_id", e.ConnID),
			zap.Uint8("unit", e.Header.Unit), zap.Uint8("session", e.Header.Session),
			zap.Int("len", e.Bytes), zap.Stringer("result", e.Result))
	case connection.EventResponse:
		if e.Content != nil {
			r.logger.Info("response", zap.String("conn_id", e.ConnID),
				zap.Stringer("cmd", e.Header.Command), zap.Any("payload", e.Content.Payload))
		}
	case connection.EventTransportError:
		op := "read"
		if errors.Is(e.Err, connection.ErrTransportWrite) {
			op = "write"
		}
		if r.metrics != nil {
			r.metrics.TransportErrors.WithLabelValues(op).Inc()
		}
	}
}

func (r *Recorder) frame(direction string, e connection.Event) {
	if r.metrics == nil {
		return
	}
	r.metrics.FramesTotal.WithLabelValues(direction, e.Header.Command.String()).Inc()
}

// DecodeReason 将帧错误归类为指标标签
func DecodeReason(err error) string {
	switch {
	case errors.Is(err, ed.ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ed.ErrUnknownCommand):
		return "unknown_command"
	case errors.Is(err, ed.ErrFrameTooLarge):
		return "too_large"
	case errors.Is(err, ed.ErrMalformedPayload):
		return "malformed"
	default:
		return "other"
	}
}
