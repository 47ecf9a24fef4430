package connection

import (
	"context"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// IdentityProvider 设备身份（版本、名称、序列号、类别）
type IdentityProvider interface {
	VersionInfo() ed.GetVersionResponse
	DeviceInfo() ed.GetInfoResponse
}

// RegisterAccess 寄存器写入的实际执行者（设备内存、Redis 等）
// 返回的结果码直接回给调试器；error 表示访问本身失败，按 WriteFault 处理
type RegisterAccess interface {
	WriteRegister(ctx context.Context, offset uint32, control uint8, data []byte) (ed.WriteResult, error)
}

// ChannelSampler 通道数据采样
type ChannelSampler interface {
	Sample(mode ed.TraceMode) ed.ReadChannelDataResponse
}

// EventKind 观测事件类型
type EventKind uint8

const (
	EventFrameIn EventKind = iota
	EventFrameOut
	EventDecodeError
	EventUnknownCommand
	EventFrameTooLarge
	EventPipelineError
	EventRegisterWrite
	EventResponse
	EventTransportError
)

func (k EventKind) String() string {
	switch k {
	case EventFrameIn:
		return "frame_in"
	case EventFrameOut:
		return "frame_out"
	case EventDecodeError:
		return "decode_error"
	case EventUnknownCommand:
		return "unknown_command"
	case EventFrameTooLarge:
		return "frame_too_large"
	case EventPipelineError:
		return "pipeline_error"
	case EventRegisterWrite:
		return "register_write"
	case EventResponse:
		return "response"
	case EventTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Event 一次可观测的协议事件
type Event struct {
	Kind    EventKind
	ConnID  string
	Role    Role
	Header  ed.Header
	Bytes   int
	Result  ed.WriteResult // 仅 EventRegisterWrite
	Content *ed.Content    // 仅 EventResponse
	Err     error
}

// Recorder 观测事件的接收方，由外部注入（日志、指标）
type Recorder interface {
	Record(Event)
}

// RecorderFunc 函数适配
type RecorderFunc func(Event)

func (f RecorderFunc) Record(e Event) { f(e) }

type nopRecorder struct{}

func (nopRecorder) Record(Event) {}
