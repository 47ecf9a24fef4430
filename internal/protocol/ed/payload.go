package ed

import (
	"fmt"
)

// Payload 指令负载，封闭集合：仅本包内的类型可实现（未导出方法）
// 新增指令需同时扩展 newPayload 的 switch，编译期即可发现遗漏
type Payload interface {
	Command() Command
	Direction() Direction
	appendTo(b []byte) ([]byte, error)
	decodeFrom(r *wireReader)
}

// newPayload 根据 (指令, 方向) 选择负载结构
func newPayload(cmd Command, dir Direction) Payload {
	switch cmd {
	case CmdGetInfo:
		if dir == Response {
			return &GetInfoResponse{}
		}
		return &GetInfoRequest{}
	case CmdGetVersion:
		if dir == Response {
			return &GetVersionResponse{}
		}
		return &GetVersionRequest{}
	case CmdWriteRegister:
		if dir == Response {
			return &WriteRegisterResponse{}
		}
		return &WriteRegisterRequest{}
	case CmdReadChannelData:
		if dir == Response {
			return &ReadChannelDataResponse{}
		}
		return &ReadChannelDataRequest{}
	}
	return nil
}

// ---- 'I' GetInfo ----

// GetInfoRequest 查询设备/类别信息，无负载
type GetInfoRequest struct{}

func (*GetInfoRequest) Command() Command                  { return CmdGetInfo }
func (*GetInfoRequest) Direction() Direction              { return Request }
func (*GetInfoRequest) appendTo(b []byte) ([]byte, error) { return b, nil }
func (*GetInfoRequest) decodeFrom(*wireReader)            {}

// GetInfoResponse 设备类别信息
type GetInfoResponse struct {
	ProtocolVersion uint8
	Category        uint8
	Channels        uint8 // 可追踪通道数（<=16）
}

func (*GetInfoResponse) Command() Command     { return CmdGetInfo }
func (*GetInfoResponse) Direction() Direction { return Response }

func (p *GetInfoResponse) appendTo(b []byte) ([]byte, error) {
	return append(b, p.ProtocolVersion, p.Category, p.Channels), nil
}

func (p *GetInfoResponse) decodeFrom(r *wireReader) {
	p.ProtocolVersion = r.u8()
	p.Category = r.u8()
	p.Channels = r.u8()
}

// ---- 'V' GetVersion ----

// Version 版本号，补丁号为 16 位
type Version struct {
	Major uint8
	Minor uint8
	Patch uint16
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func (v Version) appendTo(b []byte) []byte {
	b = append(b, v.Major, v.Minor)
	return appendU16(b, v.Patch)
}

func (v *Version) decodeFrom(r *wireReader) {
	v.Major = r.u8()
	v.Minor = r.u8()
	v.Patch = r.u16()
}

// GetVersionRequest 查询版本，无负载
type GetVersionRequest struct{}

func (*GetVersionRequest) Command() Command                  { return CmdGetVersion }
func (*GetVersionRequest) Direction() Direction              { return Request }
func (*GetVersionRequest) appendTo(b []byte) ([]byte, error) { return b, nil }
func (*GetVersionRequest) decodeFrom(*wireReader)            {}

// GetVersionResponse 调试库版本、应用版本、设备名、序列号
type GetVersionResponse struct {
	Debug  Version
	App    Version
	Name   string
	Serial []byte
}

func (*GetVersionResponse) Command() Command     { return CmdGetVersion }
func (*GetVersionResponse) Direction() Direction { return Response }

func (p *GetVersionResponse) appendTo(b []byte) ([]byte, error) {
	b = p.Debug.appendTo(b)
	b = p.App.appendTo(b)
	b, err := appendBytes(b, "name", []byte(p.Name))
	if err != nil {
		return nil, err
	}
	return appendBytes(b, "serial", p.Serial)
}

func (p *GetVersionResponse) decodeFrom(r *wireReader) {
	p.Debug.decodeFrom(r)
	p.App.decodeFrom(r)
	p.Name = r.str()
	p.Serial = r.bytes()
}

// ---- 'W' WriteRegister ----

// WriteResult 写寄存器结果码
type WriteResult uint8

const (
	WriteOK            WriteResult = 0x00 // 写入成功
	WriteInvalidOffset WriteResult = 0x01 // 偏移地址非法
	WriteFault         WriteResult = 0x02 // 解引用出错
)

func (r WriteResult) String() string {
	switch r {
	case WriteOK:
		return "ok"
	case WriteInvalidOffset:
		return "invalid_offset"
	case WriteFault:
		return "fault"
	default:
		return fmt.Sprintf("result_%d", uint8(r))
	}
}

// WriteRegisterRequest 写寄存器
// Data 以 1 字节长度前缀编码，长度不再作为独立字段出现
type WriteRegisterRequest struct {
	Offset  uint32 // 字节偏移（4GB 寻址）
	Control uint8
	Data    []byte
}

func (*WriteRegisterRequest) Command() Command     { return CmdWriteRegister }
func (*WriteRegisterRequest) Direction() Direction { return Request }

func (p *WriteRegisterRequest) appendTo(b []byte) ([]byte, error) {
	b = appendU32(b, p.Offset)
	b = append(b, p.Control)
	return appendBytes(b, "data", p.Data)
}

func (p *WriteRegisterRequest) decodeFrom(r *wireReader) {
	p.Offset = r.u32()
	p.Control = r.u8()
	p.Data = r.bytes()
}

// WriteRegisterResponse 写寄存器结果
type WriteRegisterResponse struct {
	Result WriteResult
}

func (*WriteRegisterResponse) Command() Command     { return CmdWriteRegister }
func (*WriteRegisterResponse) Direction() Direction { return Response }

func (p *WriteRegisterResponse) appendTo(b []byte) ([]byte, error) {
	return append(b, byte(p.Result)), nil
}

func (p *WriteRegisterResponse) decodeFrom(r *wireReader) {
	p.Result = WriteResult(r.u8())
}

// ---- 'R' ReadChannelData ----

// TraceMode 通道追踪模式
type TraceMode uint8

const (
	TraceOff        TraceMode = 0
	TraceContinuous TraceMode = 1
	TraceOneShot    TraceMode = 2
)

func (m TraceMode) String() string {
	switch m {
	case TraceOff:
		return "off"
	case TraceContinuous:
		return "continuous"
	case TraceOneShot:
		return "one-shot"
	default:
		return fmt.Sprintf("mode_%d", uint8(m))
	}
}

// Valid 模式是否在协议定义范围内
func (m TraceMode) Valid() bool { return m <= TraceOneShot }

// MaxTimestamp 时间戳在线路上占 3 字节
const MaxTimestamp = 0xFFFFFF

// ReadChannelDataRequest 读取通道数据
type ReadChannelDataRequest struct {
	Mode TraceMode
}

func (*ReadChannelDataRequest) Command() Command     { return CmdReadChannelData }
func (*ReadChannelDataRequest) Direction() Direction { return Request }

func (p *ReadChannelDataRequest) appendTo(b []byte) ([]byte, error) {
	if !p.Mode.Valid() {
		return nil, fmt.Errorf("%w: trace mode %d", ErrMalformedPayload, p.Mode)
	}
	return append(b, byte(p.Mode)), nil
}

func (p *ReadChannelDataRequest) decodeFrom(r *wireReader) {
	p.Mode = TraceMode(r.u8())
	if r.err == nil && !p.Mode.Valid() {
		r.err = fmt.Errorf("%w: trace mode %d", ErrMalformedPayload, p.Mode)
	}
}

// ReadChannelDataResponse 24 位时间戳（小端 3 字节）+ 16 位通道掩码
type ReadChannelDataResponse struct {
	Timestamp uint32
	Channels  uint16
}

func (*ReadChannelDataResponse) Command() Command     { return CmdReadChannelData }
func (*ReadChannelDataResponse) Direction() Direction { return Response }

func (p *ReadChannelDataResponse) appendTo(b []byte) ([]byte, error) {
	if p.Timestamp > MaxTimestamp {
		return nil, fmt.Errorf("%w: timestamp 0x%X exceeds 24 bits", ErrFieldTooLong, p.Timestamp)
	}
	b = appendU24(b, p.Timestamp)
	return appendU16(b, p.Channels), nil
}

func (p *ReadChannelDataResponse) decodeFrom(r *wireReader) {
	p.Timestamp = r.u24()
	p.Channels = r.u16()
}
