package ed

import "fmt"

// 帧定界符
const (
	STX byte = 0x55 // 帧头
	ETX byte = 0xAA // 帧尾
)

// 帧固定开销：STX + unit + session + cmd + crc + ETX
const (
	headerLen   = 3
	frameOverhd = 1 + headerLen + 1 + 1
	// MaxFieldLen 变长字段（字符串、字节串）的最大长度，长度前缀为 1 字节
	MaxFieldLen = 0xFF
)

// Command 指令字节
type Command byte

// 指令表
const (
	CmdGetInfo         Command = 'I' // 0x49
	CmdGetVersion      Command = 'V' // 0x56
	CmdWriteRegister   Command = 'W' // 0x57
	CmdQueryRegister   Command = 'Q' // 0x51 预留
	CmdConfigChannel   Command = 'C' // 0x43 预留
	CmdDecimation      Command = 'D' // 0x44 预留
	CmdResetTime       Command = 'T' // 0x54 预留
	CmdReadChannelData Command = 'R' // 0x52
	CmdDebugString     Command = 'S' // 0x53 预留
)

func (c Command) String() string {
	switch c {
	case CmdGetInfo:
		return "GetInfo"
	case CmdGetVersion:
		return "GetVersion"
	case CmdWriteRegister:
		return "WriteRegister"
	case CmdQueryRegister:
		return "QueryRegister"
	case CmdConfigChannel:
		return "ConfigChannel"
	case CmdDecimation:
		return "Decimation"
	case CmdResetTime:
		return "ResetTime"
	case CmdReadChannelData:
		return "ReadChannelData"
	case CmdDebugString:
		return "DebugString"
	default:
		return fmt.Sprintf("0x%02X", byte(c))
	}
}

// Reserved 是否为已分配但未实现的指令
func (c Command) Reserved() bool {
	switch c {
	case CmdQueryRegister, CmdConfigChannel, CmdDecimation, CmdResetTime, CmdDebugString:
		return true
	}
	return false
}

// Direction 报文方向：同一指令字节在请求与响应中负载结构不同
type Direction uint8

const (
	Request  Direction = iota // 调试器 -> 设备
	Response                  // 设备 -> 调试器
)

func (d Direction) String() string {
	if d == Response {
		return "response"
	}
	return "request"
}

// Header 内容区路由信息
type Header struct {
	Unit    uint8 // 目标微控制器
	Session uint8 // 会话/序号
	Command Command
}

// Content 一帧的逻辑内容：路由信息 + 唯一负载
// 指令字节由负载类型决定，不单独存储，保证二者不会不一致
type Content struct {
	Unit    uint8
	Session uint8
	Payload Payload
}

// Command 返回负载对应的指令
func (c *Content) Command() Command {
	if c == nil || c.Payload == nil {
		return 0
	}
	return c.Payload.Command()
}

// Header 返回路由信息
func (c *Content) Header() Header {
	return Header{Unit: c.Unit, Session: c.Session, Command: c.Command()}
}
