package ed

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch 内容区校验失败，帧被拒绝
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMalformedPayload 长度或结构与指令不符
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrUnknownCommand 帧合法但指令未知或未实现
	ErrUnknownCommand = errors.New("unknown command")

	// ErrFrameTooLarge 未定界数据超过缓冲上限
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrCommandMismatch 按类型解码时指令字节与期望类型不一致
	ErrCommandMismatch = errors.New("command mismatch")

	// ErrFieldTooLong 变长字段超过 1 字节长度前缀可表示的范围
	ErrFieldTooLong = errors.New("field too long")

	// ErrBadDelimiter 缺少 STX/ETX
	ErrBadDelimiter = fmt.Errorf("%w: bad delimiter", ErrMalformedPayload)
)

// UnknownCommandError 携带未知指令帧的路由信息，便于上层回报
type UnknownCommandError struct {
	Header    Header
	Direction Direction
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %s (%s, unit=%d session=%d)",
		e.Header.Command, e.Direction, e.Header.Unit, e.Header.Session)
}

// Unwrap 使 errors.Is(err, ErrUnknownCommand) 成立
func (e *UnknownCommandError) Unwrap() error { return ErrUnknownCommand }
