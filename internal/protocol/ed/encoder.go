package ed

import "fmt"

// Encode 序列化内容并封帧：STX | unit | session | cmd | payload | crc8 | ETX
// crc8 覆盖 unit..payload
func Encode(c Content) ([]byte, error) {
	if c.Payload == nil {
		return nil, fmt.Errorf("%w: nil payload", ErrMalformedPayload)
	}
	cmd := c.Payload.Command()
	buf := make([]byte, 0, frameOverhd+8)
	buf = append(buf, STX, c.Unit, c.Session, byte(cmd))
	buf, err := c.Payload.appendTo(buf)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", cmd, err)
	}
	buf = append(buf, CalculateChecksum(buf[1:]), ETX)
	return buf, nil
}

// Build 构造一帧（Encode 的便捷形式）
func Build(unit, session uint8, p Payload) ([]byte, error) {
	return Encode(Content{Unit: unit, Session: session, Payload: p})
}
