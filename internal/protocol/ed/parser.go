package ed

import "fmt"

// unwrap 校验定界符与校验和，返回内容区（unit..payload）
func unwrap(raw []byte) ([]byte, error) {
	if len(raw) < frameOverhd {
		return nil, fmt.Errorf("%w: short frame (%d bytes)", ErrMalformedPayload, len(raw))
	}
	if raw[0] != STX || raw[len(raw)-1] != ETX {
		return nil, ErrBadDelimiter
	}
	content := raw[1 : len(raw)-2]
	got := raw[len(raw)-2]
	if want := CalculateChecksum(content); got != want {
		return nil, fmt.Errorf("%w: got 0x%02X want 0x%02X", ErrChecksumMismatch, got, want)
	}
	return content, nil
}

// PeekHeader 校验帧后仅返回路由信息，不解析负载
func PeekHeader(raw []byte) (Header, error) {
	content, err := unwrap(raw)
	if err != nil {
		return Header{}, err
	}
	return Header{Unit: content[0], Session: content[1], Command: Command(content[2])}, nil
}

// Decode 解析一帧（严格校验：定界符、校验和、负载长度）
// 负载结构由指令字节与方向共同决定；校验失败时不返回任何内容
func Decode(raw []byte, dir Direction) (*Content, error) {
	content, err := unwrap(raw)
	if err != nil {
		return nil, err
	}
	h := Header{Unit: content[0], Session: content[1], Command: Command(content[2])}
	p := newPayload(h.Command, dir)
	if p == nil {
		return nil, &UnknownCommandError{Header: h, Direction: dir}
	}
	if err := decodePayload(p, content[headerLen:]); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", h.Command, dir, err)
	}
	return &Content{Unit: h.Unit, Session: h.Session, Payload: p}, nil
}

// DecodeInto 按调用方指定的负载类型解析
// 指令字节与 p 的类型不一致时返回 ErrCommandMismatch，不做任何重解释
func DecodeInto(raw []byte, p Payload) (Header, error) {
	h, err := PeekHeader(raw)
	if err != nil {
		return Header{}, err
	}
	if h.Command != p.Command() {
		return h, fmt.Errorf("%w: frame carries %s, want %s", ErrCommandMismatch, h.Command, p.Command())
	}
	if err := decodePayload(p, raw[1+headerLen:len(raw)-2]); err != nil {
		return h, fmt.Errorf("decode %s %s: %w", h.Command, p.Direction(), err)
	}
	return h, nil
}

func decodePayload(p Payload, b []byte) error {
	r := &wireReader{b: b}
	p.decodeFrom(r)
	return r.done()
}
