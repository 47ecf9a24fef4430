package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

// buildRequests 将命令行参数转换为请求序列
func buildRequests(info bool, writes []string, trace string, samples int) ([]ed.Payload, error) {
	var reqs []ed.Payload
	if info {
		reqs = append(reqs, &ed.GetInfoRequest{})
	}
	for _, w := range writes {
		req, err := parseWrite(w)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	if trace != "" {
		mode, err := parseTraceMode(trace)
		if err != nil {
			return nil, err
		}
		for i := 0; i < samples; i++ {
			reqs = append(reqs, &ed.ReadChannelDataRequest{Mode: mode})
		}
	}
	return reqs, nil
}

// parseWrite 解析 OFFSET:HEXDATA[:CTRL]，偏移与控制字支持 0x 前缀
func parseWrite(s string) (*ed.WriteRegisterRequest, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return nil, fmt.Errorf("write %q: want OFFSET:HEXDATA[:CTRL]", s)
	}
	offset, err := strconv.ParseUint(parts[0], 0, 32)
	if err != nil {
		return nil, fmt.Errorf("write %q: offset: %w", s, err)
	}
	data, err := hex.DecodeString(strings.TrimPrefix(parts[1], "0x"))
	if err != nil {
		return nil, fmt.Errorf("write %q: data: %w", s, err)
	}
	if len(data) == 0 || len(data) > ed.MaxFieldLen {
		return nil, fmt.Errorf("write %q: data must be 1..%d bytes", s, ed.MaxFieldLen)
	}
	req := &ed.WriteRegisterRequest{Offset: uint32(offset), Data: data}
	if len(parts) == 3 {
		ctrl, err := strconv.ParseUint(parts[2], 0, 8)
		if err != nil {
			return nil, fmt.Errorf("write %q: ctrl: %w", s, err)
		}
		req.Control = uint8(ctrl)
	}
	return req, nil
}

func parseTraceMode(s string) (ed.TraceMode, error) {
	switch strings.ToLower(s) {
	case "off":
		return ed.TraceOff, nil
	case "continuous":
		return ed.TraceContinuous, nil
	case "oneshot", "one-shot":
		return ed.TraceOneShot, nil
	default:
		return 0, fmt.Errorf("unknown trace mode %q", s)
	}
}
