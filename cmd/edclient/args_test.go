package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

func TestParseWrite(t *testing.T) {
	req, err := parseWrite("0x0A:01020304:0xF0")
	require.NoError(t, err)
	assert.Equal(t, &ed.WriteRegisterRequest{Offset: 10, Control: 0xF0, Data: []byte{1, 2, 3, 4}}, req)

	req, err = parseWrite("16:dead")
	require.NoError(t, err)
	assert.Equal(t, uint32(16), req.Offset)
	assert.Equal(t, uint8(0), req.Control)

	for _, bad := range []string{"10", "x:00", "10:zz", "10:", "10:00:0x100", "1:2:3:4"} {
		_, err := parseWrite(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildRequests(t *testing.T) {
	reqs, err := buildRequests(true, []string{"0:aa"}, "oneshot", 2)
	require.NoError(t, err)
	require.Len(t, reqs, 4)
	assert.Equal(t, ed.CmdGetInfo, reqs[0].Command())
	assert.Equal(t, ed.CmdWriteRegister, reqs[1].Command())
	assert.Equal(t, &ed.ReadChannelDataRequest{Mode: ed.TraceOneShot}, reqs[3])

	_, err = buildRequests(false, nil, "burst", 1)
	assert.Error(t, err)
}
