package ed

import (
	"testing"
)

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected byte
	}{
		{
			name:     "空数据",
			data:     []byte{},
			expected: 0x00,
		},
		{
			name:     "GetInfo 内容区",
			data:     []byte{0x01, 0x01, 0x49},
			expected: 0xB5,
		},
		{
			name:     "GetVersion 内容区",
			data:     []byte{0x01, 0x01, 0x56},
			expected: 0x69,
		},
		{
			name:     "WriteRegister 内容区",
			data:     []byte{0x01, 0x01, 0x57, 10, 0, 0, 0, 0xF0, 4, 1, 2, 3, 4},
			expected: 0xB6,
		},
		{
			name:     "标准校验串",
			data:     []byte("123456789"),
			expected: 0xA1, // CRC-8/MAXIM check
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateChecksum(tt.data)
			if result != tt.expected {
				t.Errorf("CalculateChecksum() = 0x%02X, expected 0x%02X", result, tt.expected)
			}
		})
	}
}

func TestChecksum_Deterministic(t *testing.T) {
	c := NewChecksum(CRC8Maxim)
	data := []byte{0x01, 0x01, 0x57, 10, 0, 0, 0, 0xF0, 4, 1, 2, 3, 4}
	first := c.Compute(data)
	for i := 0; i < 3; i++ {
		if got := c.Compute(data); got != first {
			t.Fatalf("run %d: 0x%02X != 0x%02X", i, got, first)
		}
	}
}

func TestChecksum_OtherVariant(t *testing.T) {
	// CRC-8/SMBUS: poly=0x07 init=0 无反转，check=0xF4
	c := NewChecksum(Params{Name: "CRC-8/SMBUS", Poly: 0x07})
	if got := c.Compute([]byte("123456789")); got != 0xF4 {
		t.Fatalf("smbus check = 0x%02X", got)
	}
}
