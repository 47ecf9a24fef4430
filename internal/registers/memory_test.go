package registers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/edlink/internal/protocol/ed"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(16)
	assert.Equal(t, uint32(16), s.Size())

	t.Run("写入后可读回", func(t *testing.T) {
		res, err := s.WriteRegister(ctx, 10, 0xF0, []byte{1, 2, 3, 4})
		require.NoError(t, err)
		assert.Equal(t, ed.WriteOK, res)

		got, err := s.ReadRegister(ctx, 8, 8)
		require.NoError(t, err)
		assert.Equal(t, []byte{0, 0, 1, 2, 3, 4, 0, 0}, got)
	})

	t.Run("写到末尾", func(t *testing.T) {
		res, err := s.WriteRegister(ctx, 15, ControlVerify, []byte{9})
		require.NoError(t, err)
		assert.Equal(t, ed.WriteOK, res)
	})

	t.Run("越界写入", func(t *testing.T) {
		res, err := s.WriteRegister(ctx, 14, 0, []byte{1, 2, 3})
		require.NoError(t, err)
		assert.Equal(t, ed.WriteInvalidOffset, res)

		res, err = s.WriteRegister(ctx, 0xFFFFFFFF, 0, []byte{1})
		require.NoError(t, err)
		assert.Equal(t, ed.WriteInvalidOffset, res)
	})

	t.Run("越界读取", func(t *testing.T) {
		_, err := s.ReadRegister(ctx, 12, 8)
		assert.ErrorIs(t, err, ErrOutOfRange)
	})

	t.Run("ctx 已取消", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		res, err := s.WriteRegister(cctx, 0, 0, []byte{1})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, ed.WriteFault, res)
	})

	t.Run("默认大小", func(t *testing.T) {
		assert.Equal(t, uint32(DefaultSize), NewMemoryStore(0).Size())
	})
}
