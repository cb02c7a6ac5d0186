package fifo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usbforge/epcore/fifo"
)

func drain(f *fifo.Transactional[byte]) []byte {
	var out []byte
	for {
		b, ok := f.Read()
		if !ok {
			return out
		}
		out = append(out, b)
	}
}

func TestTransactional(t *testing.T) {
	tests := []struct {
		name string
		run  func(t *testing.T, f *fifo.Transactional[byte])
	}{
		{
			name: "discard leaves visible content untouched",
			run: func(t *testing.T, f *fifo.Transactional[byte]) {
				f.Write(0x10)
				f.Write(0x20)
				f.Commit()
				f.Write(0xde)
				f.Write(0xad)
				f.Discard()
				assert.Equal(t, []byte{0x10, 0x20}, drain(f))
			},
		},
		{
			name: "commit appends run in order",
			run: func(t *testing.T, f *fifo.Transactional[byte]) {
				f.Write(0x01)
				f.Commit()
				f.Write(0x02)
				f.Write(0x03)
				f.Commit()
				assert.Equal(t, []byte{0x01, 0x02, 0x03}, drain(f))
			},
		},
		{
			name: "reader never observes uncommitted run",
			run: func(t *testing.T, f *fifo.Transactional[byte]) {
				f.Write(0xaa)
				_, ok := f.Read()
				assert.False(t, ok)
				assert.True(t, f.Empty())
				assert.Equal(t, 1, f.Pending())
			},
		},
		{
			name: "write rejected when full including pending",
			run: func(t *testing.T, f *fifo.Transactional[byte]) {
				for i := 0; i < f.Cap(); i++ {
					require.True(t, f.Write(byte(i)))
				}
				assert.False(t, f.Write(0xff))
				assert.Equal(t, 0, f.SpaceAvailable())
				f.Discard()
				assert.Equal(t, f.Cap(), f.SpaceAvailable())
			},
		},
		{
			name: "reset clears committed and pending",
			run: func(t *testing.T, f *fifo.Transactional[byte]) {
				f.Write(0x01)
				f.Commit()
				f.Write(0x02)
				f.Reset()
				assert.True(t, f.Empty())
				assert.Equal(t, 0, f.Pending())
				assert.Equal(t, f.Cap(), f.SpaceAvailable())
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, fifo.New[byte](8))
		})
	}
}

func TestTransactionalWraparound(t *testing.T) {
	f := fifo.New[byte](4)

	// Cycle enough data through to wrap the ring several times, interleaving
	// a discarded run each round.
	for round := 0; round < 5; round++ {
		base := byte(round * 3)
		for i := byte(0); i < 3; i++ {
			require.True(t, f.Write(base+i))
		}
		f.Commit()
		f.Write(0xee)
		f.Discard()
		assert.Equal(t, []byte{base, base + 1, base + 2}, drain(f))
	}
}

func TestTransactionalPeek(t *testing.T) {
	f := fifo.New[byte](4)
	_, ok := f.Peek()
	assert.False(t, ok)

	f.Write(0x42)
	f.Commit()
	v, ok := f.Peek()
	require.True(t, ok)
	assert.Equal(t, byte(0x42), v)
	assert.Equal(t, 1, f.Len(), "peek must not consume")
}
