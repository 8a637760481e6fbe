package buffer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRingBuffer(t *testing.T) {
	rb := NewRingBuffer(100)
	assert.Equal(t, 100, rb.Cap())
	assert.Equal(t, 0, rb.Len())

	assert.Equal(t, 1, NewRingBuffer(0).Cap(), "zero capacity should default to 1")
	assert.Equal(t, 1, NewRingBuffer(-5).Cap(), "negative capacity should default to 1")
}

func TestRingBuffer_Write(t *testing.T) {
	rb := NewRingBuffer(10)

	n, err := rb.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, rb.Len())

	n, err = rb.Write([]byte("world"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, 10, rb.Len())

	assert.Equal(t, "helloworld", rb.String())
}

func TestRingBuffer_WriteOverflow(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte("0123456789"))
	rb.Write([]byte("abc"))

	assert.Equal(t, "3456789abc", rb.String())
	assert.Equal(t, 10, rb.Len())

	// wrap a second time past the physical end of the buffer
	rb.Write([]byte("defghij"))
	assert.Equal(t, "abcdefghij", rb.String())
}

func TestRingBuffer_WriteLargerThanCapacity(t *testing.T) {
	rb := NewRingBuffer(5)

	n, err := rb.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Equal(t, "56789", rb.String())
	assert.Equal(t, 5, rb.Len())
}

func TestRingBuffer_WriteEmpty(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte("hello"))

	n, err := rb.Write([]byte{})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, "hello", rb.String())
}

func TestRingBuffer_ReadAllReturnsCopy(t *testing.T) {
	rb := NewRingBuffer(10)
	assert.Nil(t, rb.ReadAll())

	rb.Write([]byte("test"))
	data := rb.ReadAll()
	data[0] = 'X'
	assert.Equal(t, "test", rb.String())
}

func TestRingBuffer_Reset(t *testing.T) {
	rb := NewRingBuffer(10)
	rb.Write([]byte("hello"))

	rb.Reset()
	assert.Equal(t, 0, rb.Len())
	assert.Nil(t, rb.ReadAll())

	rb.Write([]byte("world"))
	assert.Equal(t, "world", rb.String())
}

func TestRingBufferKeepsTailProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("buffer holds the last Cap() bytes of everything written", prop.ForAll(
		func(capacity int, chunks []string) bool {
			rb := NewRingBuffer(capacity)
			var all []byte
			for _, c := range chunks {
				rb.Write([]byte(c))
				all = append(all, c...)
			}
			want := all
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			return string(rb.ReadAll()) == string(want)
		},
		gen.IntRange(1, 32),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
