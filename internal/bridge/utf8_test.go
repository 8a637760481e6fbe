package bridge

import (
	"bytes"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestUTF8Carry_HoldsIncompleteSequence(t *testing.T) {
	tests := []struct {
		name    string
		chunk   []byte
		want    []byte
		pending []byte
	}{
		{"ascii", []byte("abc"), []byte("abc"), nil},
		{"complete two byte", []byte("é"), []byte("é"), nil},
		{"split two byte", []byte{'a', 0xC3}, []byte("a"), []byte{0xC3}},
		{"split three byte", []byte{'a', 0xE2, 0x82}, []byte("a"), []byte{0xE2, 0x82}},
		{"split four byte", []byte{0xF0, 0x9F, 0x98}, []byte{}, []byte{0xF0, 0x9F, 0x98}},
		{"stray continuation", []byte{'a', 0x80}, []byte{'a', 0x80}, nil},
		{"empty", []byte{}, []byte{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c utf8Carry
			got := c.Next(tt.chunk)
			assert.Equal(t, string(tt.want), string(got))
			assert.Equal(t, tt.pending, c.pending)
		})
	}
}

func TestUTF8Carry_JoinsAcrossChunks(t *testing.T) {
	var c utf8Carry
	var out []byte
	out = append(out, c.Next([]byte{0xF0, 0x9F})...)
	out = append(out, c.Next([]byte{0x98})...)
	out = append(out, c.Next([]byte{0x80, '!'})...)
	out = append(out, c.Flush()...)

	assert.Equal(t, "😀!", string(out))
	assert.Nil(t, c.Flush())
}

func TestUTF8Carry_FlushReturnsRemainder(t *testing.T) {
	var c utf8Carry
	assert.Equal(t, "x", string(c.Next([]byte{'x', 0xE2})))
	assert.Equal(t, []byte{0xE2}, c.Flush())
}

// Property: splitting valid UTF-8 at arbitrary points never yields a chunk
// that is invalid on its own, and the concatenation is unchanged.
func TestUTF8CarrySplitProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("split output stays valid and complete", prop.ForAll(
		func(s string, cuts []int) bool {
			data := []byte(s)
			var c utf8Carry
			var out []byte

			start := 0
			for _, cut := range cuts {
				if len(data) == 0 {
					break
				}
				end := start + cut%(len(data)-start+1)
				chunk := c.Next(data[start:end])
				if !utf8.Valid(chunk) {
					return false
				}
				out = append(out, chunk...)
				start = end
			}
			rest := c.Next(data[start:])
			if !utf8.Valid(rest) {
				return false
			}
			out = append(out, rest...)
			out = append(out, c.Flush()...)

			return bytes.Equal(out, data)
		},
		gen.AnyString(),
		gen.SliceOf(gen.IntRange(0, 8)),
	))

	properties.TestingRun(t)
}
