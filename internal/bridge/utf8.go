package bridge

import "unicode/utf8"

// utf8Carry holds back an incomplete UTF-8 sequence at the end of a chunk so
// that a character split across two pty reads is sent whole.
type utf8Carry struct {
	pending []byte
}

// Next returns the longest prefix of pending+chunk that does not end inside
// a multi-byte sequence and keeps the rest for the next call.
func (c *utf8Carry) Next(chunk []byte) []byte {
	data := chunk
	if len(c.pending) > 0 {
		data = append(c.pending, chunk...)
		c.pending = nil
	}

	cut := incompleteSuffix(data)
	if cut > 0 {
		c.pending = append([]byte(nil), data[len(data)-cut:]...)
		data = data[:len(data)-cut]
	}
	return data
}

// Flush returns whatever is still held back.
func (c *utf8Carry) Flush() []byte {
	data := c.pending
	c.pending = nil
	return data
}

// incompleteSuffix returns the length of a truncated multi-byte sequence at
// the end of b, or 0.
func incompleteSuffix(b []byte) int {
	// A sequence is at most utf8.UTFMax bytes, so only the last three
	// bytes can belong to an unfinished one.
	for i := 1; i <= utf8.UTFMax-1 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			return 0
		}
		if !utf8.RuneStart(c) {
			continue
		}
		if need := seqLen(c); need > i {
			return i
		}
		return 0
	}
	return 0
}

func seqLen(lead byte) int {
	switch {
	case lead&0xE0 == 0xC0:
		return 2
	case lead&0xF0 == 0xE0:
		return 3
	case lead&0xF8 == 0xF0:
		return 4
	}
	return 1
}
