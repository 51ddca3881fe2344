package cbf

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Cursor is a sequential bounds-checked reader over the buffered file
// bytes. Every read advances the cursor by the consumed width; a short
// read fails with ErrOutOfBounds and never truncates or zero-pads.
type Cursor struct {
	data []byte
	off  int
}

func NewCursor(data []byte) *Cursor {
	return &Cursor{data: data}
}

func (c *Cursor) Offset() int64 {
	return int64(c.off)
}

func (c *Cursor) Remaining() int {
	return len(c.data) - c.off
}

func (c *Cursor) outOfBounds(need int) error {
	return &DecodeError{
		Kind:   ErrOutOfBounds,
		Offset: int64(c.off),
		Detail: fmt.Sprintf("need %d bytes, %d remain", need, c.Remaining()),
	}
}

// Seek positions the cursor at an absolute offset inside the file.
func (c *Cursor) Seek(off int64) error {
	if off < 0 || off > int64(len(c.data)) {
		return &DecodeError{
			Kind:   ErrOutOfBounds,
			Offset: off,
			Detail: fmt.Sprintf("seek outside file of %d bytes", len(c.data)),
		}
	}
	c.off = int(off)
	return nil
}

// Bytes consumes exactly n bytes. The returned slice aliases the file
// buffer and must not be mutated.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, c.outOfBounds(n)
	}
	out := c.data[c.off : c.off+n]
	c.off += n
	return out, nil
}

// Peek returns the next n bytes without consuming them.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if n < 0 || c.Remaining() < n {
		return nil, c.outOfBounds(n)
	}
	return c.data[c.off : c.off+n], nil
}

func (c *Cursor) Skip(n int) error {
	_, err := c.Bytes(n)
	return err
}

// Uint reads a little- or big-endian unsigned integer of 1..8 bytes.
func (c *Cursor) Uint(width int, order binary.ByteOrder) (uint64, error) {
	if width < 1 || width > 8 {
		return 0, fmt.Errorf("unsupported integer width %d", width)
	}
	raw, err := c.Bytes(width)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	if order == binary.LittleEndian {
		copy(buf[:], raw)
		return binary.LittleEndian.Uint64(buf[:]), nil
	}
	copy(buf[8-width:], raw)
	return binary.BigEndian.Uint64(buf[:]), nil
}

// Int reads a signed integer of the given width, sign-extending the top
// bit of the raw value.
func (c *Cursor) Int(width int, order binary.ByteOrder) (int64, error) {
	u, err := c.Uint(width, order)
	if err != nil {
		return 0, err
	}
	shift := uint(64 - width*8)
	return int64(u<<shift) >> shift, nil
}

func (c *Cursor) Uint16LE() (uint16, error) {
	u, err := c.Uint(2, binary.LittleEndian)
	return uint16(u), err
}

func (c *Cursor) Uint32LE() (uint32, error) {
	u, err := c.Uint(4, binary.LittleEndian)
	return uint32(u), err
}

// FixedString consumes exactly n bytes and returns them as a string.
func (c *Cursor) FixedString(n int) (string, error) {
	raw, err := c.Bytes(n)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// CString consumes bytes up to and including the next NUL and returns the
// bytes before it. A missing terminator is ErrOutOfBounds.
func (c *Cursor) CString() ([]byte, error) {
	idx := bytes.IndexByte(c.data[c.off:], 0)
	if idx < 0 {
		return nil, &DecodeError{
			Kind:   ErrOutOfBounds,
			Offset: int64(c.off),
			Detail: "unterminated string field",
		}
	}
	out := c.data[c.off : c.off+idx]
	c.off += idx + 1
	return out, nil
}
