package cbf

import (
	"bytes"
	"fmt"
	"strings"

	"example.com/cbfconv/internal/catalog"
)

var (
	// Four bytes following the second heading in every CBF observed so
	// far. Treated as the format signature.
	signature = []byte{0x7B, 0x14, 0x8E, 0x3F}
	// End-of-file marker following the trailer record count.
	endMarker = []byte{0xAA, 0x55, 0x33, 0x11}
)

const (
	// OBD2 field descriptors start with 0x06 and span ten bytes; byte 1
	// is the standard PID number. Honda captures have no descriptors.
	descriptorTag = 0x06
	descriptorLen = 10

	reservedLen = 4

	// Headings are short ASCII strings. Anything longer means we are
	// scanning garbage, not a CBF.
	maxHeadingLen = 1024
	maxFieldCount = 512

	// 0xB0 encodes a degree sign in heading and unit strings.
	degreeByte = 0xB0
)

// cleanText converts a raw NUL-terminated header string to printable
// ASCII the way the device intends it: 0xB0 becomes "deg " and control
// bytes are dropped.
func cleanText(raw []byte) string {
	var b strings.Builder
	for _, ch := range raw {
		switch {
		case ch == degreeByte:
			b.WriteString("deg ")
		case ch >= 32 && ch < 127:
			b.WriteByte(ch)
		}
	}
	return strings.TrimSpace(b.String())
}

func readHeading(c *Cursor) (string, error) {
	start := c.Offset()
	raw, err := c.CString()
	if err != nil {
		return "", err
	}
	if len(raw) > maxHeadingLen {
		return "", &DecodeError{
			Kind:   ErrUnrecognizedFormat,
			Offset: start,
			Detail: fmt.Sprintf("heading of %d bytes is implausible", len(raw)),
		}
	}
	return cleanText(raw), nil
}

// detectFamily maps the heading text onto a module family. The run-mode
// heading names the software module that produced the capture.
func detectFamily(program, mode string) catalog.Family {
	for _, heading := range []string{mode, program} {
		upper := strings.ToUpper(heading)
		if strings.Contains(upper, "HONDA") {
			return catalog.FamilyHonda
		}
		if strings.Contains(upper, "OBD") {
			return catalog.FamilyOBD2
		}
	}
	return catalog.FamilyUnknown
}

func isTimeField(index int, name, unit string) bool {
	if index != 0 {
		return false
	}
	if strings.EqualFold(name, "time") || strings.EqualFold(name, "elapsed time") {
		return true
	}
	switch strings.ToLower(unit) {
	case "s", "sec", "ms":
		return strings.Contains(strings.ToLower(name), "time")
	}
	return false
}

// DecodeHeader reads the fixed preamble: two headings, the signature, the
// capture-parameter heading and the field definition table. It leaves the
// cursor at the start of the record region.
func DecodeHeader(c *Cursor, cat *catalog.Store) (Header, error) {
	var hdr Header
	var err error

	if hdr.Program, err = readHeading(c); err != nil {
		return hdr, err
	}
	if hdr.Mode, err = readHeading(c); err != nil {
		return hdr, err
	}

	sigOff := c.Offset()
	sig, err := c.Bytes(len(signature))
	if err != nil {
		return hdr, err
	}
	if !bytes.Equal(sig, signature) {
		return hdr, &DecodeError{
			Kind:   ErrUnrecognizedFormat,
			Offset: sigOff,
			Detail: fmt.Sprintf("got % X, want % X", sig, signature),
		}
	}
	// Reserved bytes after the signature, zero in every observed file.
	if err := c.Skip(reservedLen); err != nil {
		return hdr, err
	}

	if hdr.Params, err = readHeading(c); err != nil {
		return hdr, err
	}

	hdr.Family = detectFamily(hdr.Program, hdr.Mode)
	if !hdr.Family.Supported() {
		return hdr, &DecodeError{
			Kind:   ErrUnsupportedModule,
			Offset: c.Offset(),
			Detail: fmt.Sprintf("headings %q / %q", hdr.Program, hdr.Mode),
		}
	}

	countOff := c.Offset()
	count, err := c.Uint16LE()
	if err != nil {
		return hdr, err
	}
	if count == 0 || count > maxFieldCount {
		return hdr, &DecodeError{
			Kind:   ErrUnrecognizedFormat,
			Offset: countOff,
			Detail: fmt.Sprintf("implausible field count %d", count),
		}
	}

	hdr.Fields = make([]Field, 0, count)
	for i := 0; i < int(count); i++ {
		field := Field{Index: i}
		tag, err := c.Peek(1)
		if err != nil {
			return hdr, err
		}
		if tag[0] == descriptorTag {
			desc, err := c.Bytes(descriptorLen)
			if err != nil {
				return hdr, err
			}
			field.PID = uint16(desc[1])
			field.HasPID = true
		}
		if field.Name, err = readHeading(c); err != nil {
			return hdr, err
		}
		if field.Unit, err = readHeading(c); err != nil {
			return hdr, err
		}
		if field.HasPID {
			if def, ok := cat.Lookup(hdr.Family, field.PID); ok {
				field.Def = &def
			}
		}
		if field.Def == nil {
			if def, ok := cat.LookupName(hdr.Family, field.Name); ok {
				field.Def = &def
			}
		}
		field.IsTime = isTimeField(i, field.Name, field.Unit)
		if field.IsTime {
			hdr.HasTimeField = true
		}
		hdr.Fields = append(hdr.Fields, field)
	}

	hdr.RecordOffset = c.Offset()
	return hdr, nil
}
