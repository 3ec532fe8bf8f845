package ifc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// GlobalIDLength is the length of a compressed IFC GlobalId.
const GlobalIDLength = 22

const globalIDChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz_$"

// ErrInvalidGlobalID is returned by ExpandGlobalID for malformed input.
var ErrInvalidGlobalID = errors.New("ifc: invalid GlobalId")

// NewGlobalID returns a fresh compressed GlobalId for a random (version 4)
// UUID.
func NewGlobalID() string { return CompressGUID(uuid.New()) }

// CompressGUID encodes a 128-bit GUID in the 22-character IFC base-64 form:
// the first byte as two digits, then five 24-bit groups as four digits each.
func CompressGUID(u uuid.UUID) string {
	var b strings.Builder
	b.Grow(GlobalIDLength)
	writeDigits(&b, uint32(u[0]), 2)
	for i := 1; i < 16; i += 3 {
		writeDigits(&b, uint32(u[i])<<16|uint32(u[i+1])<<8|uint32(u[i+2]), 4)
	}
	return b.String()
}

func writeDigits(b *strings.Builder, v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		b.WriteByte(globalIDChars[(v>>(6*uint(i)))&63])
	}
}

// ExpandGlobalID decodes a compressed GlobalId back to its GUID.
func ExpandGlobalID(s string) (uuid.UUID, error) {
	var u uuid.UUID
	if len(s) != GlobalIDLength {
		return u, fmt.Errorf("%w: %q has length %d", ErrInvalidGlobalID, s, len(s))
	}
	head, err := readDigits(s[:2])
	if err != nil {
		return u, err
	}
	if head > 0xff {
		return u, fmt.Errorf("%w: %q overflows", ErrInvalidGlobalID, s)
	}
	u[0] = byte(head)
	for g := range 5 {
		v, err := readDigits(s[2+4*g : 6+4*g])
		if err != nil {
			return u, err
		}
		u[1+3*g] = byte(v >> 16)
		u[2+3*g] = byte(v >> 8)
		u[3+3*g] = byte(v)
	}
	return u, nil
}

func readDigits(s string) (uint32, error) {
	var v uint32
	for i := 0; i < len(s); i++ {
		d := strings.IndexByte(globalIDChars, s[i])
		if d < 0 {
			return 0, fmt.Errorf("%w: unexpected character %q", ErrInvalidGlobalID, s[i])
		}
		v = v<<6 | uint32(d)
	}
	return v, nil
}

// IsGlobalID reports whether s is a well-formed compressed GlobalId.
func IsGlobalID(s string) bool {
	_, err := ExpandGlobalID(s)
	return err == nil
}
