// Package codec converts operator input into payload bytes and received
// bytes into display text.
package codec

import (
	"encoding/hex"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/samaelod/netprobe/types"
)

// ErrInvalidHex is returned for hex input containing anything other than
// hex digits and whitespace.
var ErrInvalidHex = errors.New("ERROR: Invalid Byte Array Input!")

var hexInputRegex = regexp.MustCompile(`^[\sA-Fa-f0-9]*$`)

// EncodeText turns every newline into CRLF. Existing CRLF pairs are kept.
func EncodeText(s string) []byte {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", "\r\n")
	return []byte(s)
}

// EncodeHex decodes whitespace separated hex tokens. Odd-length tokens are
// left-padded with a zero, so "4 1" yields 0x04 0x01.
func EncodeHex(s string) ([]byte, error) {
	if !hexInputRegex.MatchString(s) {
		return nil, ErrInvalidHex
	}

	out := []byte{}
	for _, tok := range strings.Fields(s) {
		if len(tok)%2 != 0 {
			tok = "0" + tok
		}
		b, err := hex.DecodeString(tok)
		if err != nil {
			return nil, ErrInvalidHex
		}
		out = append(out, b...)
	}
	return out, nil
}

func Encode(mode types.Mode, s string) ([]byte, error) {
	if mode == types.ModeHex {
		return EncodeHex(s)
	}
	return EncodeText(s), nil
}

// Escape renders b for display: printable ASCII passes through, anything
// else becomes \x followed by the unpadded lowercase hex value.
func Escape(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		if c < ' ' || c > '~' {
			sb.WriteString(`\x`)
			sb.WriteString(strconv.FormatUint(uint64(c), 16))
			continue
		}
		sb.WriteByte(c)
	}
	return sb.String()
}
