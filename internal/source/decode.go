package source

import (
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode turns raw bytes into text. A UTF-8 or UTF-16 byte order mark
// selects the encoding and is removed; otherwise the input is taken as UTF-8.
// Invalid sequences are dropped.
func Decode(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		out = data
	}
	return strings.ToValidUTF8(string(out), "")
}
