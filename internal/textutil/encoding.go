// Package textutil normalizes message text before it is stored, indexed, or
// shown as a preview.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// fallbacks are tried in order when neither the declared charset nor the
// detector produce valid UTF-8.
var fallbacks = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
	charmap.ISO8859_15,
	japanese.ShiftJIS,
	japanese.EUCJP,
	korean.EUCKR,
	simplifiedchinese.GBK,
	traditionalchinese.Big5,
}

// Lookup returns the decoder for a MIME charset label, or nil when the label
// is unknown. Labels are matched the way browsers match them, so "latin1"
// and "cp1252" both resolve.
func Lookup(label string) encoding.Encoding {
	label = strings.TrimSpace(label)
	if label == "" {
		return nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil
	}
	return enc
}

// Decode converts data to UTF-8. The declared charset is tried first, then
// statistical detection, then a fixed list of common mail charsets. Bytes
// that survive none of those are replaced with U+FFFD.
func Decode(data []byte, charset string) string {
	if enc := Lookup(charset); enc != nil {
		if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	if utf8.Valid(data) {
		return string(data)
	}

	// Detection is unreliable on short input, so require more confidence
	// once there is enough text to judge.
	threshold := 30
	if len(data) > 50 {
		threshold = 50
	}
	if res, err := chardet.NewTextDetector().DetectBest(data); err == nil && res.Confidence >= threshold {
		if enc := Lookup(res.Charset); enc != nil {
			if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
				return string(out)
			}
		}
	}

	for _, enc := range fallbacks {
		if out, err := enc.NewDecoder().Bytes(data); err == nil && utf8.Valid(out) {
			return string(out)
		}
	}
	return strings.ToValidUTF8(string(data), "�")
}

// EnsureUTF8 returns s unchanged when it is valid UTF-8 and decodes it
// otherwise.
func EnsureUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return Decode([]byte(s), "")
}

// CollapseSpace replaces every run of whitespace with a single space and
// trims the ends.
func CollapseSpace(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = sb.Len() > 0
			continue
		}
		if space {
			sb.WriteByte(' ')
			space = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Truncate cuts s to at most max runes without splitting a character.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}

// Preview builds the short single-line summary stored with each message.
func Preview(body string, max int) string {
	return Truncate(CollapseSpace(body), max)
}
