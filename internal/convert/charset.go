package convert

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset is the encoding the wiki stores page content in.
const DefaultCharset = "iso-8859-1"

// Encode converts UTF-8 content into charset. Characters the charset cannot
// represent are written as HTML numeric character references.
func Encode(content, charset string) ([]byte, error) {
	enc, err := lookup(charset)
	if err != nil {
		return nil, err
	}
	out, err := encoding.HTMLEscapeUnsupported(enc.NewEncoder()).String(content)
	if err != nil {
		return nil, fmt.Errorf("%w: encode to %s: %w", ErrConversion, charset, err)
	}
	return []byte(out), nil
}

// Decode converts data in charset to UTF-8.
func Decode(data []byte, charset string) (string, error) {
	enc, err := lookup(charset)
	if err != nil {
		return "", err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("%w: decode from %s: %w", ErrConversion, charset, err)
	}
	return string(out), nil
}

// Reencode passes content through charset and back, so the result only
// contains what the wiki can store.
func Reencode(content, charset string) (string, error) {
	if charset == "" || strings.EqualFold(charset, "utf-8") || strings.EqualFold(charset, "utf8") {
		return content, nil
	}
	data, err := Encode(content, charset)
	if err != nil {
		return "", err
	}
	return Decode(data, charset)
}

func lookup(charset string) (encoding.Encoding, error) {
	if charset == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown charset %q: %w", ErrConversion, charset, err)
	}
	return enc, nil
}
