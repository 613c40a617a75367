package streaming

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// NewDecodingReader returns a reader yielding UTF-8 text for a body whose
// Content-Type may declare another charset. Decoding happens before lines are
// split so multi-byte sequences of the source charset are never cut apart.
// Bodies without a charset, or already in UTF-8, are returned unchanged.
func NewDecodingReader(r io.Reader, contentType string) (io.Reader, error) {
	charset := ContentCharset(contentType)
	switch charset {
	case "", "utf-8", "utf8", "us-ascii":
		return r, nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported stream charset %q: %w", charset, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return r, nil
	}
	return transform.NewReader(r, enc.NewDecoder()), nil
}

// ContentCharset extracts the lower-cased charset parameter of a Content-Type.
func ContentCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}
