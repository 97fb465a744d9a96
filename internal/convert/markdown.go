package convert

import (
	"bytes"
	"fmt"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/yuin/goldmark"
)

// ToMarkdown renders page HTML as markdown for terminal previews.
func ToMarkdown(content string) (string, error) {
	md, err := htmltomarkdown.ConvertString(ExtractBody(content))
	if err != nil {
		return "", fmt.Errorf("%w: html to markdown: %w", ErrConversion, err)
	}
	return md, nil
}

// FromMarkdown renders markdown as HTML, used to seed new pages.
func FromMarkdown(source string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(source), &buf); err != nil {
		return "", fmt.Errorf("%w: markdown to html: %w", ErrConversion, err)
	}
	return buf.String(), nil
}
