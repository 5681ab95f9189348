package rwportal

import (
	"bytes"
	stdhtml "html"
	"sync"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// The goldmark instance is shared; raw HTML in the source is not rendered.
var (
	markdownInstance goldmark.Markdown
	markdownOnce     sync.Once
)

func getMarkdown() goldmark.Markdown {
	markdownOnce.Do(func() {
		markdownInstance = goldmark.New(
			goldmark.WithExtensions(
				extension.GFM,
			),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
			),
		)
	})
	return markdownInstance
}

// RenderMarkdown converts user written complaint text and comments to HTML.
// On a conversion error the text is returned HTML escaped.
func RenderMarkdown(source string) string {
	if source == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := getMarkdown().Convert([]byte(source), &buf); err != nil {
		return stdhtml.EscapeString(source)
	}
	return buf.String()
}
