package sessionexport

import (
	"io"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/sheetchat/sheetchat/internal/chat"
)

// htmlExporter renders the markdown transcript as a standalone page. Raw HTML
// in message content is dropped.
type htmlExporter struct{}

func (htmlExporter) Export(w io.Writer, session chat.Session) error {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.SkipHTML | html.CompletePage,
		Title: "Chat session " + session.ID,
	})
	_, err := w.Write(markdown.ToHTML([]byte(renderMarkdown(session)), p, renderer))
	return err
}
