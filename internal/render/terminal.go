package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/cli/go-gh/v2/pkg/markdown"
)

// TerminalRenderer prints markdown, styled with glamour unless plain text
// was requested.
type TerminalRenderer struct {
	markdown  *glamour.TermRenderer
	plainText bool
}

func NewTerminalRenderer(usePlainText bool, wrap int) (*TerminalRenderer, error) {
	var md *glamour.TermRenderer
	if !usePlainText {
		var err error
		md, err = glamour.NewTermRenderer(
			markdown.WithWrap(wrap),
			glamour.WithAutoStyle(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
		}
	}

	return &TerminalRenderer{
		markdown:  md,
		plainText: usePlainText,
	}, nil
}

// Render writes content to w.
func (t *TerminalRenderer) Render(w io.Writer, content string) error {
	if t.plainText {
		_, err := io.WriteString(w, content)
		return err
	}

	mdContent, err := t.markdown.Render(strings.TrimSpace(content))
	if err != nil {
		return fmt.Errorf("failed to render markdown: %w", err)
	}

	_, err = fmt.Fprintln(w, strings.TrimSpace(mdContent))
	return err
}
