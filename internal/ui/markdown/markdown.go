// Package markdown renders tutor replies for the terminal.
package markdown

import (
	"strings"

	"github.com/charmbracelet/glamour"
)

// Renderer wraps a glamour renderer for one wrap width. When glamour
// cannot be set up or fails on a message, the raw text is returned.
type Renderer struct {
	tr    *glamour.TermRenderer
	width int
}

// New creates a renderer that wraps at width columns using the dark style.
func New(width int) *Renderer {
	return newRenderer(width, glamour.WithStandardStyle("dark"))
}

// NewAuto creates a renderer that picks the style from the terminal
// background. Used by the line-oriented chat, which owns no alt screen.
func NewAuto(width int) *Renderer {
	return newRenderer(width, glamour.WithAutoStyle())
}

func newRenderer(width int, style glamour.TermRendererOption) *Renderer {
	if width < 20 {
		width = 20
	}
	tr, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(width))
	if err != nil {
		return &Renderer{width: width}
	}
	return &Renderer{tr: tr, width: width}
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	if r == nil {
		return 0
	}
	return r.width
}

// Render returns md rendered for the terminal.
func (r *Renderer) Render(md string) string {
	if r == nil || r.tr == nil || md == "" {
		return md
	}
	out, err := r.tr.Render(md)
	if err != nil {
		return md
	}
	return strings.Trim(out, "\n")
}
