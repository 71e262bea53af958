package tui

import (
	"github.com/charmbracelet/glamour"
)

// DefaultWordWrap is the column at which rendered markdown wraps.
const DefaultWordWrap = 80

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background.
func NewRenderer() (func(string) (string, error), error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(DefaultWordWrap),
	)
	if err != nil {
		return nil, err
	}
	return r.Render, nil
}
