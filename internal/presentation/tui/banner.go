package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

var bannerLines = []struct {
	text  string
	color string
}{
	{"                      _            _             ", "#818cf8"},
	{"   ___ ___  _ __   __| |_   _  ___| |_ ___  _ __ ", "#a78bfa"},
	{"  / __/ _ \\| '_ \\ / _` | | | |/ __| __/ _ \\| '__|", "#c084fc"},
	{" | (_| (_) | | | | (_| | |_| | (__| || (_) | |   ", "#e879f9"},
	{"  \\___\\___/|_| |_|\\__,_|\\__,_|\\___|\\__\\___/|_|   ", "#f472b6"},
}

// PrintBanner writes the ASCII art banner to w, coloured when w supports it.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	fmt.Fprintln(w)
	for _, l := range bannerLines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
