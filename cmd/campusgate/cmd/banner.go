package cmd

import (
	"fmt"
	"io"

	"github.com/common-nighthawk/go-figure"
)

func printBanner(w io.Writer) {
	fmt.Fprintf(w, "\x1b[34m%s\x1b[0m", figure.NewFigure("campusgate", "cybermedium", true).String())
	fmt.Fprintf(w, "\x1b[32m  LMS session gateway - Version %s\x1b[0m\n\n", Version)
}
