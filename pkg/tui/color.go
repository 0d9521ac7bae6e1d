// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tui holds terminal helpers shared by the lycaon command-line tools.
package tui

import (
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Colorizer wraps text in terminal colors when enabled.
type Colorizer struct {
	Enabled bool

	good, bad, dim, bold *color.Color
}

// NewColorizer returns a Colorizer for w. Colors are enabled only when w is
// a terminal, NO_COLOR is unset and TERM is not "dumb".
func NewColorizer(w io.Writer) Colorizer {
	return newColorizer(isTerminal(w) && os.Getenv("NO_COLOR") == "" && os.Getenv("TERM") != "dumb")
}

func newColorizer(enabled bool) Colorizer {
	c := Colorizer{
		Enabled: enabled,
		good:    color.New(color.FgGreen),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.FgHiBlack),
		bold:    color.New(color.Bold),
	}
	for _, cc := range []*color.Color{c.good, c.bad, c.dim, c.bold} {
		if enabled {
			cc.EnableColor()
		} else {
			cc.DisableColor()
		}
	}
	return c
}

var isTerminalFn = term.IsTerminal

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminalFn(int(f.Fd()))
}

func (c Colorizer) wrap(cc *color.Color, s string) string {
	if cc == nil {
		return s
	}
	return cc.Sprint(s)
}

// Good renders s as a success.
func (c Colorizer) Good(s string) string { return c.wrap(c.good, s) }

// Bad renders s as a failure.
func (c Colorizer) Bad(s string) string { return c.wrap(c.bad, s) }

// Dim renders s de-emphasized.
func (c Colorizer) Dim(s string) string { return c.wrap(c.dim, s) }

// Bold renders s emphasized.
func (c Colorizer) Bold(s string) string { return c.wrap(c.bold, s) }
