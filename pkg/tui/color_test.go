// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package tui

import (
	"bytes"
	"strings"
	"testing"
)

func TestColorizerDisabled(t *testing.T) {
	c := NewColorizer(&bytes.Buffer{})
	if c.Enabled {
		t.Fatal("colorizer enabled for a buffer")
	}
	for _, got := range []string{c.Good("x"), c.Bad("x"), c.Dim("x"), c.Bold("x")} {
		if got != "x" {
			t.Fatalf("disabled colorizer wrapped text: %q", got)
		}
	}
}

func TestColorizerEnabled(t *testing.T) {
	c := newColorizer(true)
	got := c.Good("ok")
	if !strings.Contains(got, "ok") || !strings.HasPrefix(got, "\x1b[") {
		t.Fatalf("Good = %q, want an escape-wrapped string", got)
	}
	if got := c.Bad("no"); got == "no" {
		t.Fatal("Bad did not color its text")
	}
}

func TestZeroColorizer(t *testing.T) {
	var c Colorizer
	if got := c.Dim("plain"); got != "plain" {
		t.Fatalf("zero Colorizer Dim = %q", got)
	}
}
