package server

import (
	"strings"
	"testing"
)

func TestNameFilterClean(t *testing.T) {
	f := NewNameFilter("badword")
	cases := []struct {
		in   string
		seat int
		want string
	}{
		{"alice", 0, "alice"},
		{"  bob  ", 1, "bob"},
		{"", 0, "Player 1"},
		{"ServerBot", 1, "Player 2"},
		{"xXbadwordXx", 0, "Player 1"},
		{"tab\there", 0, "tabhere"},
		{strings.Repeat("z", 40), 0, strings.Repeat("z", MaxNameLen)},
	}
	for _, c := range cases {
		if got := f.Clean(c.in, c.seat); got != c.want {
			t.Fatalf("Clean(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNameFilterKeepsUnicode(t *testing.T) {
	f := NewNameFilter()
	name := "飞行员一号"
	if got := f.Clean(name, 0); got != name {
		t.Fatalf("Clean(%q) = %q", name, got)
	}
}
