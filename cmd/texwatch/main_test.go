package main

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dgallion1/texdesk/internal/preview"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{[]string{"texwatch", "--file", "hw.tex"}, false},
		{[]string{"texwatch", "--server", "http://x", "--id", "abc", "-i", "5s"}, false},
		{[]string{"texwatch"}, true},
		{[]string{"texwatch", "--file", "a.tex", "--server", "http://x"}, true},
		{[]string{"texwatch", "--server", "http://x"}, true},
		{[]string{"texwatch", "--bogus"}, true},
	}
	for _, tt := range tests {
		_, err := parseFlags(tt.args)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseFlags(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}

	o, err := parseFlags([]string{"texwatch", "-f", "hw.tex", "-i", "500ms", "-o", "x.html"})
	if err != nil {
		t.Fatal(err)
	}
	if o.interval != 500*time.Millisecond || o.out != "x.html" {
		t.Errorf("unexpected options %+v", o)
	}
}

func TestPageWriter(t *testing.T) {
	out := filepath.Join(t.TempDir(), "preview.html")
	write := pageWriter(out, "hw", slog.New(slog.DiscardHandler))

	write(preview.State{HTML: "<p>first</p>", Renders: 1})
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<p>first</p>") || !strings.Contains(string(data), "<title>hw</title>") {
		t.Errorf("unexpected page %s", data)
	}

	// A fetch error without a new render leaves the page alone.
	os.Remove(out)
	write(preview.State{HTML: "<p>first</p>", Renders: 1, Err: errors.New("offline")})
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("page rewritten without a new render")
	}

	write(preview.State{HTML: "<p>second</p>", Renders: 2})
	data, _ = os.ReadFile(out)
	if !strings.Contains(string(data), "<p>second</p>") {
		t.Error("expected page to be updated")
	}
}
