package prompt

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"y", true},
	}

	for _, tt := range tests {
		out := &bytes.Buffer{}
		p := &Prompter{In: strings.NewReader(tt.input), Out: out, Interactive: true}
		got, err := p.Confirm("Flash?")
		if err != nil {
			t.Errorf("%q: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%q: got %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Flash? [y/N]") {
			t.Errorf("question not printed: %q", out.String())
		}
	}
}

func TestConfirmEOF(t *testing.T) {
	p := &Prompter{In: strings.NewReader(""), Out: io.Discard, Interactive: true}
	if _, err := p.Confirm("Flash?"); !errors.Is(err, io.EOF) {
		t.Errorf("got %v, want EOF", err)
	}
}

func TestNotInteractive(t *testing.T) {
	p := &Prompter{In: strings.NewReader("y\n"), Out: io.Discard}
	if _, err := p.Confirm("Flash?"); !errors.Is(err, ErrNotInteractive) {
		t.Errorf("Confirm: got %v", err)
	}
	if _, err := p.Token(); !errors.Is(err, ErrNotInteractive) {
		t.Errorf("Token: got %v", err)
	}
}

func TestTokenFromReader(t *testing.T) {
	p := &Prompter{In: strings.NewReader("  abc123 \n"), Out: io.Discard, Interactive: true}
	got, err := p.Token()
	if err != nil {
		t.Fatal(err)
	}
	if got != "abc123" {
		t.Errorf("got %q", got)
	}
}
