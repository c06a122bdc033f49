// Package prompt asks the user questions on the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/tgulacsi/wrap"
	"golang.org/x/term"
)

// ErrNotInteractive is returned when a question needs an answer but stdin is
// not a terminal.
var ErrNotInteractive = errors.New("not running in a terminal; pass --yes to skip confirmation")

const cols = 72

// Prompter reads answers from In and writes questions to Out.
type Prompter struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool

	r *bufio.Reader
}

// Terminal returns a prompter on the process stdin and stdout.
func Terminal() *Prompter {
	fd := os.Stdin.Fd()
	return &Prompter{
		In:          os.Stdin,
		Out:         os.Stdout,
		Interactive: isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd),
	}
}

// Confirm asks a yes/no question. Anything but y or yes is a no.
func (p *Prompter) Confirm(msg string) (bool, error) {
	if !p.Interactive {
		return false, ErrNotInteractive
	}
	fmt.Fprintf(p.Out, "%s [y/N] ", wrap.String(msg, cols))

	line, err := p.line()
	if err != nil {
		return false, err
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// Token asks for an access token without echoing it.
func (p *Prompter) Token() (string, error) {
	if !p.Interactive {
		return "", ErrNotInteractive
	}
	fmt.Fprint(p.Out, "Access token: ")

	if f, ok := p.In.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(p.Out)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(b)), nil
	}
	return p.line()
}

func (p *Prompter) line() (string, error) {
	if p.r == nil {
		p.r = bufio.NewReader(p.In)
	}
	s, err := p.r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimSpace(s), nil
}
