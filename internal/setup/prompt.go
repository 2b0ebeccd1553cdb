// Package setup implements the interactive first-run wizard that connects
// newssync to a News server, and the systemd user unit installer for the
// daemon.
package setup

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// Prompter asks line-oriented questions on a reader/writer pair: os.Stdin
// and os.Stdout for the wizard, buffers in tests.
type Prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

// NewPrompter creates a Prompter reading answers from r and printing to w.
func NewPrompter(r io.Reader, w io.Writer) *Prompter {
	return &Prompter{in: bufio.NewScanner(r), out: w}
}

var errRequired = errors.New("required, please enter a value")

// ask repeats the question until check accepts the answer. An empty answer
// means def; when def is empty too, the answer is required. At end of input
// def is returned unchecked.
func (p *Prompter) ask(question, def string, check func(string) error) string {
	for {
		if def != "" {
			fmt.Fprintf(p.out, "  %s [%s]: ", question, def)
		} else {
			fmt.Fprintf(p.out, "  %s: ", question)
		}
		if !p.in.Scan() {
			return def
		}

		answer := strings.TrimSpace(p.in.Text())
		if answer == "" {
			answer = def
		}
		err := errRequired
		if answer != "" {
			if check == nil {
				return answer
			}
			err = check(answer)
		}
		if err == nil {
			return answer
		}
		fmt.Fprintf(p.out, "  (%v)\n", err)
	}
}

// String asks for free text, returning def on Enter.
func (p *Prompter) String(question, def string) string {
	return p.ask(question, def, nil)
}

// URL asks for an http or https address.
func (p *Prompter) URL(question string) string {
	return p.ask(question, "", func(s string) error {
		u, err := url.Parse(s)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("enter a full http:// or https:// address")
		}
		return nil
	})
}

// Secret asks for a password. The answer is echoed because masking needs a
// raw-mode terminal.
func (p *Prompter) Secret(question string) string {
	return p.ask(question, "", nil)
}

// Int asks for a whole number of at least zero.
func (p *Prompter) Int(question string, def int) int {
	answer := p.ask(question, strconv.Itoa(def), func(s string) error {
		if n, err := strconv.Atoi(s); err != nil || n < 0 {
			return errors.New("enter a whole number, 0 or more")
		}
		return nil
	})
	n, _ := strconv.Atoi(answer)
	return n
}

// Confirm asks a yes/no question; Enter alone picks defaultYes.
func (p *Prompter) Confirm(question string, defaultYes bool) bool {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}
	fmt.Fprintf(p.out, "  %s [%s]: ", question, hint)
	if !p.in.Scan() {
		return defaultYes
	}
	switch strings.ToLower(strings.TrimSpace(p.in.Text())) {
	case "":
		return defaultYes
	case "y", "yes":
		return true
	default:
		return false
	}
}
