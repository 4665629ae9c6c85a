package auth

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the user for a username and secret. Secrets are read
// without echo when input is a terminal.
type Prompter struct {
	in     *bufio.Reader
	out    io.Writer
	fd     int
	isTerm bool
}

// NewPrompter creates a Prompter reading from in and writing prompts to out
func NewPrompter(in *os.File, out io.Writer) *Prompter {
	fd := int(in.Fd())
	return &Prompter{
		in:     bufio.NewReader(in),
		out:    out,
		fd:     fd,
		isTerm: term.IsTerminal(fd),
	}
}

// NewReaderPrompter creates a Prompter over a plain reader. Secrets are
// read as ordinary lines.
func NewReaderPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out, fd: -1}
}

// Username asks for the Jira username
func (p *Prompter) Username() (string, error) {
	fmt.Fprint(p.out, "Username: ")
	name, err := p.readLine()
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", errors.New("username is required")
	}
	return name, nil
}

// Secret asks for a hidden value using label as the prompt
func (p *Prompter) Secret(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)

	var secret string
	if p.isTerm {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
		}
		secret = string(b)
	} else {
		line, err := p.readLine()
		if err != nil {
			return "", err
		}
		secret = line
	}

	if secret == "" {
		return "", fmt.Errorf("%s is required", strings.ToLower(label))
	}
	return secret, nil
}

func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
