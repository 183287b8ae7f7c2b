package cmd

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers and secrets from the command's input. Secrets are
// read without echo when the input is a terminal.
type prompter struct {
	in     io.Reader
	out    io.Writer
	reader *bufio.Reader
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{in: in, out: cmd.ErrOrStderr(), reader: bufio.NewReader(in)}
}

func (p *prompter) terminalFd() (int, bool) {
	f, ok := p.in.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	return fd, term.IsTerminal(fd)
}

// secret reads one line. The caller clears the returned buffer.
func (p *prompter) secret(label string) ([]byte, error) {
	fmt.Fprint(p.out, label)
	if fd, ok := p.terminalFd(); ok {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return nil, errors.Wrap(err, "failed to read input")
		}
		trimmed := bytes.TrimSpace(b)
		out := append([]byte(nil), trimmed...)
		clear(b)
		return out, nil
	}

	line, err := p.reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		clear(line)
		return nil, errors.Wrap(err, "failed to read input")
	}
	trimmed := bytes.TrimSpace(line)
	out := append([]byte(nil), trimmed...)
	clear(line)
	if len(out) == 0 {
		return nil, errors.New("empty input")
	}
	return out, nil
}

// confirm asks a y/n question. Anything but y or yes is a no.
func (p *prompter) confirm(question string) bool {
	fmt.Fprintf(p.out, "%s (y/n): ", question)
	line, _ := p.reader.ReadString('\n')
	response := strings.ToLower(strings.TrimSpace(line))
	return response == "y" || response == "yes"
}
