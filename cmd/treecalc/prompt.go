package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/arthur-debert/treecalc/treecalc"
)

// terminalPrompter asks questions on the terminal. It serves both as the
// Confirmer and as the FilePicker when a command is missing a path.
type terminalPrompter struct {
	in        *bufio.Reader
	out       io.Writer
	assumeYes bool
}

func newTerminalPrompter(in io.Reader, out io.Writer, assumeYes bool) *terminalPrompter {
	return &terminalPrompter{in: bufio.NewReader(in), out: out, assumeYes: assumeYes}
}

// Confirm implements treecalc.Confirmer
func (p *terminalPrompter) Confirm(ctx context.Context, prompt treecalc.Prompt) (bool, error) {
	if p.assumeYes {
		return true, nil
	}

	yes := initial(prompt.ConfirmLabel, "y")
	fmt.Fprintf(p.out, "%s\n%s [%s/%s]: ", prompt.Title, prompt.Message,
		strings.ToLower(yes), strings.ToUpper(initial(prompt.CancelLabel, "n")))
	answer, err := p.readLine(ctx)
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes", strings.ToLower(prompt.ConfirmLabel), strings.ToLower(yes):
		return true, nil
	default:
		return false, nil
	}
}

// PickOpen implements treecalc.FilePicker
func (p *terminalPrompter) PickOpen(ctx context.Context, title string) (string, error) {
	fmt.Fprintf(p.out, "%s (path): ", title)
	return p.readPath(ctx)
}

// PickSave implements treecalc.FilePicker
func (p *terminalPrompter) PickSave(ctx context.Context, title, suggested string) (string, error) {
	if suggested != "" {
		fmt.Fprintf(p.out, "%s (path) [%s]: ", title, suggested)
	} else {
		fmt.Fprintf(p.out, "%s (path): ", title)
	}
	path, err := p.readPath(ctx)
	if err == treecalc.ErrNothingSelected && suggested != "" {
		return suggested, nil
	}
	return path, err
}

func (p *terminalPrompter) readPath(ctx context.Context) (string, error) {
	path, err := p.readLine(ctx)
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", treecalc.ErrNothingSelected
	}
	return path, nil
}

func (p *terminalPrompter) readLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	if err == io.EOF && line == "" {
		return "", treecalc.ErrNothingSelected
	}
	return strings.TrimSpace(line), nil
}

func initial(label, fallback string) string {
	if label == "" {
		return fallback
	}
	return string([]rune(label)[:1])
}
