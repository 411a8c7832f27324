// Package wmctrl enumerates X11/XWayland windows with `wmctrl -lx`.
package wmctrl

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"meetcap/internal/domain"
)

// Provider implements ports.WindowProvider.
type Provider struct {
	command string
}

func NewProvider(command string) *Provider {
	if command == "" {
		command = "wmctrl"
	}
	return &Provider{command: command}
}

// CurrentWindows fails with domain.ErrWindowPermission when wmctrl cannot
// reach a display.
func (p *Provider) CurrentWindows(ctx context.Context) ([]domain.Window, error) {
	cmd := exec.CommandContext(ctx, p.command, "-lx")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %v: %s", domain.ErrWindowPermission, err, msg)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrWindowPermission, err)
	}
	return ParseWindows(stdout.String()), nil
}

// ParseWindows parses `wmctrl -lx` lines: id, desktop, WM_CLASS, host, title.
// The bundle id is the lowercased class half of WM_CLASS.
func ParseWindows(output string) []domain.Window {
	var windows []domain.Window
	for _, line := range strings.Split(output, "\n") {
		fields, title := splitFields(line, 4)
		if len(fields) < 4 {
			continue
		}
		windows = append(windows, domain.Window{
			Title:    title,
			BundleID: wmClassID(fields[2]),
		})
	}
	return windows
}

func wmClassID(wmClass string) string {
	if _, class, ok := strings.Cut(wmClass, "."); ok && class != "" {
		return strings.ToLower(class)
	}
	return strings.ToLower(wmClass)
}

// splitFields splits off n whitespace-separated fields and returns the
// untouched remainder.
func splitFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := strings.TrimLeft(line, " \t")
	for len(fields) < n && rest != "" {
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeft(rest[end:], " \t")
	}
	return fields, strings.TrimRight(rest, "\r")
}
