// Package pulse adapts PulseAudio / PipeWire-pulse, driven through pactl, to
// the audio subsystem, tap and permission ports.
package pulse

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

// Client runs pactl commands.
type Client struct {
	command string
}

func NewClient(command string) *Client {
	if command == "" {
		command = "pactl"
	}
	return &Client{command: command}
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.command, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("pactl %s: %w: %s", strings.Join(args, " "), err, msg)
		}
		return "", fmt.Errorf("pactl %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

func (c *Client) DefaultSink(ctx context.Context) (string, error) {
	return c.run(ctx, "get-default-sink")
}

func (c *Client) DefaultSource(ctx context.Context) (string, error) {
	return c.run(ctx, "get-default-source")
}

// LoadModule loads a module and returns its index.
func (c *Client) LoadModule(ctx context.Context, name string, args ...string) (string, error) {
	out, err := c.run(ctx, append([]string{"load-module", name}, args...)...)
	if err != nil {
		return "", err
	}
	if _, convErr := strconv.ParseUint(out, 10, 32); convErr != nil {
		return "", fmt.Errorf("pactl load-module %s: unexpected module index %q", name, out)
	}
	return out, nil
}

func (c *Client) UnloadModule(ctx context.Context, index string) error {
	_, err := c.run(ctx, "unload-module", index)
	return err
}

func (c *Client) MoveSinkInput(ctx context.Context, index uint32, sink string) error {
	_, err := c.run(ctx, "move-sink-input", strconv.FormatUint(uint64(index), 10), sink)
	return err
}

// SinkInput is one playback stream as reported by `pactl -f json list sink-inputs`.
type SinkInput struct {
	Index      uint32            `json:"index"`
	Sink       uint32            `json:"sink"`
	Corked     bool              `json:"corked"`
	Properties map[string]string `json:"properties"`
}

func (s SinkInput) PID() int {
	pid, err := strconv.Atoi(strings.TrimSpace(s.Properties["application.process.id"]))
	if err != nil {
		return 0
	}
	return pid
}

func (c *Client) SinkInputs(ctx context.Context) ([]SinkInput, error) {
	out, err := c.run(ctx, "-f", "json", "list", "sink-inputs")
	if err != nil {
		return nil, err
	}
	return parseSinkInputs([]byte(out))
}

func parseSinkInputs(payload []byte) ([]SinkInput, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, nil
	}
	var inputs []SinkInput
	if err := json.Unmarshal(payload, &inputs); err != nil {
		return nil, fmt.Errorf("failed to decode pactl sink-inputs: %w", err)
	}
	return inputs, nil
}

// Subsystem lists playback streams as audio objects.
type Subsystem struct {
	client *Client
}

func NewSubsystem(client *Client) *Subsystem {
	return &Subsystem{client: client}
}

func (s *Subsystem) ListAudioObjects(ctx context.Context) ([]ports.AudioObject, error) {
	inputs, err := s.client.SinkInputs(ctx)
	if err != nil {
		return nil, err
	}
	objects := make([]ports.AudioObject, 0, len(inputs))
	for _, input := range inputs {
		objects = append(objects, toAudioObject(input))
	}
	return objects, nil
}

func toAudioObject(input SinkInput) ports.AudioObject {
	binary := strings.TrimSpace(input.Properties["application.process.binary"])
	bundleID := strings.TrimSpace(input.Properties["application.id"])
	if bundleID == "" {
		bundleID = strings.TrimSpace(input.Properties["pipewire.access.portal.app_id"])
	}
	if bundleID == "" {
		bundleID = strings.ToLower(binary)
	}
	return ports.AudioObject{
		Handle:   input.Index,
		PID:      input.PID(),
		Binary:   binary,
		AppName:  strings.TrimSpace(input.Properties["application.name"]),
		BundleID: bundleID,
		Running:  !input.Corked,
	}
}

// Permissions derives microphone authorization from the default source.
type Permissions struct {
	client *Client
}

func NewPermissions(client *Client) *Permissions {
	return &Permissions{client: client}
}

func (p *Permissions) MicrophonePermissionStatus(ctx context.Context) domain.PermissionStatus {
	source, err := p.client.DefaultSource(ctx)
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return domain.PermissionDenied
		}
		return domain.PermissionNotDetermined
	}
	if source == "" {
		return domain.PermissionDenied
	}
	return domain.PermissionAuthorized
}
