package pulse

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

const loopbackLatencyMillis = 20

// TapFactory builds monitor-based taps. Captured audio is read by ffmpeg from
// the tap's monitor source.
type TapFactory struct {
	client  *Client
	capture ports.AudioCapture
	format  domain.SampleFormat
}

func NewTapFactory(client *Client, capture ports.AudioCapture, format domain.SampleFormat) *TapFactory {
	if format.SampleRate <= 0 {
		format.SampleRate = 48000
	}
	if format.Channels <= 0 {
		format.Channels = 2
	}
	format.BitDepth = 16
	return &TapFactory{client: client, capture: capture, format: format}
}

// SystemWide taps the monitor of the default sink.
func (f *TapFactory) SystemWide() (ports.Tap, error) {
	return &systemTap{tapBase: f.base(domain.SystemWideSource())}, nil
}

// ForProcess taps one process by rerouting its streams through a private null sink.
func (f *TapFactory) ForProcess(source domain.AudioSource) (ports.Tap, error) {
	if source.IsSystemWide() || source.PID <= 0 {
		return nil, fmt.Errorf("%w: pid %d", domain.ErrUnsupportedTarget, source.PID)
	}
	return &processTap{tapBase: f.base(source)}, nil
}

func (f *TapFactory) base(target domain.AudioSource) *tapBase {
	return &tapBase{client: f.client, capture: f.capture, format: f.format, target: target}
}

type tapBase struct {
	client  *Client
	capture ports.AudioCapture
	format  domain.SampleFormat
	target  domain.AudioSource

	mu      sync.Mutex
	monitor string
}

func (t *tapBase) Target() domain.AudioSource {
	return t.target
}

func (t *tapBase) StreamFormat() (domain.SampleFormat, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.monitor == "" {
		return domain.SampleFormat{}, false
	}
	return t.format, true
}

func (t *tapBase) Open(ctx context.Context) (ports.AudioSession, error) {
	t.mu.Lock()
	monitor := t.monitor
	t.mu.Unlock()
	if monitor == "" {
		return nil, fmt.Errorf("%w: tap for %q is not active", domain.ErrTapCreation, t.target.Name)
	}
	return t.capture.Start(ctx, ports.AudioConfig{
		SampleRate:  t.format.SampleRate,
		Channels:    t.format.Channels,
		InputFormat: "pulse",
		InputDevice: monitor,
	})
}

func (t *tapBase) setMonitor(monitor string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.monitor = monitor
}

type systemTap struct {
	*tapBase
}

func (t *systemTap) Activate(ctx context.Context) error {
	sink, err := t.client.DefaultSink(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}
	if sink == "" {
		return fmt.Errorf("%w: no default sink", domain.ErrTapCreation)
	}
	t.setMonitor(sink + ".monitor")
	return nil
}

func (t *systemTap) Invalidate(_ context.Context) error {
	t.setMonitor("")
	return nil
}

type processTap struct {
	*tapBase

	nullModule     string
	loopbackModule string
}

func (t *processTap) sinkName() string {
	return fmt.Sprintf("meetcap_tap_%d", t.target.PID)
}

// Activate creates a null sink, loops it back to the default sink so the user
// still hears the application, and moves the process's streams onto it.
func (t *processTap) Activate(ctx context.Context) (err error) {
	inputs, err := t.client.SinkInputs(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}
	var owned []SinkInput
	for _, input := range inputs {
		if input.PID() == t.target.PID {
			owned = append(owned, input)
		}
	}
	if len(owned) == 0 {
		return fmt.Errorf("%w: process %d has no playback streams", domain.ErrTapCreation, t.target.PID)
	}

	defaultSink, err := t.client.DefaultSink(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}

	defer func() {
		if err != nil {
			_ = t.unload(ctx)
		}
	}()

	name := t.sinkName()
	t.nullModule, err = t.client.LoadModule(ctx, "module-null-sink",
		"sink_name="+name,
		"sink_properties=device.description="+name,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}
	t.loopbackModule, err = t.client.LoadModule(ctx, "module-loopback",
		"source="+name+".monitor",
		"sink="+defaultSink,
		fmt.Sprintf("latency_msec=%d", loopbackLatencyMillis),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
	}
	for _, input := range owned {
		if err = t.client.MoveSinkInput(ctx, input.Index, name); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrTapCreation, err)
		}
	}

	t.setMonitor(name + ".monitor")
	return nil
}

// Invalidate unloads the tap modules; the moved streams fall back to the default sink.
func (t *processTap) Invalidate(ctx context.Context) error {
	t.setMonitor("")
	return t.unload(ctx)
}

func (t *processTap) unload(ctx context.Context) error {
	var errs []error
	if t.loopbackModule != "" {
		errs = append(errs, t.client.UnloadModule(ctx, t.loopbackModule))
		t.loopbackModule = ""
	}
	if t.nullModule != "" {
		errs = append(errs, t.client.UnloadModule(ctx, t.nullModule))
		t.nullModule = ""
	}
	return errors.Join(errs...)
}
