// Package catalog enumerates capturable audio sources.
package catalog

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"meetcap/internal/domain"
	"meetcap/internal/meeting"
	"meetcap/internal/ports"
)

// maxBundleDepth bounds the upward walk from an executable to its bundle.
const maxBundleDepth = 8

const bundleSuffix = ".app"

// Catalog resolves active audio objects into sorted AudioSource snapshots.
type Catalog struct {
	subsystem ports.AudioSubsystem
	apps      ports.ApplicationResolver
	logger    *log.Logger
	tag       language.Tag

	mu       sync.RWMutex
	snapshot []domain.AudioSource
}

func New(subsystem ports.AudioSubsystem, apps ports.ApplicationResolver, logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.Default()
	}
	return &Catalog{
		subsystem: subsystem,
		apps:      apps,
		logger:    logger,
		tag:       language.Und,
	}
}

// WithLanguage sets the collation locale used for name ordering.
func (c *Catalog) WithLanguage(tag language.Tag) *Catalog {
	c.tag = tag
	return c
}

// Enumerate lists capturable sources. It fails only when the subsystem
// listing itself fails; unresolvable objects are logged and skipped.
func (c *Catalog) Enumerate(ctx context.Context) ([]domain.AudioSource, error) {
	objects, err := c.subsystem.ListAudioObjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSubsystemQuery, err)
	}

	seen := make(map[int]struct{}, len(objects))
	sources := make([]domain.AudioSource, 0, len(objects))
	for _, object := range objects {
		source, err := c.resolve(object)
		if err != nil {
			c.logger.Printf("catalog: skipping audio object %d: %v", object.Handle, err)
			continue
		}
		if _, dup := seen[source.PID]; dup {
			continue
		}
		seen[source.PID] = struct{}{}
		sources = append(sources, source)
	}

	c.sort(sources)

	c.mu.Lock()
	c.snapshot = sources
	c.mu.Unlock()

	out := make([]domain.AudioSource, len(sources))
	copy(out, sources)
	return out, nil
}

// Snapshot returns the most recent successful enumeration.
func (c *Catalog) Snapshot() []domain.AudioSource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.AudioSource, len(c.snapshot))
	copy(out, c.snapshot)
	return out
}

// Lookup finds a source in the last snapshot by process id.
func (c *Catalog) Lookup(pid int) (domain.AudioSource, bool) {
	if pid == domain.SystemWidePID {
		return domain.SystemWideSource(), true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, source := range c.snapshot {
		if source.PID == pid {
			return source, true
		}
	}
	return domain.AudioSource{}, false
}

func (c *Catalog) resolve(object ports.AudioObject) (domain.AudioSource, error) {
	if object.PID <= 0 {
		return domain.AudioSource{}, fmt.Errorf("invalid process id %d", object.PID)
	}

	source := domain.AudioSource{
		PID:              object.PID,
		Kind:             domain.SourceKindProcess,
		IsProducingAudio: object.Running,
		BundleID:         object.BundleID,
		Handle:           object.Handle,
	}

	if app, ok := c.apps.RunningApplication(object.PID); ok && app.Name != "" {
		source.Kind = domain.SourceKindApplication
		source.Name = app.Name
		source.BundleID = firstNonEmpty(app.BundleID, source.BundleID)
		source.BundlePath = app.BundlePath
		return source, nil
	}

	exe, exeErr := c.apps.ExecutablePath(object.PID)
	if exeErr == nil {
		if bundle, ok := findBundle(exe, maxBundleDepth); ok {
			source.Kind = domain.SourceKindApplication
			source.BundlePath = bundle
			source.Name = strings.TrimSuffix(filepath.Base(bundle), bundleSuffix)
		}
	}

	binary, binErr := c.apps.BinaryName(object.PID)
	if source.Name == "" {
		source.Name = firstNonEmpty(object.AppName, binary, object.Binary)
	}
	if source.Name == "" && exeErr != nil && binErr != nil && source.BundleID == "" {
		return domain.AudioSource{}, fmt.Errorf("process %d: %w", object.PID, exeErr)
	}
	if source.Name == "" {
		source.Name = placeholderName(source.BundleID, source.PID)
	}
	return source, nil
}

// sort orders meeting apps first, then sources producing audio, then by
// case-insensitive collated name.
func (c *Catalog) sort(sources []domain.AudioSource) {
	collator := collate.New(c.tag, collate.IgnoreCase)
	sort.SliceStable(sources, func(i, j int) bool {
		a, b := sources[i], sources[j]
		aMeeting, bMeeting := meeting.IsMeetingApp(a.BundleID), meeting.IsMeetingApp(b.BundleID)
		if aMeeting != bMeeting {
			return aMeeting
		}
		if a.IsProducingAudio != b.IsProducingAudio {
			return a.IsProducingAudio
		}
		return collator.CompareString(a.Name, b.Name) < 0
	})
}

// findBundle walks upward from an executable looking for an application
// bundle directory, at most depth levels.
func findBundle(executable string, depth int) (string, bool) {
	dir := filepath.Dir(filepath.Clean(executable))
	for i := 0; i < depth; i++ {
		if strings.HasSuffix(strings.ToLower(filepath.Base(dir)), bundleSuffix) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func placeholderName(bundleID string, pid int) string {
	if bundleID != "" {
		parts := strings.Split(bundleID, ".")
		if last := parts[len(parts)-1]; last != "" {
			return last
		}
	}
	return fmt.Sprintf("PID %d", pid)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
