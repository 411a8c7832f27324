// Package procfs resolves process ids through /proc and installed desktop entries.
package procfs

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"meetcap/internal/ports"
)

// DesktopEntry is an installed application from a .desktop file.
type DesktopEntry struct {
	ID      string
	Name    string
	Path    string
	Exec    string
	WMClass string
	Hidden  bool
}

// Resolver implements ports.ApplicationResolver for Linux.
type Resolver struct {
	procRoot    string
	desktopDirs []string
	logger      *log.Logger

	once  sync.Once
	index map[string]DesktopEntry
}

func NewResolver(procRoot string, desktopDirs []string, logger *log.Logger) *Resolver {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if desktopDirs == nil {
		desktopDirs = DefaultDesktopDirs()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{procRoot: procRoot, desktopDirs: desktopDirs, logger: logger}
}

// DefaultDesktopDirs lists XDG application directories, user first.
func DefaultDesktopDirs() []string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dataHome = filepath.Join(home, ".local", "share")
		}
	}
	dataDirs := os.Getenv("XDG_DATA_DIRS")
	if dataDirs == "" {
		dataDirs = "/usr/local/share:/usr/share"
	}

	var dirs []string
	if dataHome != "" {
		dirs = append(dirs, filepath.Join(dataHome, "applications"))
	}
	for _, dir := range filepath.SplitList(dataDirs) {
		if dir != "" {
			dirs = append(dirs, filepath.Join(dir, "applications"))
		}
	}
	return append(dirs, "/var/lib/flatpak/exports/share/applications")
}

// RunningApplication matches the process binary against installed desktop entries.
func (r *Resolver) RunningApplication(pid int) (ports.RunningApplication, bool) {
	binary, err := r.BinaryName(pid)
	if err != nil {
		return ports.RunningApplication{}, false
	}
	keys := []string{strings.ToLower(binary)}
	if exe, err := r.ExecutablePath(pid); err == nil {
		keys = append(keys, strings.ToLower(filepath.Base(exe)))
	}

	index := r.desktopIndex()
	for _, key := range keys {
		if entry, ok := index[key]; ok {
			return ports.RunningApplication{
				PID:        pid,
				Name:       entry.Name,
				BundleID:   entry.ID,
				BundlePath: entry.Path,
			}, true
		}
	}
	return ports.RunningApplication{}, false
}

func (r *Resolver) ExecutablePath(pid int) (string, error) {
	path, err := os.Readlink(r.procPath(pid, "exe"))
	if err != nil {
		return "", fmt.Errorf("failed to resolve executable of %d: %w", pid, err)
	}
	return strings.TrimSuffix(path, " (deleted)"), nil
}

func (r *Resolver) BinaryName(pid int) (string, error) {
	data, err := os.ReadFile(r.procPath(pid, "comm"))
	if err != nil {
		return "", fmt.Errorf("failed to read process name of %d: %w", pid, err)
	}
	return strings.TrimSpace(string(data)), nil
}

func (r *Resolver) procPath(pid int, name string) string {
	return filepath.Join(r.procRoot, strconv.Itoa(pid), name)
}

func (r *Resolver) desktopIndex() map[string]DesktopEntry {
	r.once.Do(func() {
		r.index = make(map[string]DesktopEntry)
		// earlier directories take precedence
		for _, dir := range r.desktopDirs {
			matches, err := filepath.Glob(filepath.Join(dir, "*.desktop"))
			if err != nil {
				continue
			}
			for _, path := range matches {
				entry, err := ParseDesktopFile(path)
				if err != nil {
					r.logger.Printf("procfs: skipping %s: %v", path, err)
					continue
				}
				if entry.Hidden || entry.Name == "" {
					continue
				}
				for _, key := range entry.keys() {
					if _, taken := r.index[key]; !taken {
						r.index[key] = entry
					}
				}
			}
		}
	})
	return r.index
}

func (e DesktopEntry) keys() []string {
	var keys []string
	if e.WMClass != "" {
		keys = append(keys, strings.ToLower(e.WMClass))
	}
	if fields := strings.Fields(e.Exec); len(fields) > 0 {
		command := fields[0]
		if command == "env" || command == "/usr/bin/env" {
			for _, field := range fields[1:] {
				if !strings.Contains(field, "=") {
					command = field
					break
				}
			}
		}
		keys = append(keys, strings.ToLower(filepath.Base(strings.Trim(command, `"`))))
	}
	return keys
}

// ParseDesktopFile reads the [Desktop Entry] group of a .desktop file.
func ParseDesktopFile(path string) (DesktopEntry, error) {
	file, err := os.Open(path)
	if err != nil {
		return DesktopEntry{}, err
	}
	defer file.Close()

	entry := DesktopEntry{
		ID:   strings.TrimSuffix(filepath.Base(path), ".desktop"),
		Path: path,
	}
	inEntry := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			inEntry = line == "[Desktop Entry]"
			continue
		}
		if !inEntry {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "Name":
			entry.Name = value
		case "Exec":
			entry.Exec = value
		case "StartupWMClass":
			entry.WMClass = value
		case "Hidden":
			entry.Hidden = value == "true"
		}
	}
	if err := scanner.Err(); err != nil {
		return DesktopEntry{}, err
	}
	return entry, nil
}
