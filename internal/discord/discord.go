// Package discord detects and opens the local Discord client.
package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Variant is one Discord release channel
type Variant int

const (
	Stable Variant = iota
	Canary
	PTB
)

// Variants lists every channel in lookup order
var Variants = []Variant{Stable, Canary, PTB}

// ErrNotInstalled is returned by Open when the channel's updater is missing
var ErrNotInstalled = errors.New("discord is not installed")

// FolderName is the directory under %LOCALAPPDATA%
func (v Variant) FolderName() string {
	switch v {
	case Canary:
		return "DiscordCanary"
	case PTB:
		return "DiscordPTB"
	default:
		return "Discord"
	}
}

// ExeName is the client executable the updater starts
func (v Variant) ExeName() string {
	return v.FolderName() + ".exe"
}

func (v Variant) String() string {
	switch v {
	case Canary:
		return "canary"
	case PTB:
		return "ptb"
	default:
		return "stable"
	}
}

// ParseVariant parses stable, canary or ptb
func ParseVariant(s string) (Variant, error) {
	for _, v := range Variants {
		if strings.EqualFold(s, v.String()) || strings.EqualFold(s, v.FolderName()) {
			return v, nil
		}
	}
	return Stable, fmt.Errorf("unknown discord variant %q", s)
}

// CheckInterval is how long a Running answer is reused
const CheckInterval = 5 * time.Second

// Detector answers whether Discord runs and where it is installed
type Detector struct {
	localAppData string
	names        func(ctx context.Context) ([]string, error)
	start        func(name string, args ...string) error
	now          func() time.Time

	mu        sync.Mutex
	running   bool
	checkedAt time.Time
}

// NewDetector returns a Detector using the process table and %LOCALAPPDATA%
func NewDetector() *Detector {
	return &Detector{
		localAppData: os.Getenv("LOCALAPPDATA"),
		names:        processNames,
		start:        startDetached,
		now:          time.Now,
	}
}

// Running reports whether any Discord client process exists. The answer is cached for
// CheckInterval.
func (d *Detector) Running(ctx context.Context) (bool, error) {
	d.mu.Lock()
	if !d.checkedAt.IsZero() && d.now().Sub(d.checkedAt) < CheckInterval {
		running := d.running
		d.mu.Unlock()
		return running, nil
	}
	d.mu.Unlock()

	names, err := d.names(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get process list: %w", err)
	}

	running := false
	for _, name := range names {
		if strings.Contains(name, "Discord") {
			running = true
			break
		}
	}

	d.mu.Lock()
	d.running = running
	d.checkedAt = d.now()
	d.mu.Unlock()
	return running, nil
}

// Invalidate forces the next Running call to query the process table
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.checkedAt = time.Time{}
	d.mu.Unlock()
}

// Installed returns the channels whose updater exists
func (d *Detector) Installed() []Variant {
	var found []Variant
	for _, v := range Variants {
		if path, ok := d.updater(v); ok {
			if _, err := os.Stat(path); err == nil {
				found = append(found, v)
			}
		}
	}
	return found
}

// Open asks the channel's updater to start the client
func (d *Detector) Open(v Variant) error {
	path, ok := d.updater(v)
	if !ok {
		return ErrNotInstalled
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%w: %s", ErrNotInstalled, v.FolderName())
	}
	if err := d.start(path, "--processStart", v.ExeName()); err != nil {
		return fmt.Errorf("failed to start %s: %w", v.FolderName(), err)
	}
	d.Invalidate()
	return nil
}

func (d *Detector) updater(v Variant) (string, bool) {
	if d.localAppData == "" {
		return "", false
	}
	return filepath.Join(d.localAppData, v.FolderName(), "Update.exe"), true
}

func processNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue // exited or not accessible
		}
		names = append(names, name)
	}
	return names, nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait()
	return nil
}
