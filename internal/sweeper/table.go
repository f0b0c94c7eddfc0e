package sweeper

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v3/process"
)

// Mode selects how the OS process table is queried
type Mode string

const (
	ModeSnapshot Mode = "snapshot" // one full pid listing per sweep
	ModeLookup   Mode = "lookup"   // one existence query per tracked pid
)

// ParseMode maps a config string to a Mode, defaulting to snapshot
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSnapshot:
		return ModeSnapshot, nil
	case ModeLookup:
		return ModeLookup, nil
	default:
		return "", fmt.Errorf("unknown sweep mode %q (want snapshot or lookup)", s)
	}
}

// Table answers liveness questions for the duration of one sweep
type Table interface {
	Alive(ctx context.Context, pid int) (bool, error)
	// Exe returns the executable path the OS reports for pid, "" if unknown
	Exe(ctx context.Context, pid int) (string, error)
}

// Source produces a fresh Table for each sweep
type Source interface {
	Snapshot(ctx context.Context) (Table, error)
}

// NewSource returns the gopsutil backed source for mode
func NewSource(mode Mode) Source {
	if mode == ModeLookup {
		return lookupSource{}
	}
	return snapshotSource{}
}

type snapshotSource struct{}

func (snapshotSource) Snapshot(ctx context.Context) (Table, error) {
	pids, err := process.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	set := make(map[int]struct{}, len(pids))
	for _, pid := range pids {
		set[int(pid)] = struct{}{}
	}
	return snapshotTable(set), nil
}

type snapshotTable map[int]struct{}

func (t snapshotTable) Alive(_ context.Context, pid int) (bool, error) {
	_, ok := t[pid]
	return ok, nil
}

func (snapshotTable) Exe(ctx context.Context, pid int) (string, error) {
	return exeOf(ctx, pid)
}

type lookupSource struct{}

func (lookupSource) Snapshot(context.Context) (Table, error) {
	return lookupTable{}, nil
}

type lookupTable struct{}

func (lookupTable) Alive(ctx context.Context, pid int) (bool, error) {
	return process.PidExistsWithContext(ctx, int32(pid))
}

func (lookupTable) Exe(ctx context.Context, pid int) (string, error) {
	return exeOf(ctx, pid)
}

func exeOf(ctx context.Context, pid int) (string, error) {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return "", err
	}
	return p.ExeWithContext(ctx)
}
