package engine

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Log persists events to a per-run append-only JSONL file. Append is
// synchronous: it does not return until the line has been handed to the
// operating system. The run loop is the only writer in this design, but each
// run's appends are still serialized under a per-run lock so line atomicity
// holds if adapters gain write access later.
type Log struct {
	paths *Paths

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLog creates a Log writing under the given Paths.
func NewLog(paths *Paths) *Log {
	return &Log{paths: paths, locks: make(map[string]*sync.Mutex)}
}

func (l *Log) runLock(runID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[runID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[runID] = lock
	}
	return lock
}

// Append serializes the event and appends it as one line to the run's log
// file, creating the file and containing directories on first write. A write
// failure propagates to the caller; the log is the durability boundary, so
// the failure must not be swallowed.
func (l *Log) Append(runID string, ev Event) error {
	if runID == "" {
		return fmt.Errorf("append event %s: empty run id", ev.Kind)
	}
	data, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}

	lock := l.runLock(runID)
	lock.Lock()
	defer lock.Unlock()

	path := l.paths.EventsPath(runID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

// Read replays a run's log in append order. Intended for audit tooling and
// tests; the live path never reads the log.
func (l *Log) Read(runID string) ([]Event, error) {
	f, err := os.Open(l.paths.EventsPath(runID))
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		ev, err := DecodeEvent(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(events)+1, err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}
	return events, nil
}
