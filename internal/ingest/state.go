package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"
)

// Phase is the ingestion loop's lifecycle position
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseRunning  Phase = "running"
	PhaseStopping Phase = "stopping"
)

// State is the shared control record. It is read by the feed subscriber and
// written by the ingestion loop and the HTTP control endpoints.
type State struct {
	CollectorEnabled  bool       `json:"collector_enabled"`
	CollectorRunning  bool       `json:"collector_running"`
	ParserRunning     bool       `json:"parser_running"`
	Phase             Phase      `json:"phase"`
	TotalRowsUploaded int64      `json:"total_rows_uploaded"`
	LastUploadCount   int        `json:"last_upload_count"`
	LastUploadTime    *time.Time `json:"last_upload_time"`
	Error             string     `json:"error,omitempty"`
}

// DefaultState is used when no state file exists yet
func DefaultState() State {
	return State{CollectorEnabled: true, Phase: PhaseIdle}
}

// StateFile persists State as JSON with atomic write-replace
type StateFile struct {
	path string
	mu   sync.Mutex
}

// NewStateFile creates a state file handle for path
func NewStateFile(path string) *StateFile {
	return &StateFile{path: path}
}

// Load reads the state. A missing file yields DefaultState; an unreadable
// one yields DefaultState and the error.
func (f *StateFile) Load() (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *StateFile) load() (State, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultState(), nil
	}
	if err != nil {
		return DefaultState(), fmt.Errorf("failed to read state file: %w", err)
	}

	// Fields absent from older files keep their defaults
	st := DefaultState()
	if err := json.Unmarshal(data, &st); err != nil {
		return DefaultState(), fmt.Errorf("failed to parse state file: %w", err)
	}
	if st.Phase == "" {
		st.Phase = PhaseIdle
	}
	return st, nil
}

// Save writes the state atomically
func (f *StateFile) Save(st State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.save(st)
}

func (f *StateFile) save(st State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	return writeAtomic(f.path, append(data, '\n'))
}

// Update applies fn to the current state and saves the result as one step
func (f *StateFile) Update(fn func(*State)) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	st, err := f.load()
	if err != nil {
		// Recover from a corrupt file by rewriting it from defaults
		st = DefaultState()
	}
	fn(&st)
	if err := f.save(st); err != nil {
		return st, err
	}
	return st, nil
}
