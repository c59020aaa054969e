package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hubenschmidt/ultrarelay/core"
)

const DefaultMaxEntries = 100

// Entry is one line of the local transcript. Error entries are shown to the
// user but never sent back to the relay.
type Entry struct {
	Role    core.MessageRole `json:"role"`
	Content string           `json:"content"`
	Error   bool             `json:"error,omitempty"`
	At      time.Time        `json:"at"`
}

// Transcript is the client's conversation history, optionally kept in a
// JSON file and capped to the most recent entries.
type Transcript struct {
	mu      sync.Mutex
	path    string
	max     int
	entries []Entry
}

// NewTranscript creates an in-memory transcript.
func NewTranscript(max int) *Transcript {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Transcript{max: max}
}

// LoadTranscript reads the transcript at path. A missing or unreadable file
// starts an empty transcript; the error is returned for reporting only.
func LoadTranscript(path string, max int) (*Transcript, error) {
	t := NewTranscript(max)
	t.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return t, nil
	}
	if err != nil {
		return t, fmt.Errorf("read transcript: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return t, fmt.Errorf("parse transcript: %w", err)
	}
	t.entries = entries
	t.trim()
	return t, nil
}

// Append adds e, stamping At when unset, and drops the oldest entries
// beyond the cap. It returns the entry as stored.
func (t *Transcript) Append(e Entry) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e.At.IsZero() {
		e.At = time.Now()
	}
	t.entries = append(t.entries, e)
	t.trim()
	return e
}

func (t *Transcript) trim() {
	if len(t.entries) > t.max {
		t.entries = append([]Entry(nil), t.entries[len(t.entries)-t.max:]...)
	}
}

func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Turns returns the conversation as sent to the relay.
func (t *Transcript) Turns() []core.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turns := make([]core.Turn, 0, len(t.entries))
	for _, e := range t.entries {
		if e.Error {
			continue
		}
		turns = append(turns, core.Turn{Role: e.Role, Content: e.Content})
	}
	return turns
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// Save writes the transcript to its file. In-memory transcripts are not saved.
func (t *Transcript) Save() error {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.entries, "", "  ")
	path := t.path
	t.mu.Unlock()

	if path == "" {
		return nil
	}
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create transcript dir: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o600)
}
