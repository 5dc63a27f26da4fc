// Package livestate persists the in-flight streaming view of a discussion
// so that leaving and returning (or restarting the client) can restore a
// live display without re-contacting the server for partial content.
//
// The in-memory copy is authoritative for the current process; the per-id
// JSON files under the state directory are a best-effort mirror whose
// failures are swallowed.
package livestate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Progress is the character-count view of one agent's in-flight generation.
type Progress struct {
	Chars  int    `json:"chars"`
	Status string `json:"status"` // "waiting" | "streaming" | "done"
	Phase  string `json:"phase"`
}

// Snapshot is what is currently streaming for one discussion.
type Snapshot struct {
	Phase     string              `json:"phase"`
	Progress  map[string]Progress `json:"llm_progress"`
	Streaming map[string]string   `json:"streaming_content"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Patch is a partial snapshot update. Nil fields leave the stored value
// untouched; UpdatedAt is always refreshed.
type Patch struct {
	Phase     *string
	Progress  map[string]Progress
	Streaming map[string]string
}

// Store holds live-state snapshots keyed by discussion id.
type Store struct {
	mu    sync.Mutex
	dir   string // empty disables the file mirror
	now   func() time.Time
	cache map[int]*Snapshot
}

// NewStore creates a store mirroring snapshots under dir. An empty dir
// keeps the store purely in-memory.
func NewStore(dir string) *Store {
	if dir != "" {
		// Mirror setup is best-effort like every other file operation here.
		_ = os.MkdirAll(dir, 0755)
	}
	return &Store{
		dir:   dir,
		now:   time.Now,
		cache: make(map[int]*Snapshot),
	}
}

// Persist merges patch into the snapshot for id and refreshes UpdatedAt.
func (s *Store) Persist(id int, patch Patch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.cache[id]
	if snap == nil {
		snap = s.loadFile(id)
	}
	if snap == nil {
		snap = &Snapshot{}
	}

	if patch.Phase != nil {
		snap.Phase = *patch.Phase
	}
	if patch.Progress != nil {
		snap.Progress = cloneProgress(patch.Progress)
	}
	if patch.Streaming != nil {
		snap.Streaming = cloneStreaming(patch.Streaming)
	}
	snap.UpdatedAt = s.now()

	s.cache[id] = snap
	s.writeFile(id, snap)
}

// Read returns the snapshot for id, or nil when none exists or the stored
// data is unreadable.
func (s *Store) Read(id int) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.cache[id]
	if snap == nil {
		snap = s.loadFile(id)
		if snap != nil {
			s.cache[id] = snap
		}
	}
	if snap == nil {
		return nil
	}

	out := *snap
	out.Progress = cloneProgress(snap.Progress)
	out.Streaming = cloneStreaming(snap.Streaming)
	return &out
}

// Remove deletes the snapshot for id.
func (s *Store) Remove(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.cache, id)
	if s.dir != "" {
		_ = os.Remove(s.path(id))
	}
}

func (s *Store) path(id int) string {
	return filepath.Join(s.dir, fmt.Sprintf("live-%d.json", id))
}

// loadFile reads the mirrored snapshot. Corrupt or missing files read as
// absent.
func (s *Store) loadFile(id int) *Snapshot {
	if s.dir == "" {
		return nil
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		return nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil
	}
	return &snap
}

// writeFile mirrors the snapshot to disk via atomic rename. Failures are
// swallowed; persistence is an optimization, not a correctness requirement.
func (s *Store) writeFile(id int, snap *Snapshot) {
	if s.dir == "" {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	tmp, err := os.CreateTemp(s.dir, ".live-*")
	if err != nil {
		return
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return
	}
	if err := os.Rename(tmpPath, s.path(id)); err != nil {
		_ = os.Remove(tmpPath)
	}
}

func cloneProgress(in map[string]Progress) map[string]Progress {
	if in == nil {
		return nil
	}
	out := make(map[string]Progress, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneStreaming(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
