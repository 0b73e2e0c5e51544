// Package store persists WorkflowState as a single JSON document per
// session under a sessions root directory, following the one-file-per-
// entity layout of Manager.SavePlan/LoadPlan in the teacher's
// workflow/plan.go (.semspec/changes/{slug}/plan.json).
//
// Writes are atomic (temp file + rename, via google/renameio/v2) and
// guarded by an advisory per-session flock (gofrs/flock) to catch
// accidental concurrent drivers, per spec §4.2's concurrency note.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gofrs/flock"
	"github.com/google/renameio/v2"

	"github.com/c360studio/orc/internal/model"
)

const stateFileName = "state.json"
const lockFileName = ".state.lock"

// Store persists and lists sessions under root.
type Store struct {
	root string
}

// New creates a Store rooted at the given sessions directory. The
// directory is created lazily on first Save.
func New(root string) *Store {
	return &Store{root: root}
}

// SessionDir returns the on-disk directory for a session id.
func (s *Store) SessionDir(sessionID string) string {
	return filepath.Join(s.root, sessionID)
}

func (s *Store) statePath(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), stateFileName)
}

func (s *Store) lockPath(sessionID string) string {
	return filepath.Join(s.SessionDir(sessionID), lockFileName)
}

// Exists reports whether a session directory with a state.json exists.
func (s *Store) Exists(sessionID string) bool {
	_, err := os.Stat(s.statePath(sessionID))
	return err == nil
}

// withLock acquires the session's advisory lock for the duration of fn.
// Lock contention surfaces as a StorageError, never a panic.
func (s *Store) withLock(sessionID string, fn func() error) error {
	dir := s.SessionDir(sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &model.StorageError{SessionID: sessionID, Op: "mkdir", Cause: err}
	}

	fl := flock.New(s.lockPath(sessionID))
	locked, err := fl.TryLock()
	if err != nil {
		return &model.StorageError{SessionID: sessionID, Op: "lock", Cause: err}
	}
	if !locked {
		return &model.StorageError{SessionID: sessionID, Op: "lock", Cause: fmt.Errorf("session is locked by another process")}
	}
	defer fl.Unlock()

	return fn()
}

// Save atomically persists state to sessions/{id}/state.json.
func (s *Store) Save(ctx context.Context, state *model.WorkflowState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.withLock(state.SessionID, func() error {
		data, err := json.MarshalIndent(state, "", "  ")
		if err != nil {
			return &model.StorageError{SessionID: state.SessionID, Op: "marshal", Cause: err}
		}
		if err := renameio.WriteFile(s.statePath(state.SessionID), data, 0o644); err != nil {
			return &model.StorageError{SessionID: state.SessionID, Op: "write", Cause: err}
		}
		return nil
	})
}

// Load reads and validates sessions/{id}/state.json, rejecting unknown
// fields: schema drift is an error, not a warning, per spec §4.2.
func (s *Store) Load(ctx context.Context, sessionID string) (*model.WorkflowState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.statePath(sessionID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &model.SessionNotFoundError{SessionID: sessionID}
		}
		return nil, &model.StorageError{SessionID: sessionID, Op: "read", Cause: err}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var st model.WorkflowState
	if err := dec.Decode(&st); err != nil {
		return nil, &model.StorageError{SessionID: sessionID, Op: "unmarshal", Cause: err}
	}
	return &st, nil
}

// List returns every session id under root, sorted for determinism.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, &model.StorageError{SessionID: "", Op: "list", Cause: err}
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(s.root, e.Name(), stateFileName)); err == nil {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}
