package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/renameio/v2"

	"github.com/c360studio/orc/internal/model"
)

// CanonicalFilename returns the locked-contract filename for (phase,
// stage) per spec §6.
func CanonicalFilename(phase model.Phase, stage model.Stage) (string, error) {
	switch phase {
	case model.PhasePlan:
		if stage == model.StagePrompt {
			return "planning-prompt.md", nil
		}
		return "planning-response.md", nil
	case model.PhaseGenerate:
		if stage == model.StagePrompt {
			return "generation-prompt.md", nil
		}
		return "generation-response.md", nil
	case model.PhaseReview:
		if stage == model.StagePrompt {
			return "review-prompt.md", nil
		}
		return "review-response.md", nil
	case model.PhaseRevise:
		if stage == model.StagePrompt {
			return "revision-prompt.md", nil
		}
		return "revision-response.md", nil
	default:
		return "", fmt.Errorf("no canonical filename for phase %s", phase)
	}
}

// IterationDir returns "iteration-N" relative to the session directory.
func IterationDir(iteration int) string {
	return fmt.Sprintf("iteration-%d", iteration)
}

// CodeDir returns "iteration-N/code" relative to the session directory.
func CodeDir(iteration int) string {
	return filepath.Join(IterationDir(iteration), "code")
}

// ArtifactPath returns the session-relative path for a canonical file in
// a given iteration, e.g. "iteration-2/revision-prompt.md".
func ArtifactPath(iteration int, filename string) string {
	return filepath.Join(IterationDir(iteration), filename)
}

// WriteArtifact writes content to a path relative to the session
// directory, creating parent directories as needed, and returns the
// absolute path written.
func (s *Store) WriteArtifact(sessionID, relPath, content string) (string, error) {
	abs := filepath.Join(s.SessionDir(sessionID), relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", &model.StorageError{SessionID: sessionID, Op: "mkdir", Cause: err}
	}
	if err := renameio.WriteFile(abs, []byte(content), 0o644); err != nil {
		return "", &model.StorageError{SessionID: sessionID, Op: "write-artifact", Cause: err}
	}
	return abs, nil
}

// ReadArtifact reads the content of a session-relative path.
func (s *Store) ReadArtifact(sessionID, relPath string) (string, error) {
	abs := filepath.Join(s.SessionDir(sessionID), relPath)
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", &model.StorageError{SessionID: sessionID, Op: "read-artifact", Cause: err}
	}
	return string(data), nil
}

// ArtifactExists reports whether a session-relative path exists on disk.
func (s *Store) ArtifactExists(sessionID, relPath string) bool {
	abs := filepath.Join(s.SessionDir(sessionID), relPath)
	_, err := os.Stat(abs)
	return err == nil
}

// ListCodeFiles returns the session-relative paths of every file under
// iteration-N/code, sorted for determinism.
func (s *Store) ListCodeFiles(sessionID string, iteration int) ([]string, error) {
	dir := filepath.Join(s.SessionDir(sessionID), CodeDir(iteration))
	var out []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.SessionDir(sessionID), path)
		if relErr != nil {
			return relErr
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, &model.StorageError{SessionID: sessionID, Op: "list-code-files", Cause: err}
	}
	sort.Strings(out)
	return out, nil
}

// HashFile computes the SHA-256 of a session-relative path and returns
// its 64-character lowercase hex digest, per invariant P4.
func (s *Store) HashFile(sessionID, relPath string) (string, error) {
	abs := filepath.Join(s.SessionDir(sessionID), relPath)
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", &model.StorageError{SessionID: sessionID, Op: "hash", Cause: err}
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// CopyArtifact copies src (session-relative) to dst (session-relative).
func (s *Store) CopyArtifact(sessionID, src, dst string) error {
	content, err := s.ReadArtifact(sessionID, src)
	if err != nil {
		return err
	}
	_, err = s.WriteArtifact(sessionID, dst, content)
	return err
}
