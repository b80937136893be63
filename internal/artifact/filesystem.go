package artifact

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/sentinel"
)

// FilesystemStore writes artifacts under a root directory, mirroring the
// relative path layout. Suitable for single-node deployments.
type FilesystemStore struct {
	root string
}

func NewFilesystemStore(root string) (*FilesystemStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve artifact root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}
	return &FilesystemStore{root: abs}, nil
}

func (s *FilesystemStore) Save(ctx context.Context, sessionID id.SessionID, checkID id.CheckID, data []byte) (string, error) {
	return s.write(CheckPath(sessionID, checkID), data)
}

func (s *FilesystemStore) SaveWelcome(ctx context.Context, sessionID id.SessionID, data []byte) (string, error) {
	return s.write(WelcomePath(sessionID), data)
}

func (s *FilesystemStore) write(rel string, data []byte) (string, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	// Write to a temp file and rename so readers never see partial audio.
	tmp, err := os.CreateTemp(filepath.Dir(full), ".artifact-*")
	if err != nil {
		return "", fmt.Errorf("create artifact temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close artifact temp file: %w", err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("publish artifact: %w", err)
	}
	return rel, nil
}

func (s *FilesystemStore) Load(ctx context.Context, path string) ([]byte, error) {
	full, err := s.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return data, nil
}

// resolve maps a relative artifact path to an absolute one, rejecting
// anything that would escape the root.
func (s *FilesystemStore) resolve(rel string) (string, error) {
	if rel == "" || filepath.IsAbs(rel) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid artifact path")
	}
	full := filepath.Join(s.root, filepath.Clean(rel))
	if full != s.root && !strings.HasPrefix(full, s.root+string(filepath.Separator)) {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid artifact path")
	}
	return full, nil
}
