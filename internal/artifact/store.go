// Package artifact persists generated audio feedback so workers can replay
// it later. Artifacts are addressed by a relative path which is stored on
// the safety check, never by raw filesystem location.
package artifact

import (
	"context"
	"fmt"

	id "genba/pkg/domain"
)

// Store persists binary artifacts under stable relative paths.
//
// Save and SaveWelcome return the path the artifact is reachable under.
// Load returns sentinel.ErrNotFound for unknown paths.
type Store interface {
	Save(ctx context.Context, sessionID id.SessionID, checkID id.CheckID, data []byte) (string, error)
	SaveWelcome(ctx context.Context, sessionID id.SessionID, data []byte) (string, error)
	Load(ctx context.Context, path string) ([]byte, error)
}

// CheckPath is the canonical location for a check's feedback audio.
func CheckPath(sessionID id.SessionID, checkID id.CheckID) string {
	return fmt.Sprintf("checks/%s/%s.mp3", sessionID, checkID)
}

// WelcomePath is the canonical location for a session's welcome audio.
func WelcomePath(sessionID id.SessionID) string {
	return fmt.Sprintf("welcome/%s.mp3", sessionID)
}
