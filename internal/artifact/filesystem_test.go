package artifact_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genba/internal/artifact"
	id "genba/pkg/domain"
	dErrors "genba/pkg/domain-errors"
	"genba/pkg/platform/sentinel"
)

func TestFilesystemRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, err := artifact.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	sessionID := id.NewSessionID()
	checkID := id.NewCheckID()
	audio := []byte{0xff, 0xf3, 0x01, 0x02}

	path, err := st.Save(ctx, sessionID, checkID, audio)
	require.NoError(t, err)
	assert.Equal(t, artifact.CheckPath(sessionID, checkID), path)

	got, err := st.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, audio, got)
}

func TestFilesystemWelcome(t *testing.T) {
	ctx := context.Background()
	st, err := artifact.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	sessionID := id.NewSessionID()
	path, err := st.SaveWelcome(ctx, sessionID, []byte("welcome"))
	require.NoError(t, err)
	assert.Equal(t, artifact.WelcomePath(sessionID), path)

	got, err := st.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("welcome"), got)
}

func TestFilesystemLoad_NotFound(t *testing.T) {
	st, err := artifact.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	_, err = st.Load(context.Background(), artifact.CheckPath(id.NewSessionID(), id.NewCheckID()))
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFilesystemLoad_RejectsTraversal(t *testing.T) {
	root := t.TempDir()
	secret := filepath.Join(filepath.Dir(root), "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("s"), 0o600))
	defer os.Remove(secret)

	st, err := artifact.NewFilesystemStore(root)
	require.NoError(t, err)

	for _, path := range []string{
		"../secret.txt",
		"checks/../../secret.txt",
		"/etc/passwd",
		"",
	} {
		_, err := st.Load(context.Background(), path)
		require.Error(t, err, path)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput), path)
	}
}

func TestFilesystemSave_Overwrite(t *testing.T) {
	ctx := context.Background()
	st, err := artifact.NewFilesystemStore(t.TempDir())
	require.NoError(t, err)

	sessionID := id.NewSessionID()
	checkID := id.NewCheckID()
	_, err = st.Save(ctx, sessionID, checkID, []byte("first"))
	require.NoError(t, err)
	path, err := st.Save(ctx, sessionID, checkID, []byte("second"))
	require.NoError(t, err)

	got, err := st.Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got, "last write wins")
}
