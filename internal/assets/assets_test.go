package assets

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepoCRUD(t *testing.T) {
	repo := NewMemoryRepo()
	ctx := context.Background()

	id, err := repo.Add(ctx, Asset{Kind: KindFont, Name: "Lobster", Value: "/assets/fonts/lobster.ttf"})
	require.NoError(t, err)
	_, err = repo.Add(ctx, Asset{Kind: KindColor, Name: "Crimson", Value: "#dc143c"})
	require.NoError(t, err)

	fonts, err := repo.List(ctx, KindFont)
	require.NoError(t, err)
	require.Len(t, fonts, 1)
	assert.Equal(t, "Lobster", fonts[0].Name)

	a, ok, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, KindFont, a.Kind)

	require.NoError(t, repo.Remove(ctx, id))
	_, ok, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMirrorSyncRoundTrip(t *testing.T) {
	local := t.TempDir()
	remote := t.TempDir()
	src := filepath.Join(local, "fonts", "lobster.ttf")
	require.NoError(t, os.MkdirAll(filepath.Dir(src), 0o755))
	require.NoError(t, os.WriteFile(src, []byte("font bytes"), 0o644))

	m := &MirrorSync{LocalDir: local, RemoteDir: remote}
	ctx := context.Background()

	require.NoError(t, m.Upload(ctx, src))
	mirrored := filepath.Join(remote, "fonts", "lobster.ttf")
	data, err := os.ReadFile(mirrored)
	require.NoError(t, err)
	assert.Equal(t, "font bytes", string(data))

	require.NoError(t, m.Delete(ctx, src))
	_, err = os.Stat(mirrored)
	assert.True(t, os.IsNotExist(err))

	// Deleting a file that was never mirrored is not an error.
	require.NoError(t, m.Delete(ctx, src))
}

func TestSyncAllMirrorsEverything(t *testing.T) {
	local := t.TempDir()
	remote := t.TempDir()
	for _, name := range []string{"fonts/a.ttf", "backgrounds/b.png"} {
		p := filepath.Join(local, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
	}

	m := &MirrorSync{LocalDir: local, RemoteDir: remote}
	require.NoError(t, m.SyncAll(context.Background()))

	for _, name := range []string{"fonts/a.ttf", "backgrounds/b.png"} {
		_, err := os.Stat(filepath.Join(remote, name))
		assert.NoError(t, err, name)
	}
}
