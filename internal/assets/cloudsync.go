package assets

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// MirrorSync implements CloudSync over a mounted remote directory, the
// usual setup being a rclone or cloud-storage mount.
type MirrorSync struct {
	// LocalDir is the asset folder the bot writes to.
	LocalDir string
	// RemoteDir is the mounted mirror target.
	RemoteDir string
}

func (m *MirrorSync) Upload(ctx context.Context, path string) error {
	rel, err := filepath.Rel(m.LocalDir, path)
	if err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	dst := filepath.Join(m.RemoteDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("upload %s: %w", path, err)
	}
	return copyFile(path, dst)
}

func (m *MirrorSync) Delete(ctx context.Context, path string) error {
	rel, err := filepath.Rel(m.LocalDir, path)
	if err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	err = os.Remove(filepath.Join(m.RemoteDir, rel))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// SyncAll mirrors the whole local folder, skipping files that error and
// reporting the first failure at the end.
func (m *MirrorSync) SyncAll(ctx context.Context) error {
	var firstErr error
	err := filepath.Walk(m.LocalDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.Upload(ctx, path); err != nil && firstErr == nil {
			firstErr = err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return firstErr
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

// NopSync is a CloudSync that does nothing, used when mirroring is not
// configured.
type NopSync struct{}

func (NopSync) Upload(ctx context.Context, path string) error { return nil }
func (NopSync) Delete(ctx context.Context, path string) error { return nil }
func (NopSync) SyncAll(ctx context.Context) error             { return nil }
