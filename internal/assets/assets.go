package assets

import (
	"context"

	"log/slog"

	"github.com/greetly/greetly/core/logger"
)

// Kind is an asset category.
type Kind string

const (
	KindFont       Kind = "fonts"
	KindColor      Kind = "colors"
	KindBackground Kind = "backgrounds"
)

// Kinds lists every category, in menu order.
var Kinds = []Kind{KindBackground, KindFont, KindColor}

// Asset is one selectable item. Value is a file path for fonts and
// backgrounds and a hex code for colors.
type Asset struct {
	ID    int64  `db:"id"`
	Kind  Kind   `db:"kind"`
	Name  string `db:"name"`
	Value string `db:"value"`
}

// Repo is the asset CRUD store. Single-record atomicity only.
type Repo interface {
	List(ctx context.Context, kind Kind) ([]Asset, error)
	Get(ctx context.Context, id int64) (Asset, bool, error)
	Add(ctx context.Context, a Asset) (int64, error)
	Remove(ctx context.Context, id int64) error
}

// CloudSync mirrors the local asset folder to remote storage. The flows
// never block on it.
type CloudSync interface {
	Upload(ctx context.Context, path string) error
	Delete(ctx context.Context, path string) error
	SyncAll(ctx context.Context) error
}

// Service combines the repo with fire-and-forget cloud mirroring.
type Service struct {
	Repo  Repo
	cloud CloudSync
}

// NewService constructs a Service. cloud may be nil.
func NewService(repo Repo, cloud CloudSync) *Service {
	return &Service{Repo: repo, cloud: cloud}
}

// Add stores the asset and mirrors file-backed kinds in the background.
func (s *Service) Add(ctx context.Context, a Asset) (int64, error) {
	id, err := s.Repo.Add(ctx, a)
	if err != nil {
		return 0, err
	}
	if s.cloud != nil && a.Kind != KindColor {
		go s.mirror(a.Value, true)
	}
	return id, nil
}

// Remove deletes the asset and its remote mirror in the background.
func (s *Service) Remove(ctx context.Context, id int64) error {
	a, ok, err := s.Repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Repo.Remove(ctx, id); err != nil {
		return err
	}
	if ok && s.cloud != nil && a.Kind != KindColor {
		go s.mirror(a.Value, false)
	}
	return nil
}

func (s *Service) mirror(path string, upload bool) {
	ctx := logger.Background()
	var err error
	if upload {
		err = s.cloud.Upload(ctx, path)
	} else {
		err = s.cloud.Delete(ctx, path)
	}
	if err != nil {
		logger.Warn(ctx, "assets", "assets.cloud_sync_failed",
			slog.String("path", path),
			slog.Bool("upload", upload),
			slog.String("err", err.Error()),
		)
	}
}
