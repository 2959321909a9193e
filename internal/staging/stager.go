// Package staging moves superseded derived products out of the live tree so
// their Level-1 source can be reprocessed.
package staging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sceneselect/internal/core"
	"sceneselect/pkg/domain"
)

// Directory stages derived datasets by renaming their directory into
// <root>/<dataset-id>/.
type Directory struct {
	root   string
	logger core.Logger
}

var _ core.Stager = (*Directory)(nil)

// NewDirectory returns a stager rooted at root, creating it if needed.
func NewDirectory(root string, logger core.Logger) (*Directory, error) {
	if root == "" {
		return nil, errors.New("staging root required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve staging root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create staging root: %w", err)
	}
	return &Directory{root: abs, logger: logger}, nil
}

// Root returns the absolute staging root.
func (d *Directory) Root() string { return d.root }

// Target returns where the derived dataset ends up.
func (d *Directory) Target(derived domain.Dataset) string {
	return filepath.Join(d.root, derived.ID)
}

// Stage renames the directory holding derived's metadata document.
func (d *Directory) Stage(ctx context.Context, derived domain.Dataset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if derived.ID == "" {
		return errors.New("derived dataset has no id")
	}
	if !derived.HasLocalPath() {
		return fmt.Errorf("derived dataset %s has no local path", derived.ID)
	}
	src := filepath.Dir(derived.LocalPath)
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", src)
	}
	dst := d.Target(derived)
	if _, err := os.Lstat(dst); err == nil {
		return fmt.Errorf("staging target %s already exists", dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", dst, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if d.logger != nil {
		d.logger.Info("staged derived dataset", "dataset_id", derived.ID, "from", src, "to", dst)
	}
	return nil
}
