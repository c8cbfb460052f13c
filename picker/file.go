package picker

import (
	"context"
	"fmt"
	"strings"

	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
)

// FilePicker picks images from the local filesystem, one path per role.
// A missing or empty path counts as a cancelled pick.
type FilePicker struct {
	Paths   map[models.Role]string
	Store   storage.ObjectStore
	Options Options
}

// NewFilePicker creates a FilePicker writing edited images to store.
func NewFilePicker(store storage.ObjectStore, paths map[models.Role]string) *FilePicker {
	return &FilePicker{Paths: paths, Store: store, Options: DefaultOptions}
}

func (p *FilePicker) Pick(ctx context.Context, role models.Role) (models.Selection, bool, error) {
	path := strings.TrimSpace(p.Paths[role])
	if path == "" {
		return models.Selection{}, false, nil
	}
	blob, err := readFile(strings.TrimPrefix(path, "file://"), MaxImageSize)
	if err != nil {
		return models.Selection{}, false, fmt.Errorf("failed to read %s image: %w", role, err)
	}
	data := blob.Data
	sel, err := editAndStore(ctx, p.Store, p.Options, role, data)
	if err != nil {
		return models.Selection{}, false, err
	}
	return sel, true, nil
}
