package picker

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
)

const (
	UploadField     = "image"
	MaxUploadMemory = 10 << 20

	// multipartOverhead allows for the form framing around the image.
	multipartOverhead = 1 << 20
)

// UploadPicker picks the image sent in a multipart request. A request
// without the file part counts as a cancelled pick.
type UploadPicker struct {
	Request *http.Request
	Store   storage.ObjectStore
	Options Options

	// MaxBytes caps the image size; zero means MaxImageSize.
	MaxBytes int64
}

// NewUploadPicker creates a picker for a single request.
func NewUploadPicker(r *http.Request, store storage.ObjectStore) *UploadPicker {
	return &UploadPicker{Request: r, Store: store, Options: DefaultOptions}
}

func (p *UploadPicker) Pick(ctx context.Context, role models.Role) (models.Selection, bool, error) {
	limit := p.MaxBytes
	if limit <= 0 {
		limit = MaxImageSize
	}
	if p.Request.MultipartForm == nil {
		p.Request.Body = http.MaxBytesReader(nil, p.Request.Body, limit+multipartOverhead)
	}
	if err := p.Request.ParseMultipartForm(MaxUploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return models.Selection{}, false, fmt.Errorf("%w: request body over %d bytes", ErrImageTooLarge, tooLarge.Limit)
		}
		return models.Selection{}, false, fmt.Errorf("error parsing form data: %w", err)
	}
	file, _, err := p.Request.FormFile(UploadField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return models.Selection{}, false, nil
		}
		return models.Selection{}, false, fmt.Errorf("error retrieving file: %w", err)
	}
	defer file.Close()

	data, err := readLimited(file, limit)
	if err != nil {
		return models.Selection{}, false, fmt.Errorf("error reading file: %w", err)
	}
	sel, err := editAndStore(ctx, p.Store, p.Options, role, data)
	if err != nil {
		return models.Selection{}, false, err
	}
	return sel, true, nil
}
