// Package picker implements image selection for the two try-on roles and
// resolves the resulting local references back to image bytes.
package picker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/raushankrgupta/virtual-tryon/models"
	"github.com/raushankrgupta/virtual-tryon/storage"
)

// Picker selects one image for a role. ok is false when the user
// cancelled; callers must then keep any prior selection.
type Picker interface {
	Pick(ctx context.Context, role models.Role) (sel models.Selection, ok bool, err error)
}

// MaxImageSize caps every image read by the pickers and the resolver.
const MaxImageSize = 32 << 20

// ErrImageTooLarge is returned for images above the size cap.
var ErrImageTooLarge = errors.New("image is too large")

// readLimited reads r fully, failing once more than limit bytes arrive.
// A non-positive limit means MaxImageSize.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxImageSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrImageTooLarge, limit)
	}
	return data, nil
}

// Options is the fixed picker configuration: a single image, editing
// allowed, 4:3 aspect and full quality.
type Options struct {
	AllowsEditing bool
	AspectWidth   int
	AspectHeight  int
	Quality       float64 // 0..1
}

var DefaultOptions = Options{
	AllowsEditing: true,
	AspectWidth:   4,
	AspectHeight:  3,
	Quality:       1,
}

// Edit applies opts to an encoded image and re-encodes it as JPEG.
// With editing allowed the image is centre-cropped to the aspect ratio.
func Edit(data []byte, opts Options) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if opts.AllowsEditing && opts.AspectWidth > 0 && opts.AspectHeight > 0 {
		w, h := cropSize(img.Bounds(), opts.AspectWidth, opts.AspectHeight)
		img = imaging.CropCenter(img, w, h)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality(opts.Quality))); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// cropSize returns the largest size with the aspect aw:ah that fits in b.
func cropSize(b image.Rectangle, aw, ah int) (int, int) {
	w, h := b.Dx(), b.Dy()
	if w*ah > h*aw {
		return h * aw / ah, h
	}
	return w, w * ah / aw
}

func jpegQuality(q float64) int {
	quality := int(q*100 + 0.5)
	if quality < 1 {
		return 1
	}
	if quality > 100 {
		return 100
	}
	return quality
}

// editAndStore runs the picker edit on data and saves it in store.
func editAndStore(ctx context.Context, store storage.ObjectStore, opts Options, role models.Role, data []byte) (models.Selection, error) {
	edited, err := Edit(data, opts)
	if err != nil {
		return models.Selection{}, err
	}
	key := fmt.Sprintf("selections/%s/%s.jpg", role, uuid.NewString())
	ref, err := store.Put(ctx, key, bytes.NewReader(edited), int64(len(edited)), "image/jpeg")
	if err != nil {
		return models.Selection{}, fmt.Errorf("failed to store %s image: %w", role, err)
	}
	return models.Selection{Role: role, Reference: ref, PickedAt: time.Now()}, nil
}
