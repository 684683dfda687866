package storage

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/moviescrud/backend/internal/errs"
)

// ImageKind selects the limits and naming scheme of an uploaded image.
type ImageKind struct {
	Name     string
	Prefix   string
	MaxBytes int64
}

var (
	// Avatar images are attached to profiles.
	Avatar = ImageKind{Name: "avatar", Prefix: "avatars", MaxBytes: 2 << 20}
	// Portrait images are attached to movies.
	Portrait = ImageKind{Name: "movie", Prefix: "portraits", MaxBytes: 5 << 20}
)

var contentTypes = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// Image is a validated upload ready to be stored.
type Image struct {
	Key         string
	ContentType string
}

// PrepareImage validates the file name and size against kind and derives the
// object key <prefix>/<name>_<ownerID>_<unix ms>.<ext>.
func PrepareImage(kind ImageKind, ownerID, filename string, size int64, now time.Time) (Image, error) {
	if size <= 0 {
		return Image{}, errs.Validation("%s image is empty", kind.Name)
	}
	if size > kind.MaxBytes {
		return Image{}, errs.Validation("%s image must be at most %d MB", kind.Name, kind.MaxBytes>>20)
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	contentType, ok := contentTypes[ext]
	if !ok {
		return Image{}, errs.Validation("unsupported image type %q", ext)
	}

	name := fmt.Sprintf("%s_%s_%d.%s", kind.Name, ownerID, now.UnixMilli(), ext)
	return Image{Key: path.Join(kind.Prefix, name), ContentType: contentType}, nil
}
