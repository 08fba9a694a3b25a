package listings

import (
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const defaultPhotoName = "photo"

// PhotoUpload is one file of a listing submission.
type PhotoUpload struct {
	Name        string
	ContentType string
	Data        []byte
}

// photoPath builds listings/<owner>/<unix-ms>_<index>_<name>. The index keeps
// same-named photos of one upload apart.
func photoPath(owner uuid.UUID, at time.Time, index int, name string) string {
	return fmt.Sprintf("listings/%s/%d_%d_%s", owner, at.UnixMilli(), index, sanitizePhotoName(name))
}

func sanitizePhotoName(name string) string {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return defaultPhotoName
	}
	return out
}

// photoContentType trusts the declared type when it is an image, otherwise
// sniffs the bytes.
func photoContentType(p PhotoUpload) string {
	declared := strings.ToLower(strings.TrimSpace(p.ContentType))
	if strings.HasPrefix(declared, "image/") {
		return declared
	}
	return http.DetectContentType(p.Data)
}

func validatePhotos(photos []PhotoUpload, maxCount int, maxBytes int64) error {
	if maxCount > 0 && len(photos) > maxCount {
		return pkgerrors.InvalidInput("photos", fmt.Sprintf("at most %d photos are allowed", maxCount))
	}
	for _, p := range photos {
		if len(p.Data) == 0 {
			return pkgerrors.InvalidInput("photos", "photo "+sanitizePhotoName(p.Name)+" is empty")
		}
		if maxBytes > 0 && int64(len(p.Data)) > maxBytes {
			return pkgerrors.InvalidInput("photos", "photo "+sanitizePhotoName(p.Name)+" is too large")
		}
		if !strings.HasPrefix(photoContentType(p), "image/") {
			return pkgerrors.InvalidInput("photos", "photo "+sanitizePhotoName(p.Name)+" is not an image")
		}
	}
	return nil
}
