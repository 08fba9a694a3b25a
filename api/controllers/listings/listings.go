package listings

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	internallistings "github.com/angelmondragon/marketplace-backend/internal/listings"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/visibility"
)

const (
	photosField       = "photos"
	multipartMemory   = 8 << 20
	listingIDParamKey = "listingId"
)

// StreamOptions tunes the event-stream endpoints.
type StreamOptions struct {
	Heartbeat time.Duration
	Metrics   *metrics.Marketplace
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable")
}

// List returns approved listings matching the query filter.
func List(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		filter, err := visibility.ParseFilter(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListApproved(r.Context(), filter, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Stream pushes the approved listings matching the query filter on every
// listing change.
func Stream(svc internallistings.Service, opts StreamOptions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		filter, err := visibility.ParseFilter(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		s, err := svc.WatchApproved(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		defer opts.Metrics.StreamOpened("listings_approved")()
		responses.WriteStream(r.Context(), logg, w, s, opts.Heartbeat)
	}
}

// Get returns one listing. Pending and rejected listings are only visible
// to their owner and to admins.
func Get(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		id, err := validators.ParseUUIDParam(r, listingIDParamKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

// Mine pages through the caller's own listings in every status.
func Mine(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMine(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// Create accepts a multipart submission: the listing fields as form values
// and up to the configured number of files under "photos".
func Create(svc internallistings.Service, cfg config.ListingsConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		if limit := cfg.MaxUploadBytes(); limit > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.InvalidInput("body", fmt.Sprintf("upload exceeds %d MB", cfg.MaxUploadMB)))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		defer func() {
			_ = r.MultipartForm.RemoveAll()
		}()

		input, err := parseCreateForm(r.MultipartForm, cfg.MaxPhotoBytes())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listing)
	}
}

func parseCreateForm(form *multipart.Form, maxPhotoBytes int64) (internallistings.CreateInput, error) {
	value := func(key string) string {
		if vs := form.Value[key]; len(vs) > 0 {
			return strings.TrimSpace(vs[0])
		}
		return ""
	}

	input := internallistings.CreateInput{
		Title:       validators.SanitizeString(value("title"), 120),
		Description: value("description"),
		Condition:   enums.ListingCondition(strings.ToLower(value("condition"))),
	}
	if loc := validators.SanitizeString(value("location"), 120); loc != "" {
		input.Location = &loc
	}

	rawPrice := value("price")
	if rawPrice == "" {
		return input, pkgerrors.InvalidInput("price", "price is required")
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return input, pkgerrors.InvalidInput("price", "price must be a number")
	}
	input.Price = price

	if raw := value("category_id"); raw != "" {
		categoryID, err := uuid.Parse(raw)
		if err != nil {
			return input, pkgerrors.InvalidInput("category_id", "must be a valid uuid")
		}
		input.CategoryID = categoryID
	}

	for _, header := range form.File[photosField] {
		photo, err := readPhoto(header, maxPhotoBytes)
		if err != nil {
			return input, err
		}
		input.Photos = append(input.Photos, photo)
	}

	if err := validators.ValidateStruct(input); err != nil {
		return input, err
	}
	return input, nil
}

func readPhoto(header *multipart.FileHeader, maxBytes int64) (internallistings.PhotoUpload, error) {
	if maxBytes > 0 && header.Size > maxBytes {
		return internallistings.PhotoUpload{}, pkgerrors.InvalidInput(photosField, fmt.Sprintf("%s is larger than %d MB", header.Filename, maxBytes>>20))
	}

	f, err := header.Open()
	if err != nil {
		return internallistings.PhotoUpload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable photo")
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return internallistings.PhotoUpload{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable photo")
	}

	return internallistings.PhotoUpload{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// AdminList pages through listings, optionally narrowed to one status.
func AdminList(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		var status *enums.ListingStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			parsed, err := enums.ParseListingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.InvalidInput("status", err.Error()))
				return
			}
			status = &parsed
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListAll(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

// AdminPending is the moderation queue, newest first.
func AdminPending(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminPendingStream(svc internallistings.Service, opts StreamOptions, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		s, err := svc.WatchPending(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		defer opts.Metrics.StreamOpened("listings_pending")()
		responses.WriteStream(r.Context(), logg, w, s, opts.Heartbeat)
	}
}

// AdminModerate applies an approve or reject decision.
func AdminModerate(svc internallistings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}

		id, err := validators.ParseUUIDParam(r, listingIDParamKey)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body internallistings.ModerationInput
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithListingID(ctx, id.String())
		}
		listing, err := svc.Moderate(ctx, id, body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}
