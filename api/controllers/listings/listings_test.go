package listings

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internallistings "github.com/angelmondragon/marketplace-backend/internal/listings"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
	"github.com/angelmondragon/marketplace-backend/pkg/visibility"
)

type stubListingService struct {
	created   *internallistings.CreateInput
	filter    visibility.Filter
	status    *enums.ListingStatus
	moderated *internallistings.ModerationInput
	getErr    error
}

func (s *stubListingService) Create(ctx context.Context, input internallistings.CreateInput) (*internallistings.ListingDTO, error) {
	s.created = &input
	return &internallistings.ListingDTO{ID: uuid.New(), Title: input.Title, Status: enums.ListingStatusPending}, nil
}

func (s *stubListingService) Get(ctx context.Context, id uuid.UUID) (*internallistings.ListingDTO, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return &internallistings.ListingDTO{ID: id}, nil
}

func (s *stubListingService) ListApproved(ctx context.Context, filter visibility.Filter, params pagination.Params) (pagination.Page[internallistings.ListingDTO], error) {
	s.filter = filter
	return pagination.Page[internallistings.ListingDTO]{Items: []internallistings.ListingDTO{}}, nil
}

func (s *stubListingService) ListMine(ctx context.Context, params pagination.Params) (pagination.Page[internallistings.ListingDTO], error) {
	return pagination.Page[internallistings.ListingDTO]{}, nil
}

func (s *stubListingService) ListPending(ctx context.Context, params pagination.Params) (pagination.Page[internallistings.ListingDTO], error) {
	return pagination.Page[internallistings.ListingDTO]{}, nil
}

func (s *stubListingService) ListAll(ctx context.Context, status *enums.ListingStatus, params pagination.Params) (pagination.Page[internallistings.ListingDTO], error) {
	s.status = status
	return pagination.Page[internallistings.ListingDTO]{}, nil
}

func (s *stubListingService) Moderate(ctx context.Context, id uuid.UUID, input internallistings.ModerationInput) (*internallistings.ListingDTO, error) {
	s.moderated = &input
	return &internallistings.ListingDTO{ID: id, Status: input.Decision}, nil
}

func (s *stubListingService) WatchApproved(ctx context.Context, filter visibility.Filter) (*stream.Stream[[]internallistings.ListingDTO], error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

func (s *stubListingService) WatchPending(ctx context.Context) (*stream.Stream[[]internallistings.ListingDTO], error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not used")
}

var listingsConfig = config.ListingsConfig{MaxPhotos: 4, MaxPhotoMB: 1, MaxUploadMB: 4}

func multipartBody(t *testing.T, fields map[string]string, photos map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, data := range photos {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="photos"; filename="`+name+`"`)
		h.Set("Content-Type", "image/png")
		part, err := mw.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return buf, mw.FormDataContentType()
}

func TestCreateParsesMultipartForm(t *testing.T) {
	svc := &stubListingService{}
	categoryID := uuid.New()
	body, contentType := multipartBody(t, map[string]string{
		"title":       "  Road bike  ",
		"description": "Aluminium frame, new tyres.",
		"price":       "149.90",
		"category_id": categoryID.String(),
		"condition":   "Used",
		"location":    "Lyon",
	}, map[string][]byte{"bike.png": []byte("\x89PNG\r\n\x1a\n")})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	Create(svc, listingsConfig, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotNil(t, svc.created)
	assert.Equal(t, "Road bike", svc.created.Title)
	assert.True(t, decimal.RequireFromString("149.90").Equal(svc.created.Price))
	assert.Equal(t, categoryID, svc.created.CategoryID)
	assert.Equal(t, enums.ListingConditionUsed, svc.created.Condition)
	require.NotNil(t, svc.created.Location)
	assert.Equal(t, "Lyon", *svc.created.Location)
	require.Len(t, svc.created.Photos, 1)
	assert.Equal(t, "bike.png", svc.created.Photos[0].Name)
	assert.Equal(t, "image/png", svc.created.Photos[0].ContentType)
}

func TestCreateRejectsBadPrice(t *testing.T) {
	svc := &stubListingService{}
	body, contentType := multipartBody(t, map[string]string{
		"title":       "Road bike",
		"description": "Aluminium frame, new tyres.",
		"price":       "cheap",
		"category_id": uuid.NewString(),
		"condition":   "used",
	}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	Create(svc, listingsConfig, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.created)
}

func TestCreateRejectsOversizedPhoto(t *testing.T) {
	svc := &stubListingService{}
	body, contentType := multipartBody(t, map[string]string{
		"title":       "Road bike",
		"description": "Aluminium frame, new tyres.",
		"price":       "10",
		"category_id": uuid.NewString(),
		"condition":   "used",
	}, map[string][]byte{"huge.png": bytes.Repeat([]byte{1}, 2<<20)})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	Create(svc, listingsConfig, nil).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, svc.created)
}

func TestListPassesFilter(t *testing.T) {
	svc := &stubListingService{}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/listings?condition=new&minPrice=100&maxPrice=200", nil)
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.filter.Condition)
	assert.Equal(t, enums.ListingConditionNew, *svc.filter.Condition)
	require.NotNil(t, svc.filter.MinPrice)
	assert.True(t, decimal.NewFromInt(100).Equal(*svc.filter.MinPrice))
	require.NotNil(t, svc.filter.MaxPrice)
	assert.True(t, decimal.NewFromInt(200).Equal(*svc.filter.MaxPrice))
}

func TestGetMapsNotFound(t *testing.T) {
	svc := &stubListingService{getErr: pkgerrors.NotFound("listing", "x")}
	r := chi.NewRouter()
	r.Get("/api/v1/listings/{listingId}", Get(svc, nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/"+uuid.NewString(), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/listings/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminListValidatesStatus(t *testing.T) {
	svc := &stubListingService{}

	rec := httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?status=archived", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	AdminList(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?status=rejected", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, svc.status)
	assert.Equal(t, enums.ListingStatusRejected, *svc.status)
}

func TestAdminModerateDecodesDecision(t *testing.T) {
	svc := &stubListingService{}
	r := chi.NewRouter()
	r.Post("/api/admin/v1/listings/{listingId}/moderation", AdminModerate(svc, nil))

	id := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/listings/"+id.String()+"/moderation", bytes.NewBufferString(`{"decision":"approved"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var envelope struct {
		Data internallistings.ListingDTO `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, id, envelope.Data.ID)
	assert.Equal(t, enums.ListingStatusApproved, envelope.Data.Status)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/v1/listings/"+id.String()+"/moderation", bytes.NewBufferString(`{"decision":"pending"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
