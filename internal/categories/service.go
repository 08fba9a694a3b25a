package categories

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/db"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/stream"
)

type CategoryDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type CreateInput struct {
	Name        string  `json:"name" validate:"required,min=2,max=60"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=280"`
}

type categoryRepository interface {
	List(ctx context.Context) ([]models.Category, error)
	Create(ctx context.Context, category *models.Category) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type Service interface {
	List(ctx context.Context) ([]CategoryDTO, error)
	Create(ctx context.Context, input CreateInput) (*CategoryDTO, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo     categoryRepository
	notifier stream.Notifier
	logg     *logger.Logger
}

func NewService(repo categoryRepository, notifier stream.Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, errors.New("category repository required")
	}
	return &service{repo: repo, notifier: notifier, logg: logg}, nil
}

func (s *service) List(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.StoreUnavailable(err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for _, c := range rows {
		out = append(out, toDTO(c))
	}
	return out, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CategoryDTO, error) {
	if _, err := auth.RequireAdmin(ctx); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if len(name) < 2 {
		return nil, pkgerrors.InvalidInput("name", "name must be at least 2 characters")
	}
	category := &models.Category{Name: name}
	if input.Description != nil && strings.TrimSpace(*input.Description) != "" {
		desc := strings.TrimSpace(*input.Description)
		category.Description = &desc
	}
	if err := s.repo.Create(ctx, category); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "category already exists").
				WithDetails(map[string]any{"name": name})
		}
		return nil, pkgerrors.StoreUnavailable(err, "create category")
	}
	if err := stream.NotifyAll(ctx, s.notifier, stream.TopicCategories); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "category change notification failed")
	}
	dto := toDTO(*category)
	return &dto, nil
}

func (s *service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.repo.Exists(ctx, id)
	if err != nil {
		return false, pkgerrors.StoreUnavailable(err, "lookup category")
	}
	return ok, nil
}

func toDTO(c models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          c.ID,
		Name:        c.Name,
		Description: c.Description,
		CreatedAt:   c.CreatedAt,
	}
}
