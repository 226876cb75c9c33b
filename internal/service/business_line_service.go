package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/adg-admissions-api/internal/models"
	appErrors "github.com/noah-isme/adg-admissions-api/pkg/errors"
	"github.com/noah-isme/adg-admissions-api/pkg/storage"
	"github.com/noah-isme/adg-admissions-api/pkg/validation"
)

type businessLineStore interface {
	List(ctx context.Context) ([]models.BusinessLine, error)
	FindByID(ctx context.Context, id string) (*models.BusinessLine, error)
	ExistsByTitle(ctx context.Context, title, excludeID string) (bool, error)
	Create(ctx context.Context, line *models.BusinessLine) error
	Update(ctx context.Context, line *models.BusinessLine) error
	Delete(ctx context.Context, id string) error
}

const businessLineCacheKey = "business_lines:all"

// BusinessLineService manages the business units learners apply to.
type BusinessLineService struct {
	repo       businessLineStore
	files      fileStore
	cache      *CacheService
	validator  *validation.Validator
	logoPolicy storage.UploadPolicy
	logger     *zap.Logger
}

// NewBusinessLineService constructs the service.
func NewBusinessLineService(repo businessLineStore, files fileStore, cache *CacheService, validate *validation.Validator, logoPolicy storage.UploadPolicy, logger *zap.Logger) *BusinessLineService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BusinessLineService{repo: repo, files: files, cache: cache, validator: validate, logoPolicy: logoPolicy, logger: logger}
}

// List returns all business lines ordered by title.
func (s *BusinessLineService) List(ctx context.Context) ([]models.BusinessLine, error) {
	var cached []models.BusinessLine
	if s.cache.Get(ctx, businessLineCacheKey, &cached) {
		return cached, nil
	}
	lines, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list business lines")
	}
	s.cache.Set(ctx, businessLineCacheKey, lines, 0)
	return lines, nil
}

// FindByID returns a single business line.
func (s *BusinessLineService) FindByID(ctx context.Context, id string) (*models.BusinessLine, error) {
	line, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "business line not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load business line")
	}
	return line, nil
}

// Create stores a business line. Titles are unique and a logo is required.
func (s *BusinessLineService) Create(ctx context.Context, req models.BusinessLineRequest, logo *storage.Upload) (*models.BusinessLine, error) {
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if logo == nil {
		return nil, validation.Fields(map[string]string{"logo": "logo is required"})
	}
	if err := s.ensureUniqueTitle(ctx, req.Title, ""); err != nil {
		return nil, err
	}
	stored, err := s.files.Store("business_lines", *logo, s.logoPolicy)
	if err != nil {
		return nil, uploadError("logo", err)
	}

	line := &models.BusinessLine{Title: req.Title, Description: req.Description, LogoPath: stored}
	if err := s.repo.Create(ctx, line); err != nil {
		s.deleteLogo(stored)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create business line")
	}
	s.cache.Invalidate(ctx, businessLineCacheKey)
	return line, nil
}

// Update edits a business line, replacing the logo when one is uploaded.
func (s *BusinessLineService) Update(ctx context.Context, id string, req models.BusinessLineRequest, logo *storage.Upload) (*models.BusinessLine, error) {
	line, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ensureUniqueTitle(ctx, req.Title, id); err != nil {
		return nil, err
	}

	staleLogo := ""
	if logo != nil {
		stored, err := s.files.Store("business_lines", *logo, s.logoPolicy)
		if err != nil {
			return nil, uploadError("logo", err)
		}
		staleLogo = line.LogoPath
		line.LogoPath = stored
	}
	line.Title = req.Title
	line.Description = req.Description

	if err := s.repo.Update(ctx, line); err != nil {
		if logo != nil {
			s.deleteLogo(line.LogoPath)
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "business line not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update business line")
	}
	s.deleteLogo(staleLogo)
	s.cache.Invalidate(ctx, businessLineCacheKey)
	return line, nil
}

// Delete removes a business line and its logo.
func (s *BusinessLineService) Delete(ctx context.Context, id string) error {
	line, err := s.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "business line not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete business line")
	}
	s.deleteLogo(line.LogoPath)
	s.cache.Invalidate(ctx, businessLineCacheKey)
	return nil
}

func (s *BusinessLineService) ensureUniqueTitle(ctx context.Context, title, excludeID string) error {
	exists, err := s.repo.ExistsByTitle(ctx, title, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check business line title")
	}
	if exists {
		return appErrors.WithFields(appErrors.Clone(appErrors.ErrConflict, "business line title already exists"), map[string]string{"title": "business line with this title already exists"})
	}
	return nil
}

func (s *BusinessLineService) deleteLogo(relPath string) {
	if relPath == "" || s.files == nil {
		return
	}
	if err := s.files.Delete(relPath); err != nil {
		s.logger.Warn("failed to delete logo", zap.String("path", relPath), zap.Error(err))
	}
}
