package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ragstack/corpora/internal/core"
	"github.com/ragstack/corpora/internal/models"
)

type ProjectService struct {
	db   core.DbClient
	docs *DocumentService
}

func NewProjectService(db core.DbClient, docs *DocumentService) *ProjectService {
	return &ProjectService{db: db, docs: docs}
}

func (s *ProjectService) Create(ctx context.Context, userID, name, description string) (*models.Project, error) {
	if name == "" {
		return nil, errors.New("project name is required")
	}
	p := &models.Project{
		ID:          uuid.NewString(),
		UserID:      userID,
		Name:        name,
		Description: description,
	}
	if err := s.db.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	p, err := s.db.GetProjectByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	return p, nil
}

func (s *ProjectService) ListByUser(ctx context.Context, userID string) ([]models.Project, error) {
	return s.db.ListProjectsByUser(ctx, userID)
}

// Delete removes the project and every document under it, including stored
// objects and keyword index entries.
func (s *ProjectService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	docs, err := s.db.ListDocumentsByProject(ctx, id)
	if err != nil {
		return err
	}
	for _, d := range docs {
		if err := s.docs.Delete(ctx, d.ID); err != nil {
			return fmt.Errorf("delete document %s: %w", d.ID, err)
		}
	}
	return s.db.DeleteProject(ctx, id)
}
