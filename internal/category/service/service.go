package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"plugstore/internal/category"
)

const maxNameLength = 100

var (
	ErrCategoryNotFound = category.ErrNotFound
	ErrNameTaken        = category.ErrNameTaken
	ErrInvalidName      = errors.New("category name must be 1 to 100 characters")
)

type CategoryRepository interface {
	GetByID(ctx context.Context, id int64) (*category.Category, error)
	List(ctx context.Context) ([]*category.Category, error)
	Create(ctx context.Context, c *category.Category) error
	Update(ctx context.Context, c *category.Category) error
}

type Service struct {
	repo CategoryRepository
}

func NewService(repo CategoryRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, name string) (*category.Category, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	c := &category.Category{Name: name}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, err
	}
	log.Printf("CategoryService: category %q created (id %d)", c.Name, c.ID)
	return c, nil
}

// Rename меняет только название: товары и наборы ссылаются на id.
func (s *Service) Rename(ctx context.Context, id int64, name string) (*category.Category, error) {
	name, err := normalizeName(name)
	if err != nil {
		return nil, err
	}
	c := &category.Category{ID: id, Name: name}
	if err := s.repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*category.Category, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*category.Category, error) {
	categories, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []*category.Category{}
	}
	return categories, nil
}

func normalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}
