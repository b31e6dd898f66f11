// Package board serves kanban boards inside one tenant space.
package board

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/boardstack/boardstack/internal/tenantspace"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the board does not exist.
	ErrNotFound = errors.New("board: not found")

	// ErrInvalidName is returned for empty board names.
	ErrInvalidName = errors.New("board: invalid name")
)

const defaultColor = "#3B82F6"

type Service struct {
	spaces *tenantspace.Manager
	node   *snowflake.Node
	log    *zap.Logger
}

func NewService(spaces *tenantspace.Manager, node *snowflake.Node, log *zap.Logger) *Service {
	return &Service{spaces: spaces, node: node, log: log.Named("board")}
}

func (s *Service) List(ctx context.Context, slug string) ([]tenantspace.Board, error) {
	space, err := s.spaces.Open(ctx, slug)
	if err != nil {
		return nil, err
	}
	var boards []tenantspace.Board
	err = space.DB.WithContext(ctx).Order("created_at ASC").Find(&boards).Error
	if err != nil {
		return nil, err
	}
	return boards, nil
}

func (s *Service) Create(ctx context.Context, slug, name, color string) (*tenantspace.Board, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	color = strings.TrimSpace(color)
	if color == "" {
		color = defaultColor
	}

	space, err := s.spaces.Open(ctx, slug)
	if err != nil {
		return nil, err
	}
	created := tenantspace.Board{
		ID:        s.node.Generate(),
		Name:      name,
		Color:     color,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := space.DB.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	return &created, nil
}

// Delete removes the board and every task on it.
func (s *Service) Delete(ctx context.Context, slug string, id snowflake.ID) error {
	space, err := s.spaces.Open(ctx, slug)
	if err != nil {
		return err
	}
	return space.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing tenantspace.Board
		err := tx.First(&existing, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		if err := tx.Delete(&tenantspace.Task{}, "board_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&tenantspace.Board{}, "id = ?", id).Error
	})
}
