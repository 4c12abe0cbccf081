package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"streamchat/internal/models"
)

var ErrNotFound = errors.New("guitar not found")

// Service reads the guitar inventory the assistant's tools expose.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// List returns every guitar ordered by id.
func (s *Service) List(ctx context.Context) ([]models.Guitar, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, shape, price, image FROM guitars ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list guitars: %w", err)
	}
	defer rows.Close()

	guitars := make([]models.Guitar, 0)
	for rows.Next() {
		var g models.Guitar
		if err := rows.Scan(&g.ID, &g.Name, &g.Description, &g.Shape, &g.Price, &g.Image); err != nil {
			return nil, fmt.Errorf("scan guitar: %w", err)
		}
		guitars = append(guitars, g)
	}
	return guitars, rows.Err()
}

// Get returns one guitar or ErrNotFound.
func (s *Service) Get(ctx context.Context, id int64) (*models.Guitar, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	var g models.Guitar
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, shape, price, image FROM guitars WHERE id = ?`, id,
	).Scan(&g.ID, &g.Name, &g.Description, &g.Shape, &g.Price, &g.Image)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get guitar: %w", err)
	}
	return &g, nil
}
