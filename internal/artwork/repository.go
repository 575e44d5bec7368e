package artwork

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) List(ctx context.Context) ([]Artwork, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, artist_id, title, description, price_cents, image_url, created_at, updated_at
		FROM artworks
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query artworks: %w", err)
	}
	defer rows.Close()

	artworks := make([]Artwork, 0)
	for rows.Next() {
		var a Artwork
		if err := rows.Scan(&a.ID, &a.ArtistID, &a.Title, &a.Description, &a.PriceCents, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan artwork: %w", err)
		}
		artworks = append(artworks, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artworks: %w", err)
	}

	return artworks, nil
}

func (r *Repository) Get(ctx context.Context, id string) (Artwork, error) {
	var a Artwork
	err := r.db.QueryRowContext(ctx, `
		SELECT id, artist_id, title, description, price_cents, image_url, created_at, updated_at
		FROM artworks
		WHERE id = $1
	`, id).Scan(&a.ID, &a.ArtistID, &a.Title, &a.Description, &a.PriceCents, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Artwork{}, err
		}
		return Artwork{}, fmt.Errorf("query artwork: %w", err)
	}

	return a, nil
}

func (r *Repository) Create(ctx context.Context, artistID string, input ArtworkInput) (Artwork, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Artwork{}, fmt.Errorf("generate uuid v7: %w", err)
	}

	now := time.Now().UTC()
	a := Artwork{
		ID:          id.String(),
		ArtistID:    artistID,
		Title:       input.Title,
		Description: input.Description,
		PriceCents:  input.PriceCents,
		ImageURL:    input.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO artworks (id, artist_id, title, description, price_cents, image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.ArtistID, a.Title, a.Description, a.PriceCents, a.ImageURL, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return Artwork{}, fmt.Errorf("insert artwork: %w", err)
	}

	return a, nil
}

func (r *Repository) Update(ctx context.Context, id string, input ArtworkInput) (Artwork, error) {
	var a Artwork
	updatedAt := time.Now().UTC()

	err := r.db.QueryRowContext(ctx, `
		UPDATE artworks
		SET title = $2, description = $3, price_cents = $4, image_url = $5, updated_at = $6
		WHERE id = $1
		RETURNING id, artist_id, title, description, price_cents, image_url, created_at, updated_at
	`, id, input.Title, input.Description, input.PriceCents, input.ImageURL, updatedAt).
		Scan(&a.ID, &a.ArtistID, &a.Title, &a.Description, &a.PriceCents, &a.ImageURL, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Artwork{}, err
		}
		return Artwork{}, fmt.Errorf("update artwork: %w", err)
	}

	return a, nil
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM artworks WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete artwork: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	return nil
}
