package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"prodir/internal/platform/postgres"
	"prodir/internal/review/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/sentinel"
)

// PostgresStore persists reviews in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Append(ctx context.Context, r *models.Review) error {
	_, err := postgres.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO reviews (id, profile_id, rating, comment, author_id, author_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(r.ID), uuid.UUID(r.ProfileID), r.Rating, r.Comment, string(r.AuthorID), r.AuthorName, r.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23503":
				return sentinel.ErrNotFound
			case "23505":
				return sentinel.ErrConflict
			}
		}
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByProfile(ctx context.Context, profileID domain.ProfileID, offset, limit int) ([]*models.Review, error) {
	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, `
		SELECT id, profile_id, rating, comment, author_id, author_name, created_at
		FROM reviews
		WHERE profile_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		uuid.UUID(profileID), limit, max(offset, 0),
	)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	out := []*models.Review{}
	for rows.Next() {
		var (
			r        models.Review
			id, pid  uuid.UUID
			authorID string
		)
		if err := rows.Scan(&id, &pid, &r.Rating, &r.Comment, &authorID, &r.AuthorName, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		r.ID = domain.ReviewID(id)
		r.ProfileID = domain.ProfileID(pid)
		r.AuthorID = domain.UserID(authorID)
		r.CreatedAt = r.CreatedAt.UTC()
		out = append(out, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CountByProfile(ctx context.Context, profileID domain.ProfileID) (int, error) {
	var n int
	err := postgres.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT COUNT(*) FROM reviews WHERE profile_id = $1`, uuid.UUID(profileID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return n, nil
}
