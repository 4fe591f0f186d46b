package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"prodir/internal/platform/postgres"
	"prodir/internal/profile/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

const profileColumns = `id, status, fields, region, category, prompt,
	rating_sum, reviews_count, avg_rating, created_at, updated_at`

// PostgresStore persists profiles in PostgreSQL. Every method runs on the
// transaction carried by ctx when there is one.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Profile) error {
	stampCreated(p)
	fields, err := json.Marshal(p.Fields)
	if err != nil {
		return fmt.Errorf("marshal profile fields: %w", err)
	}
	_, err = postgres.Conn(ctx, s.pool).Exec(ctx, `
		INSERT INTO profiles (id, status, fields, region, category, prompt,
			rating_sum, reviews_count, avg_rating, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.UUID(p.ID), string(p.Status), fields, p.Region, p.Category, p.Prompt,
		p.RatingSum, p.ReviewsCount, p.AvgRating, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id domain.ProfileID) (*models.Profile, error) {
	row := postgres.Conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, uuid.UUID(id))
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

// CompareAndSetStatus is a single conditional UPDATE. When no row changes
// a follow-up existence probe separates ErrNotFound from ErrConflict.
func (s *PostgresStore) CompareAndSetStatus(ctx context.Context, id domain.ProfileID, expected, next models.Status, now time.Time) (*models.Profile, error) {
	db := postgres.Conn(ctx, s.pool)
	row := db.QueryRow(ctx, `
		UPDATE profiles SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+profileColumns,
		uuid.UUID(id), string(expected), string(next), now,
	)
	p, err := scanProfile(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update profile status: %w", err)
	}
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, uuid.UUID(id)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("probe profile: %w", err)
	}
	if !exists {
		return nil, sentinel.ErrNotFound
	}
	return nil, sentinel.ErrConflict
}

// Execute locks the row, validates the current record and writes the
// mutated one. It opens its own transaction unless ctx already carries one.
func (s *PostgresStore) Execute(ctx context.Context, id domain.ProfileID, validate func(*models.Profile) error, mutate func(*models.Profile)) (*models.Profile, error) {
	var out *models.Profile
	err := postgres.NewTxRunner(s.pool).RunInTx(ctx, func(ctx context.Context) error {
		db := postgres.Conn(ctx, s.pool)
		current, err := scanProfile(db.QueryRow(ctx,
			`SELECT `+profileColumns+` FROM profiles WHERE id = $1 FOR UPDATE`, uuid.UUID(id)))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("lock profile: %w", err)
		}
		if err := validate(current.Clone()); err != nil {
			return err
		}
		mutate(current)
		fields, err := json.Marshal(current.Fields)
		if err != nil {
			return fmt.Errorf("marshal profile fields: %w", err)
		}
		_, err = db.Exec(ctx, `
			UPDATE profiles SET status = $2, fields = $3, region = $4, category = $5, updated_at = $6
			WHERE id = $1`,
			uuid.UUID(id), string(current.Status), fields, current.Region, current.Category, current.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.ProfileID) error {
	tag, err := postgres.Conn(ctx, s.pool).Exec(ctx, `DELETE FROM profiles WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// ApplyRating increments the aggregate in one statement; concurrent callers
// serialize on the row lock and each sees the other's increment.
func (s *PostgresStore) ApplyRating(ctx context.Context, id domain.ProfileID, rating int, now time.Time) (models.RatingStats, error) {
	var stats models.RatingStats
	err := postgres.Conn(ctx, s.pool).QueryRow(ctx, `
		UPDATE profiles
		SET rating_sum = rating_sum + $2,
			reviews_count = reviews_count + 1,
			avg_rating = (rating_sum + $2)::float8 / (reviews_count + 1),
			updated_at = $3
		WHERE id = $1
		RETURNING avg_rating, reviews_count`,
		uuid.UUID(id), rating, now,
	).Scan(&stats.AvgRating, &stats.ReviewsCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.RatingStats{}, sentinel.ErrNotFound
		}
		return models.RatingStats{}, fmt.Errorf("apply rating: %w", err)
	}
	return stats, nil
}

// List is a keyset query: rows strictly after the cursor in
// (created_at desc, id desc) order, at most limit of them.
func (s *PostgresStore) List(ctx context.Context, filter models.ListFilter, after *pagination.Cursor, limit int) ([]*models.Profile, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.Region != "" {
		where = append(where, "region = "+arg(filter.Region))
	}
	if filter.Category != "" {
		where = append(where, "category = "+arg(filter.Category))
	}
	if filter.Status != "" {
		where = append(where, "status = "+arg(string(filter.Status)))
	}
	if after != nil {
		cursorID, err := uuid.Parse(after.ID)
		if err != nil {
			return nil, fmt.Errorf("cursor id: %w", err)
		}
		where = append(where, fmt.Sprintf("(created_at, id) < (%s, %s)", arg(after.At), arg(cursorID)))
	}
	query := `SELECT ` + profileColumns + ` FROM profiles`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ` + arg(limit)

	rows, err := postgres.Conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	var out []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var (
		p      models.Profile
		id     uuid.UUID
		status string
		fields []byte
	)
	if err := row.Scan(&id, &status, &fields, &p.Region, &p.Category, &p.Prompt,
		&p.RatingSum, &p.ReviewsCount, &p.AvgRating, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = domain.ProfileID(id)
	p.Status = models.Status(status)
	if err := json.Unmarshal(fields, &p.Fields); err != nil {
		return nil, fmt.Errorf("unmarshal profile fields: %w", err)
	}
	p.Fields = normalizeDecoded(p.Fields)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// normalizeDecoded turns JSON string arrays back into []string so records
// read from the database compare equal to the ones written.
func normalizeDecoded(f models.Fields) models.Fields {
	if f == nil {
		return models.Fields{}
	}
	for k, v := range f {
		list, ok := v.([]any)
		if !ok {
			continue
		}
		strs := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				strs = nil
				break
			}
			strs = append(strs, s)
		}
		if strs != nil {
			f[k] = strs
		}
	}
	return f
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
