package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"venue_booking_backend/internal/conversation/domain"
)

// Postgres stores each booking as one JSONB document with the step and thread
// state lifted into columns for listing.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a store on pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) Get(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	rec, _, err := r.load(ctx, id)
	return rec, err
}

func (r *Postgres) LoadForUpdate(ctx context.Context, id uuid.UUID) (*domain.Record, LockToken, error) {
	rec, version, err := r.load(ctx, id)
	if err != nil {
		return nil, LockToken{BookingID: id}, err
	}
	return rec, LockToken{BookingID: id, Version: version}, nil
}

func (r *Postgres) load(ctx context.Context, id uuid.UUID) (*domain.Record, int64, error) {
	var (
		doc     []byte
		version int64
	)
	err := r.pool.QueryRow(ctx,
		`SELECT record, version FROM bookings WHERE id = $1`, id,
	).Scan(&doc, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("load booking %s: %w", id, err)
	}

	var rec domain.Record
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, 0, fmt.Errorf("decode booking %s: %w", id, err)
	}
	return &rec, version, nil
}

func (r *Postgres) Save(ctx context.Context, rec *domain.Record, token LockToken) error {
	if rec.ID != token.BookingID {
		return fmt.Errorf("save booking %s: token issued for %s", rec.ID, token.BookingID)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode booking %s: %w", rec.ID, err)
	}

	var affected int64
	if token.IsNew() {
		tag, err := r.pool.Exec(ctx,
			`INSERT INTO bookings (id, current_step, thread_state, record, version, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, 1, $5, $6)
			 ON CONFLICT (id) DO NOTHING`,
			rec.ID, int(rec.CurrentStep), string(rec.ThreadState), doc, rec.CreatedAt, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert booking %s: %w", rec.ID, err)
		}
		affected = tag.RowsAffected()
	} else {
		tag, err := r.pool.Exec(ctx,
			`UPDATE bookings
			 SET current_step = $3, thread_state = $4, record = $5, version = version + 1, updated_at = $6
			 WHERE id = $1 AND version = $2`,
			rec.ID, token.Version, int(rec.CurrentStep), string(rec.ThreadState), doc, rec.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update booking %s: %w", rec.ID, err)
		}
		affected = tag.RowsAffected()
	}

	if affected == 0 {
		return ErrStaleLock
	}
	return nil
}

func (r *Postgres) ListByThreadState(ctx context.Context, state domain.ThreadState, limit int) ([]Summary, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, current_step, thread_state, version, updated_at
		 FROM bookings
		 WHERE thread_state = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		string(state), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Summary, 0)
	for rows.Next() {
		var (
			s      Summary
			step   int
			thread string
		)
		if err := rows.Scan(&s.ID, &step, &thread, &s.Version, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.CurrentStep = domain.Step(step)
		s.ThreadState = domain.ThreadState(thread)
		out = append(out, s)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}
