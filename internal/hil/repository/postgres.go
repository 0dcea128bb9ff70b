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
	"venue_booking_backend/internal/hil"
)

const taskColumns = `id, booking_id, step, kind, text, summary, signature, status, blocking,
	edited_text, notes, reviewer, created_at, decided_at`

// Postgres stores tasks in hil_tasks. A partial unique index on signature
// for pending rows makes enqueue idempotent across instances.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres returns a store on pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) InsertPending(ctx context.Context, task hil.Task) (hil.Task, bool, error) {
	summary, err := json.Marshal(task.Summary)
	if err != nil {
		return hil.Task{}, false, fmt.Errorf("encode task summary: %w", err)
	}

	tag, err := r.pool.Exec(ctx,
		`INSERT INTO hil_tasks (id, booking_id, step, kind, text, summary, signature, status, blocking, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8, $9)
		 ON CONFLICT (signature) WHERE status = 'pending' DO NOTHING`,
		task.ID, task.BookingID, int(task.Step), task.Type, task.Text, summary, task.Signature, task.Blocking, task.CreatedAt,
	)
	if err != nil {
		return hil.Task{}, false, fmt.Errorf("insert task: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return task, true, nil
	}

	existing, err := scanTask(r.pool.QueryRow(ctx,
		`SELECT `+taskColumns+` FROM hil_tasks WHERE signature = $1 AND status = 'pending'`,
		task.Signature,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		// Decided between the insert and the lookup; the draft is new again.
		return r.InsertPending(ctx, task)
	}
	if err != nil {
		return hil.Task{}, false, err
	}
	return existing, false, nil
}

func (r *Postgres) Get(ctx context.Context, id uuid.UUID) (hil.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM hil_tasks WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return hil.Task{}, hil.ErrTaskNotFound
	}
	return t, err
}

func (r *Postgres) ListPending(ctx context.Context, bookingID *uuid.UUID) ([]hil.Task, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+taskColumns+`
		 FROM hil_tasks
		 WHERE status = 'pending' AND ($1::uuid IS NULL OR booking_id = $1)
		 ORDER BY created_at ASC`,
		bookingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]hil.Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *Postgres) Decide(ctx context.Context, id uuid.UUID, d hil.Decision) (hil.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE hil_tasks
		 SET status = $2, edited_text = $3, notes = $4, reviewer = $5, decided_at = $6
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+taskColumns,
		id, string(d.Status), d.EditedText, d.Notes, d.Reviewer, d.At,
	))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return hil.Task{}, fmt.Errorf("decide task %s: %w", id, err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return hil.Task{}, err
	}
	return hil.Task{}, &hil.DecisionConflict{TaskID: id, Status: current.Status, DecidedAt: current.DecidedAt}
}

func (r *Postgres) Reopen(ctx context.Context, id uuid.UUID) (hil.Task, error) {
	t, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE hil_tasks
		 SET status = 'pending', edited_text = NULL, notes = '', reviewer = '', decided_at = NULL
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return hil.Task{}, hil.ErrTaskNotFound
	}
	if err != nil {
		return hil.Task{}, fmt.Errorf("reopen task %s: %w", id, err)
	}
	return t, nil
}

func scanTask(row pgx.Row) (hil.Task, error) {
	var (
		t       hil.Task
		step    int
		status  string
		summary []byte
	)
	err := row.Scan(&t.ID, &t.BookingID, &step, &t.Type, &t.Text, &summary, &t.Signature, &status,
		&t.Blocking, &t.EditedText, &t.Notes, &t.Reviewer, &t.CreatedAt, &t.DecidedAt)
	if err != nil {
		return hil.Task{}, err
	}
	t.Step = domain.Step(step)
	t.Status = hil.Status(status)
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &t.Summary); err != nil {
			return hil.Task{}, fmt.Errorf("decode task summary: %w", err)
		}
	}
	return t, nil
}
