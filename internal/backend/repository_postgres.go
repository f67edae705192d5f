package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/p-n-ai/pai-lessons/internal/responses"
)

const dbTimeout = 5 * time.Second

// PostgresRepository is a PostgreSQL-backed Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository on pool. The schema is created by
// database.Migrate.
func NewPostgresRepository(pool *pgxpool.Pool) (*PostgresRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresRepository{pool: pool}, nil
}

func (s *PostgresRepository) Upsert(ctx context.Context, userID, lessonID string, kind responses.Kind, r responses.Record) (responses.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	payload, err := json.Marshal(r.Payload)
	if err != nil {
		return responses.Record{}, fmt.Errorf("marshal payload: %w", err)
	}

	var id string
	err = s.pool.QueryRow(ctx,
		`INSERT INTO responses (id, user_id, lesson_id, kind, associated_activity,
		                        partial_response, time_spent, attempts_left, payload, updated_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, NOW())
		 ON CONFLICT (user_id, lesson_id, kind, associated_activity) DO UPDATE
		 SET partial_response = EXCLUDED.partial_response,
		     time_spent       = EXCLUDED.time_spent,
		     attempts_left    = EXCLUDED.attempts_left,
		     payload          = EXCLUDED.payload,
		     updated_at       = NOW()
		 RETURNING id::text`,
		uuid.NewString(),
		userID,
		lessonID,
		string(kind),
		r.AssociatedActivity,
		r.PartialResponse,
		r.TimeSpent,
		r.AttemptsLeft,
		string(payload),
	).Scan(&id)
	if err != nil {
		return responses.Record{}, fmt.Errorf("upsert response: %w", err)
	}

	stored := r.Clone()
	stored.ID = &id
	return stored, nil
}

func (s *PostgresRepository) List(ctx context.Context, userID, lessonID string, kind responses.Kind) ([]responses.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, lesson_id, kind, id::text, associated_activity, partial_response,
		        time_spent, attempts_left, payload, updated_at
		 FROM responses
		 WHERE user_id = $1 AND lesson_id = $2 AND kind = $3
		 ORDER BY associated_activity ASC`,
		userID, lessonID, string(kind),
	)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}

	stored, err := scanResponses(rows)
	if err != nil {
		return nil, err
	}
	out := make([]responses.Record, 0, len(stored))
	for _, row := range stored {
		out = append(out, row.Record)
	}
	return out, nil
}

func (s *PostgresRepository) ListLesson(ctx context.Context, userID, lessonID string) ([]StoredResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, lesson_id, kind, id::text, associated_activity, partial_response,
		        time_spent, attempts_left, payload, updated_at
		 FROM responses
		 WHERE user_id = $1 AND lesson_id = $2
		 ORDER BY kind ASC, associated_activity ASC`,
		userID, lessonID,
	)
	if err != nil {
		return nil, fmt.Errorf("query lesson responses: %w", err)
	}
	return scanResponses(rows)
}

func scanResponses(rows pgx.Rows) ([]StoredResponse, error) {
	defer rows.Close()

	var out []StoredResponse
	for rows.Next() {
		var (
			row     StoredResponse
			kind    string
			id      string
			payload []byte
		)
		if err := rows.Scan(
			&row.UserID,
			&row.LessonID,
			&kind,
			&id,
			&row.Record.AssociatedActivity,
			&row.Record.PartialResponse,
			&row.Record.TimeSpent,
			&row.Record.AttemptsLeft,
			&payload,
			&row.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan response: %w", err)
		}

		k, err := responses.ParseKind(kind)
		if err != nil {
			return nil, fmt.Errorf("scan response %s: %w", id, err)
		}
		p, err := responses.DecodePayload(k, payload)
		if err != nil {
			return nil, fmt.Errorf("decode payload %s: %w", id, err)
		}
		row.Kind = k
		row.Record.ID = &id
		row.Record.Payload = p
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate responses: %w", err)
	}
	return out, nil
}
