package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/clinic-core/internal/db"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func scanEvent(row pgx.Row) (Event, error) {
	var ev Event
	err := row.Scan(
		&ev.ID,
		&ev.RecipientID,
		&ev.EventType,
		&ev.Title,
		&ev.Body,
		&ev.RelatedEntityID,
		&ev.SenderID,
		&ev.CreatedAt,
		&ev.Attempts,
		&ev.LastError,
		&ev.DispatchedAt,
	)
	return ev, err
}

// Drain locks up to limit pending events with SKIP LOCKED so several workers
// can run side by side, hands each to deliver and records the outcome in the
// same transaction.
func (s *PgStore) Drain(ctx context.Context, limit, maxAttempts int, deliver func(context.Context, Event) error) (Result, error) {
	var res Result

	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, recipient_id, event_type, title, body, related_entity_id, sender_id,
			       created_at, attempts, last_error, dispatched_at
			FROM outbox_events
			WHERE dispatched_at IS NULL
			  AND attempts < $1
			ORDER BY id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		`, maxAttempts, limit)
		if err != nil {
			return fmt.Errorf("select pending events: %w", err)
		}

		var pending []Event
		for rows.Next() {
			ev, err := scanEvent(rows)
			if err != nil {
				rows.Close()
				return fmt.Errorf("scan event: %w", err)
			}
			pending = append(pending, ev)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, ev := range pending {
			if derr := deliver(ctx, ev); derr != nil {
				res.Failed++
				if _, err := tx.Exec(ctx, `
					UPDATE outbox_events SET attempts = attempts + 1, last_error = $2 WHERE id = $1
				`, ev.ID, derr.Error()); err != nil {
					return fmt.Errorf("record failed delivery: %w", err)
				}
				continue
			}
			res.Sent++
			if _, err := tx.Exec(ctx, `
				UPDATE outbox_events SET attempts = attempts + 1, dispatched_at = now(), last_error = NULL WHERE id = $1
			`, ev.ID); err != nil {
				return fmt.Errorf("mark event dispatched: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return res, nil
}

// Purge deletes dispatched events older than the retention window, in days.
func (s *PgStore) Purge(ctx context.Context, retentionDays int) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM outbox_events
		WHERE dispatched_at IS NOT NULL
		  AND dispatched_at < now() - make_interval(days => $1)
	`, retentionDays)
	if err != nil {
		return 0, fmt.Errorf("purge outbox: %w", err)
	}
	return tag.RowsAffected(), nil
}
