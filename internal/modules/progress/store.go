// README: Progress run store; stages/events/order ids round-trip as jsonb.
package progress

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"flashfood/internal/storage"
	"flashfood/internal/types"
)

type Store struct {
	db *storage.TxManager
}

func NewStore(db *storage.TxManager) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, r *Run) error {
	stages, events, orderIDs, err := marshalRun(r)
	if err != nil {
		return err
	}
	_, err = s.db.From(ctx).Exec(ctx, `
		INSERT INTO driver_progress_runs (
			id, driver_id, current_state, previous_state,
			stages, order_ids, events, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		string(r.ID), string(r.DriverID), string(r.CurrentState), statePtr(r.PreviousState),
		stages, orderIDs, events, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store.Create run: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, r *Run) error {
	stages, events, orderIDs, err := marshalRun(r)
	if err != nil {
		return err
	}
	tag, err := s.db.From(ctx).Exec(ctx, `
		UPDATE driver_progress_runs
		SET current_state = $1,
		    previous_state = $2,
		    stages = $3,
		    order_ids = $4,
		    events = $5,
		    updated_at = NOW()
		WHERE id = $6`,
		string(r.CurrentState), statePtr(r.PreviousState), stages, orderIDs, events, string(r.ID),
	)
	if err != nil {
		return fmt.Errorf("store.Update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Run, error) {
	row := s.db.From(ctx).QueryRow(ctx, `
		SELECT id, driver_id, current_state, previous_state,
		       stages, order_ids, events, created_at, updated_at
		FROM driver_progress_runs
		WHERE id = $1`, string(id),
	)
	return scanRun(row)
}

// ActiveByDriver returns the driver's run with current_state other than
// delivery_complete; ErrNotFound when the driver has no active run.
func (s *Store) ActiveByDriver(ctx context.Context, driverID types.ID) (*Run, error) {
	row := s.db.From(ctx).QueryRow(ctx, `
		SELECT id, driver_id, current_state, previous_state,
		       stages, order_ids, events, created_at, updated_at
		FROM driver_progress_runs
		WHERE driver_id = $1 AND current_state <> $2`,
		string(driverID), string(StateDeliveryComplete),
	)
	return scanRun(row)
}

func scanRun(row pgx.Row) (*Run, error) {
	var r Run
	var prev sql.NullString
	var stages, orderIDs, events []byte
	err := row.Scan(
		&r.ID, &r.DriverID, &r.CurrentState, &prev,
		&stages, &orderIDs, &events, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if prev.Valid {
		p := State(prev.String)
		r.PreviousState = &p
	}
	if err := json.Unmarshal(stages, &r.Stages); err != nil {
		return nil, fmt.Errorf("unmarshal stages: %w", err)
	}
	if err := json.Unmarshal(orderIDs, &r.OrderIDs); err != nil {
		return nil, fmt.Errorf("unmarshal order ids: %w", err)
	}
	if err := json.Unmarshal(events, &r.Events); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}
	return &r, nil
}

func marshalRun(r *Run) (stages, events, orderIDs []byte, err error) {
	if stages, err = json.Marshal(r.Stages); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal stages: %w", err)
	}
	if events, err = json.Marshal(r.Events); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal events: %w", err)
	}
	if orderIDs, err = json.Marshal(r.OrderIDs); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal order ids: %w", err)
	}
	return stages, events, orderIDs, nil
}

func statePtr(s *State) *string {
	if s == nil {
		return nil
	}
	v := string(*s)
	return &v
}
