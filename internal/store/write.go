package store

import (
	"context"
	"fmt"

	"github.com/roach88/downstream/internal/gate"
	"github.com/roach88/downstream/internal/matrix"
)

// RunMeta identifies a run at creation time.
type RunMeta struct {
	Token          string
	ConcurrencyKey string
	SpecHash       string
	Context        gate.RunContext
}

// BeginRun records a new run and its expanded units, all still pending.
// Inserting the units up front means a superseded or crashed run still
// shows its full matrix, with empty outcomes for whatever never finished.
func (s *Store) BeginRun(ctx context.Context, meta RunMeta, units []matrix.ExecutionUnit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (token, concurrency_key, spec_hash, event, repository, run_url)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		meta.Token,
		meta.ConcurrencyKey,
		meta.SpecHash,
		string(meta.Context.Event),
		meta.Context.Repository,
		meta.Context.RunURL,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, u := range units {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO units (run_token, unit_key, project, version)
			VALUES (?, ?, ?, ?)
		`, meta.Token, u.Key, u.Project.Name, u.Version)
		if err != nil {
			return fmt.Errorf("insert unit %s: %w", u.Key, err)
		}
	}

	return tx.Commit()
}

// MarkSuperseded flags a run as abandoned by a newer run with the same
// concurrency key. In-flight work is simply dropped; nothing is rolled
// back.
func (s *Store) MarkSuperseded(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE runs SET superseded = 1 WHERE token = ?`, token)
	if err != nil {
		return fmt.Errorf("mark superseded: %w", err)
	}
	return nil
}

// WriteTransition appends one lifecycle transition for a unit. Seq comes
// from the engine's logical clock; (run_token, seq) is unique so the
// recorded trace has a total order.
func (s *Store) WriteTransition(ctx context.Context, token, unitKey string, seq int64, from, to matrix.UnitState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transitions (run_token, unit_key, seq, from_state, to_state)
		VALUES (?, ?, ?, ?, ?)
	`, token, unitKey, seq, string(from), string(to))
	if err != nil {
		return fmt.Errorf("write transition %s %s->%s: %w", unitKey, from, to, err)
	}
	return nil
}

// WriteUnitResult records a unit's terminal outcome.
func (s *Store) WriteUnitResult(ctx context.Context, token string, res matrix.UnitResult) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE units SET outcome = ?, detail = ?, output_tail = ?
		WHERE run_token = ? AND unit_key = ?
	`, string(res.Outcome), res.Detail, res.OutputTail, token, res.Unit.Key)
	if err != nil {
		return fmt.Errorf("write unit result %s: %w", res.Unit.Key, err)
	}
	return nil
}
