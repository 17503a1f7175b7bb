package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/downstream/internal/matrix"
)

// RunRecord is a stored run row.
type RunRecord struct {
	Token          string
	ConcurrencyKey string
	SpecHash       string
	Event          string
	Repository     string
	RunURL         string
	Superseded     bool
	CreatedAt      string
}

// Transition is a stored lifecycle transition.
type Transition struct {
	UnitKey string
	Seq     int64
	From    matrix.UnitState
	To      matrix.UnitState
}

// ErrRunNotFound is returned when a run token has no stored record.
var ErrRunNotFound = errors.New("run not found")

// ReadRun returns the run row for a token.
func (s *Store) ReadRun(ctx context.Context, token string) (RunRecord, error) {
	var (
		rec        RunRecord
		superseded int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT token, concurrency_key, spec_hash, event, repository, run_url, superseded, created_at
		FROM runs WHERE token = ?
	`, token).Scan(
		&rec.Token, &rec.ConcurrencyKey, &rec.SpecHash,
		&rec.Event, &rec.Repository, &rec.RunURL, &superseded, &rec.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%w: %s", ErrRunNotFound, token)
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run: %w", err)
	}
	rec.Superseded = superseded != 0
	return rec, nil
}

// LatestRunToken returns the most recently created run's token.
func (s *Store) LatestRunToken(ctx context.Context) (string, error) {
	var token string
	err := s.db.QueryRowContext(ctx, `
		SELECT token FROM runs ORDER BY created_at DESC, token DESC LIMIT 1
	`).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRunNotFound
	}
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	return token, nil
}

// ReadUnitResults returns the unit rows for a run with deterministic
// ordering: ORDER BY unit_key ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run has no units.
func (s *Store) ReadUnitResults(ctx context.Context, token string) ([]matrix.UnitResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_key, project, version, outcome, detail, output_tail
		FROM units
		WHERE run_token = ?
		ORDER BY unit_key COLLATE BINARY ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	results := []matrix.UnitResult{}
	for rows.Next() {
		var (
			res                    matrix.UnitResult
			key, project, version  string
			outcome                string
		)
		if err := rows.Scan(&key, &project, &version, &outcome, &res.Detail, &res.OutputTail); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		res.Unit = matrix.ExecutionUnit{
			Key:     key,
			Project: matrix.ProjectSpec{Name: project},
			Version: version,
		}
		res.Outcome = matrix.Outcome(outcome)
		results = append(results, res)
	}
	return results, rows.Err()
}

// ReadTransitions returns a run's transitions in logical-clock order.
func (s *Store) ReadTransitions(ctx context.Context, token string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit_key, seq, from_state, to_state
		FROM transitions
		WHERE run_token = ?
		ORDER BY seq ASC
	`, token)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var (
			tr       Transition
			from, to string
		)
		if err := rows.Scan(&tr.UnitKey, &tr.Seq, &from, &to); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.From = matrix.UnitState(from)
		tr.To = matrix.UnitState(to)
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ReadResult assembles the RunResult the aggregator consumes.
func (s *Store) ReadResult(ctx context.Context, token string) (matrix.RunResult, error) {
	if _, err := s.ReadRun(ctx, token); err != nil {
		return matrix.RunResult{}, err
	}
	units, err := s.ReadUnitResults(ctx, token)
	if err != nil {
		return matrix.RunResult{}, err
	}
	return matrix.RunResult{RunToken: token, Units: units}, nil
}
