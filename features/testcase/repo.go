package testcase

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// NextID draws from a database sequence so ids stay unique across restarts
// and concurrent generation calls.
func (r *PostgresRepo) NextID(ctx context.Context) (string, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT nextval('test_case_number_seq')`).Scan(&n)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TC-%03d", n), nil
}

func (r *PostgresRepo) SaveBatch(ctx context.Context, cases []TestCase) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	insert := `INSERT INTO test_cases (id, feature, preconditions, scenario, steps, expected_result, grounded_in, risk, priority, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	for _, tc := range cases {
		groundedIn, err := json.Marshal(tc.GroundedIn)
		if err != nil {
			return fmt.Errorf("failed to encode citations: %w", err)
		}
		_, err = tx.ExecContext(ctx, insert,
			tc.TestID, tc.Feature, pq.Array(tc.Preconditions), tc.Scenario, pq.Array(tc.Steps),
			tc.ExpectedResult, groundedIn, tc.Risk, tc.Priority, tc.State,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*TestCase, error) {
	query := `SELECT id, feature, preconditions, scenario, steps, expected_result, grounded_in, risk, priority, state, created_at
		FROM test_cases WHERE id = $1`
	return scanTestCase(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) List(ctx context.Context, feature string) ([]TestCase, error) {
	query := `SELECT id, feature, preconditions, scenario, steps, expected_result, grounded_in, risk, priority, state, created_at
		FROM test_cases`
	args := []interface{}{}
	if feature != "" {
		query += ` WHERE feature ILIKE '%' || $1 || '%'`
		args = append(args, feature)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []TestCase
	for rows.Next() {
		tc, err := scanTestCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *tc)
	}
	return cases, rows.Err()
}

func (r *PostgresRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_cases`).Scan(&count)
	return count, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTestCase(row rowScanner) (*TestCase, error) {
	tc := &TestCase{}
	var groundedIn []byte
	err := row.Scan(&tc.TestID, &tc.Feature, pq.Array(&tc.Preconditions), &tc.Scenario, pq.Array(&tc.Steps),
		&tc.ExpectedResult, &groundedIn, &tc.Risk, &tc.Priority, &tc.State, &tc.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(groundedIn) > 0 {
		if err := json.Unmarshal(groundedIn, &tc.GroundedIn); err != nil {
			return nil, fmt.Errorf("failed to decode citations: %w", err)
		}
	}
	return tc, nil
}
