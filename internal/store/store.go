package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS reconciliation_cases (
	order_id          TEXT PRIMARY KEY,
	customer_ref      TEXT NOT NULL,
	committed_sellers TEXT[] NOT NULL,
	failed_sellers    TEXT[] NOT NULL,
	reason            TEXT NOT NULL DEFAULT '',
	trail             JSONB NOT NULL,
	resolved          BOOLEAN NOT NULL DEFAULT FALSE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// ReconciliationCase is a partial commit waiting for an operator
type ReconciliationCase struct {
	OrderID          string          `db:"order_id" json:"order_id"`
	CustomerRef      string          `db:"customer_ref" json:"customer_ref"`
	CommittedSellers pq.StringArray  `db:"committed_sellers" json:"committed_sellers"`
	FailedSellers    pq.StringArray  `db:"failed_sellers" json:"failed_sellers"`
	Reason           string          `db:"reason" json:"reason"`
	Trail            json.RawMessage `db:"trail" json:"trail"`
	Resolved         bool            `db:"resolved" json:"resolved"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the reconciliation table if it does not exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// RecordInconsistency stores a partial commit. Recording the same order twice is a no-op.
func (s *Store) RecordInconsistency(ctx context.Context, outcome *models.OrderOutcome) error {
	c, err := NewCase(outcome)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO reconciliation_cases (order_id, customer_ref, committed_sellers, failed_sellers, reason, trail)
		VALUES (:order_id, :customer_ref, :committed_sellers, :failed_sellers, :reason, :trail)
		ON CONFLICT (order_id) DO NOTHING`

	if _, err := s.db.NamedExecContext(ctx, query, c); err != nil {
		return fmt.Errorf("failed to record inconsistency for %s: %w", outcome.OrderID, err)
	}
	return nil
}

// GetCase retrieves one case by order id
func (s *Store) GetCase(ctx context.Context, orderID string) (*ReconciliationCase, error) {
	var c ReconciliationCase
	err := s.db.GetContext(ctx, &c, "SELECT * FROM reconciliation_cases WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("reconciliation case not found: %s", orderID)
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListCases returns unresolved cases, oldest first
func (s *Store) ListCases(ctx context.Context, limit int) ([]ReconciliationCase, error) {
	if limit <= 0 {
		limit = 100
	}
	var cases []ReconciliationCase
	err := s.db.SelectContext(ctx, &cases,
		"SELECT * FROM reconciliation_cases WHERE NOT resolved ORDER BY created_at LIMIT $1", limit)
	return cases, err
}

// ResolveCase marks a case as handled
func (s *Store) ResolveCase(ctx context.Context, orderID string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE reconciliation_cases SET resolved = TRUE WHERE order_id = $1", orderID)
	return err
}

// NewCase builds the row for an inconsistent outcome
func NewCase(outcome *models.OrderOutcome) (*ReconciliationCase, error) {
	trail, err := json.Marshal(outcome.Records)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal trail: %w", err)
	}

	var failed []string
	for _, r := range outcome.Records {
		if r.Status != models.ReservationCommitted {
			failed = append(failed, r.Seller)
		}
	}

	return &ReconciliationCase{
		OrderID:          outcome.OrderID,
		CustomerRef:      outcome.CustomerRef,
		CommittedSellers: pq.StringArray(nonNil(outcome.Sellers(models.ReservationCommitted))),
		FailedSellers:    pq.StringArray(nonNil(failed)),
		Reason:           outcome.Reason,
		Trail:            trail,
	}, nil
}

// nonNil keeps NOT NULL array columns happy
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
