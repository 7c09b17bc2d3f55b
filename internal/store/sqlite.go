package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

// Timestamps are stored as unix milliseconds so range predicates compare numerically.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id                 TEXT PRIMARY KEY,
    plan_name               TEXT NOT NULL DEFAULT 'Free' CHECK (plan_name IN ('Free', 'Pro')),
    is_active               INTEGER NOT NULL DEFAULT 0,
    valid_till              INTEGER,
    used_meal_planner       INTEGER NOT NULL DEFAULT 0,
    used_analyze_food       INTEGER NOT NULL DEFAULT 0,
    used_get_recipe         INTEGER NOT NULL DEFAULT 0,
    last_used_analyze_food  INTEGER,
    customer_id             TEXT NOT NULL DEFAULT '',
    gateway_subscription_id TEXT NOT NULL DEFAULT '',
    gateway_payment_id      TEXT NOT NULL DEFAULT '',
    created_at              INTEGER NOT NULL,
    updated_at              INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry ON subscriptions(plan_name, is_active, valid_till);
`

type sqliteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the entitlement database at path and ensures
// the schema exists.
func OpenSQLite(path string) (*Repository, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite entitlement db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	repo := newRepository(&sqliteBackend{db: db})
	if err := repo.EnsureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return repo, nil
}

func (s *sqliteBackend) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return s.db.QueryRowContext(ctx, query, args...)
}

func (s *sqliteBackend) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *sqliteBackend) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *sqliteBackend) scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub                  domain.Subscription
		plan                 string
		validTill, lastUsed  sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&sub.UserID,
		&plan,
		&sub.IsActive,
		&validTill,
		&sub.UsedMealPlanner,
		&sub.UsedAnalyzeFood,
		&sub.UsedGetRecipe,
		&lastUsed,
		&sub.CustomerID,
		&sub.GatewaySubscriptionID,
		&sub.GatewayPaymentID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.PlanName = domain.PlanName(plan)
	sub.ValidTill = nullableTime(validTill)
	sub.LastUsedAnalyzeFood = nullableTime(lastUsed)
	sub.CreatedAt = time.UnixMilli(createdAt).UTC()
	sub.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &sub, nil
}

func (s *sqliteBackend) isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func (s *sqliteBackend) placeholder(int) string {
	return "?"
}

func (s *sqliteBackend) timeArg(t time.Time) any {
	return t.UnixMilli()
}

func (s *sqliteBackend) boolArg(b bool) any {
	if b {
		return 1
	}
	return 0
}

func (s *sqliteBackend) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return err
}

func (s *sqliteBackend) ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *sqliteBackend) close() error {
	return s.db.Close()
}

func nullableTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}
