package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS subscriptions (
    user_id                 TEXT PRIMARY KEY,
    plan_name               TEXT NOT NULL DEFAULT 'Free' CHECK (plan_name IN ('Free', 'Pro')),
    is_active               BOOLEAN NOT NULL DEFAULT FALSE,
    valid_till              TIMESTAMPTZ,
    used_meal_planner       BOOLEAN NOT NULL DEFAULT FALSE,
    used_analyze_food       BOOLEAN NOT NULL DEFAULT FALSE,
    used_get_recipe         BOOLEAN NOT NULL DEFAULT FALSE,
    last_used_analyze_food  TIMESTAMPTZ,
    customer_id             TEXT NOT NULL DEFAULT '',
    gateway_subscription_id TEXT NOT NULL DEFAULT '',
    gateway_payment_id      TEXT NOT NULL DEFAULT '',
    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_subscriptions_expiry
    ON subscriptions (valid_till)
    WHERE plan_name = 'Pro' AND is_active = TRUE;
`

type postgresBackend struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by a pgx connection pool.
func NewPostgresRepository(pool *pgxpool.Pool) *Repository {
	return newRepository(&postgresBackend{pool: pool})
}

func (p *postgresBackend) queryRow(ctx context.Context, query string, args ...any) rowScanner {
	return p.pool.QueryRow(ctx, query, args...)
}

func (p *postgresBackend) queryStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (p *postgresBackend) exec(ctx context.Context, query string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *postgresBackend) scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub  domain.Subscription
		plan string
	)
	err := row.Scan(
		&sub.UserID,
		&plan,
		&sub.IsActive,
		&sub.ValidTill,
		&sub.UsedMealPlanner,
		&sub.UsedAnalyzeFood,
		&sub.UsedGetRecipe,
		&sub.LastUsedAnalyzeFood,
		&sub.CustomerID,
		&sub.GatewaySubscriptionID,
		&sub.GatewayPaymentID,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.PlanName = domain.PlanName(plan)
	return &sub, nil
}

func (p *postgresBackend) isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func (p *postgresBackend) placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}

func (p *postgresBackend) timeArg(t time.Time) any {
	return t.UTC()
}

func (p *postgresBackend) boolArg(b bool) any {
	return b
}

func (p *postgresBackend) ensureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, postgresSchema)
	return err
}

func (p *postgresBackend) ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *postgresBackend) close() error {
	p.pool.Close()
	return nil
}
