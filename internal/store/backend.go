package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/StephenStolk/nutriapp-sub001/internal/domain"
)

const subscriptionColumns = `user_id, plan_name, is_active, valid_till,
        used_meal_planner, used_analyze_food, used_get_recipe, last_used_analyze_food,
        customer_id, gateway_subscription_id, gateway_payment_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// backend hides the driver differences between pgx and database/sql so the
// repository can issue the same statements against either database.
type backend interface {
	queryRow(ctx context.Context, query string, args ...any) rowScanner
	queryStrings(ctx context.Context, query string, args ...any) ([]string, error)
	exec(ctx context.Context, query string, args ...any) (int64, error)
	scanSubscription(row rowScanner) (*domain.Subscription, error)
	isNoRows(err error) bool

	placeholder(n int) string
	timeArg(t time.Time) any
	boolArg(b bool) any

	ensureSchema(ctx context.Context) error
	ping(ctx context.Context) error
	close() error
}

// argList numbers placeholders in the order arguments are appended.
type argList struct {
	b    backend
	args []any
}

func (a *argList) add(v any) string {
	a.args = append(a.args, v)
	return a.b.placeholder(len(a.args))
}

type column struct {
	name  string
	value any
}

// patchColumns lists the columns a patch writes, in a stable order.
func patchColumns(b backend, patch domain.SubscriptionPatch) []column {
	var cols []column
	if patch.PlanName != nil {
		cols = append(cols, column{"plan_name", string(*patch.PlanName)})
	}
	if patch.IsActive != nil {
		cols = append(cols, column{"is_active", b.boolArg(*patch.IsActive)})
	}
	if patch.ClearValidTill {
		cols = append(cols, column{"valid_till", nil})
	} else if patch.ValidTill != nil {
		cols = append(cols, column{"valid_till", b.timeArg(*patch.ValidTill)})
	}
	if patch.UsedMealPlanner != nil {
		cols = append(cols, column{"used_meal_planner", b.boolArg(*patch.UsedMealPlanner)})
	}
	if patch.UsedAnalyzeFood != nil {
		cols = append(cols, column{"used_analyze_food", b.boolArg(*patch.UsedAnalyzeFood)})
	}
	if patch.UsedGetRecipe != nil {
		cols = append(cols, column{"used_get_recipe", b.boolArg(*patch.UsedGetRecipe)})
	}
	if patch.CustomerID != nil {
		cols = append(cols, column{"customer_id", *patch.CustomerID})
	}
	if patch.GatewaySubscriptionID != nil {
		cols = append(cols, column{"gateway_subscription_id", *patch.GatewaySubscriptionID})
	}
	if patch.GatewayPaymentID != nil {
		cols = append(cols, column{"gateway_payment_id", *patch.GatewayPaymentID})
	}
	return cols
}

// buildUpsert renders an INSERT ... ON CONFLICT (user_id) DO UPDATE that only
// touches the patched columns. Columns missing from the patch keep their
// stored value on update and their default on insert.
func buildUpsert(b backend, userID string, patch domain.SubscriptionPatch, now time.Time) (string, []any) {
	args := &argList{b: b}
	cols := patchColumns(b, patch)

	names := []string{"user_id"}
	values := []string{args.add(userID)}
	updates := make([]string, 0, len(cols)+1)
	for _, c := range cols {
		names = append(names, c.name)
		values = append(values, args.add(c.value))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c.name, c.name))
	}

	ts := b.timeArg(now)
	names = append(names, "created_at", "updated_at")
	values = append(values, args.add(ts), args.add(ts))
	updates = append(updates, "updated_at = EXCLUDED.updated_at")

	query := fmt.Sprintf(`
        INSERT INTO subscriptions (%s)
        VALUES (%s)
        ON CONFLICT (user_id) DO UPDATE SET
            %s
        RETURNING %s
    `, strings.Join(names, ", "), strings.Join(values, ", "), strings.Join(updates, ",\n            "), subscriptionColumns)
	return query, args.args
}

func buildFlagSet(b backend, userID string, feature domain.Feature, now time.Time) (string, []any) {
	args := &argList{b: b}
	flag := feature.UsageColumn()

	// Placeholders are never reused: SQLite binds each "?" to its own argument.
	sets := []string{fmt.Sprintf("%s = TRUE", flag)}
	sets = append(sets, "updated_at = "+args.add(b.timeArg(now)))
	if feature == domain.FeatureAnalyzeFood {
		sets = append(sets, "last_used_analyze_food = "+args.add(b.timeArg(now)))
	}

	query := fmt.Sprintf(`
        UPDATE subscriptions
        SET %s
        WHERE user_id = %s AND %s = FALSE
    `, strings.Join(sets, ", "), args.add(userID), flag)
	return query, args.args
}

func buildActivatePayment(b backend, userID, orderID, paymentID string, validTill, now time.Time) (string, []any) {
	args := &argList{b: b}
	query := fmt.Sprintf(`
        UPDATE subscriptions
        SET plan_name = %s, is_active = TRUE, valid_till = %s, gateway_payment_id = %s, updated_at = %s
        WHERE user_id = %s AND gateway_subscription_id = %s AND gateway_payment_id = ''
        RETURNING %s
    `,
		args.add(string(domain.PlanPro)),
		args.add(b.timeArg(validTill)),
		args.add(paymentID),
		args.add(b.timeArg(now)),
		args.add(userID),
		args.add(orderID),
		subscriptionColumns,
	)
	return query, args.args
}

func buildDeactivateExpired(b backend, now time.Time) (string, []any) {
	args := &argList{b: b}
	ts := args.add(b.timeArg(now))
	query := fmt.Sprintf(`
        UPDATE subscriptions
        SET is_active = FALSE, updated_at = %s
        WHERE plan_name = %s AND is_active = TRUE AND valid_till IS NOT NULL AND valid_till < %s
        RETURNING user_id
    `, ts, args.add(string(domain.PlanPro)), args.add(b.timeArg(now)))
	return query, args.args
}

// activeProClause matches a row that currently grants paid Pro access.
func activeProClause(args *argList, now time.Time) string {
	return fmt.Sprintf(
		"subscriptions.plan_name = %s AND subscriptions.is_active = TRUE AND subscriptions.valid_till IS NOT NULL AND subscriptions.valid_till >= %s",
		args.add(string(domain.PlanPro)), args.add(args.b.timeArg(now)),
	)
}

// buildOpenCheckout records a new pending Pro checkout. A row that currently
// grants Pro access keeps is_active and valid_till until the new payment is
// verified; any other row becomes pending.
func buildOpenCheckout(b backend, userID, customerID, orderID string, now time.Time) (string, []any) {
	args := &argList{b: b}
	ts := b.timeArg(now)

	values := strings.Join([]string{
		args.add(userID), args.add(string(domain.PlanPro)), "FALSE",
		args.add(customerID), args.add(orderID), "''",
		args.add(ts), args.add(ts),
	}, ", ")
	keepActive := activeProClause(args, now)
	keepValidTill := activeProClause(args, now)

	query := fmt.Sprintf(`
        INSERT INTO subscriptions (user_id, plan_name, is_active, customer_id,
            gateway_subscription_id, gateway_payment_id, created_at, updated_at)
        VALUES (%s)
        ON CONFLICT (user_id) DO UPDATE SET
            plan_name = EXCLUDED.plan_name,
            is_active = CASE WHEN %s THEN TRUE ELSE FALSE END,
            valid_till = CASE WHEN %s THEN subscriptions.valid_till ELSE NULL END,
            customer_id = EXCLUDED.customer_id,
            gateway_subscription_id = EXCLUDED.gateway_subscription_id,
            gateway_payment_id = EXCLUDED.gateway_payment_id,
            updated_at = EXCLUDED.updated_at
        RETURNING %s
    `, values, keepActive, keepValidTill, subscriptionColumns)
	return query, args.args
}

// buildSwitchToFree moves a row onto the active Free plan unless it currently
// grants Pro access, in which case nothing is written and nothing returned.
// Usage flags are only cleared for a row that has carried a paid period.
func buildSwitchToFree(b backend, userID string, now time.Time) (string, []any) {
	args := &argList{b: b}
	ts := b.timeArg(now)

	values := strings.Join([]string{
		args.add(userID), args.add(string(domain.PlanFree)), "TRUE", args.add(ts), args.add(ts),
	}, ", ")
	flags := make([]string, 0, 3)
	for _, column := range []string{"used_meal_planner", "used_analyze_food", "used_get_recipe"} {
		flags = append(flags, fmt.Sprintf(
			"%s = CASE WHEN subscriptions.plan_name = %s AND subscriptions.valid_till IS NOT NULL THEN FALSE ELSE subscriptions.%s END",
			column, args.add(string(domain.PlanPro)), column,
		))
	}
	activePro := activeProClause(args, now)

	query := fmt.Sprintf(`
        INSERT INTO subscriptions (user_id, plan_name, is_active, created_at, updated_at)
        VALUES (%s)
        ON CONFLICT (user_id) DO UPDATE SET
            %s,
            plan_name = EXCLUDED.plan_name,
            is_active = TRUE,
            valid_till = NULL,
            updated_at = EXCLUDED.updated_at
        WHERE NOT (%s)
        RETURNING %s
    `, values, strings.Join(flags, ",\n            "), activePro, subscriptionColumns)
	return query, args.args
}
