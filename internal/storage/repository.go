package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"budgetwatch/internal/core"

	_ "modernc.org/sqlite"
)

// dateLayout is how calendar dates are stored in SQLite.
const dateLayout = "2006-01-02"

// Alert delivery states.
const (
	DeliveryPending   = "pending"
	DeliveryDelivered = "delivered"
	DeliveryError     = "error"
)

// Alert kinds.
const (
	AlertKindBudget  = "budget"
	AlertKindAnomaly = "anomaly"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Alert is a persisted alert with its delivery state. Budget alerts carry
// the full evaluation window and overage; anomaly alerts use the expense
// date as a one-day window and leave limit and overage at zero.
type Alert struct {
	ID             int64
	Kind           string
	Category       string
	PeriodStart    time.Time
	PeriodEnd      time.Time
	ActualCents    int64
	LimitCents     int64
	OverageCents   int64
	DeliveryStatus string
	CreatedAt      time.Time
	DeliveredAt    time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// CreateExpense stores a validated expense and returns its ID.
func (r *SQLiteRepository) CreateExpense(ctx context.Context, e core.Expense) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO expenses (date, description, amount_cents, category) VALUES (?, ?, ?, ?)`,
		e.Date.Format(dateLayout), e.Description, e.Amount.Cents, e.Category)
	if err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("expense insert id: %w", err)
	}

	slog.InfoContext(ctx, "Expense saved",
		"id", id,
		"date", e.Date.Format(dateLayout),
		"amount_cents", e.Amount.Cents,
		"category", e.Category)

	return id, nil
}

// ListExpenses returns expenses dated inside [from, to), oldest first.
func (r *SQLiteRepository) ListExpenses(ctx context.Context, from, to time.Time) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date, description, amount_cents, category FROM expenses
		 WHERE date >= ? AND date < ? ORDER BY date, id`,
		from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

// ListAllExpenses returns the whole ledger, oldest first.
func (r *SQLiteRepository) ListAllExpenses(ctx context.Context) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT date, description, amount_cents, category FROM expenses ORDER BY date, id`)
	if err != nil {
		return nil, fmt.Errorf("list all expenses: %w", err)
	}
	defer rows.Close()
	return scanExpenses(rows)
}

func scanExpenses(rows *sql.Rows) ([]core.Expense, error) {
	var expenses []core.Expense
	for rows.Next() {
		var (
			dateStr     string
			description string
			cents       int64
			category    string
		)
		if err := rows.Scan(&dateStr, &description, &cents, &category); err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		d, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", dateStr, err)
		}
		expenses = append(expenses, core.Expense{
			Date:        core.Date{Time: d},
			Description: description,
			Amount:      core.Money{Cents: cents},
			Category:    category,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return expenses, nil
}

// UpsertBudget stores a budget limit, replacing any existing limit for the
// same category and period.
func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b core.BudgetLimit) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (category, period, limit_cents) VALUES (?, ?, ?)
		 ON CONFLICT (category, period) DO UPDATE SET limit_cents = excluded.limit_cents`,
		b.Category, string(b.Period), b.Limit.Cents)
	if err != nil {
		return fmt.Errorf("upsert budget: %w", err)
	}

	slog.InfoContext(ctx, "Budget limit saved",
		"category", b.Category,
		"period", string(b.Period),
		"limit_cents", b.Limit.Cents)

	return nil
}

// ListBudgets returns all configured budget limits.
func (r *SQLiteRepository) ListBudgets(ctx context.Context) ([]core.BudgetLimit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT category, period, limit_cents FROM budgets ORDER BY category, period`)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []core.BudgetLimit
	for rows.Next() {
		var (
			category string
			period   string
			cents    int64
		)
		if err := rows.Scan(&category, &period, &cents); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		budgets = append(budgets, core.BudgetLimit{
			Category: category,
			Period:   core.Period(period),
			Limit:    core.Money{Cents: cents},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate budgets: %w", err)
	}
	return budgets, nil
}

// DeleteBudget removes the limit for a category and period.
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, category string, period core.Period) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE category = ? AND period = ?`, category, string(period))
	if err != nil {
		return fmt.Errorf("delete budget: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("budget %s/%s: %w", category, period, ErrNotFound)
	}
	return nil
}

// InsertAlert persists an alert in the pending delivery state and returns
// its ID.
func (r *SQLiteRepository) InsertAlert(ctx context.Context, a Alert) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO alerts (kind, category, period_start, period_end, actual_cents, limit_cents, overage_cents, delivery_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Kind, a.Category,
		a.PeriodStart.Format(dateLayout), a.PeriodEnd.Format(dateLayout),
		a.ActualCents, a.LimitCents, a.OverageCents, DeliveryPending)
	if err != nil {
		return 0, fmt.Errorf("insert alert: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("alert insert id: %w", err)
	}

	slog.InfoContext(ctx, "Alert recorded",
		"id", id,
		"kind", a.Kind,
		"category", a.Category,
		"overage_cents", a.OverageCents)

	return id, nil
}

// GetAlert fetches a single alert by ID.
func (r *SQLiteRepository) GetAlert(ctx context.Context, id int64) (Alert, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, kind, category, period_start, period_end, actual_cents, limit_cents, overage_cents, delivery_status, created_at, delivered_at
		 FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Alert{}, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Alert{}, fmt.Errorf("get alert %d: %w", id, err)
	}
	return a, nil
}

// ListAlerts returns the most recent alerts, newest first.
func (r *SQLiteRepository) ListAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, category, period_start, period_end, actual_cents, limit_cents, overage_cents, delivery_status, created_at, delivered_at
		 FROM alerts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// ListPendingAlerts returns alerts awaiting delivery, oldest first.
func (r *SQLiteRepository) ListPendingAlerts(ctx context.Context, limit int) ([]Alert, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, kind, category, period_start, period_end, actual_cents, limit_cents, overage_cents, delivery_status, created_at, delivered_at
		 FROM alerts WHERE delivery_status = ? ORDER BY id LIMIT ?`, DeliveryPending, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending alerts: %w", err)
	}
	defer rows.Close()
	return scanAlerts(rows)
}

// HasAlertForWindow reports whether an alert of the given kind already
// exists for a category and period window, regardless of delivery state.
// Used to avoid re-alerting on every evaluation pass of the same window.
func (r *SQLiteRepository) HasAlertForWindow(ctx context.Context, kind, category string, periodStart, periodEnd time.Time) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM alerts WHERE kind = ? AND category = ? AND period_start = ? AND period_end = ?`,
		kind, category, periodStart.Format(dateLayout), periodEnd.Format(dateLayout)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check alert window: %w", err)
	}
	return n > 0, nil
}

// MarkAlertDelivered records a successful delivery.
func (r *SQLiteRepository) MarkAlertDelivered(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = ?, delivered_at = CURRENT_TIMESTAMP WHERE id = ?`,
		DeliveryDelivered, id)
	if err != nil {
		return fmt.Errorf("mark alert delivered: %w", err)
	}
	slog.InfoContext(ctx, "Alert marked as delivered", "id", id)
	return nil
}

// MarkAlertDeliveryError records a failed delivery attempt.
func (r *SQLiteRepository) MarkAlertDeliveryError(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE alerts SET delivery_status = ? WHERE id = ?`, DeliveryError, id)
	if err != nil {
		return fmt.Errorf("mark alert delivery error: %w", err)
	}
	slog.WarnContext(ctx, "Alert marked with delivery error", "id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (Alert, error) {
	var (
		a           Alert
		startStr    string
		endStr      string
		deliveredAt sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Kind, &a.Category, &startStr, &endStr,
		&a.ActualCents, &a.LimitCents, &a.OverageCents, &a.DeliveryStatus, &a.CreatedAt, &deliveredAt)
	if err != nil {
		return Alert{}, err
	}
	if a.PeriodStart, err = time.ParseInLocation(dateLayout, startStr, time.UTC); err != nil {
		return Alert{}, fmt.Errorf("parse period start %q: %w", startStr, err)
	}
	if a.PeriodEnd, err = time.ParseInLocation(dateLayout, endStr, time.UTC); err != nil {
		return Alert{}, fmt.Errorf("parse period end %q: %w", endStr, err)
	}
	if deliveredAt.Valid {
		a.DeliveredAt = deliveredAt.Time
	}
	return a, nil
}

func scanAlerts(rows *sql.Rows) ([]Alert, error) {
	var alerts []Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alerts: %w", err)
	}
	return alerts, nil
}
