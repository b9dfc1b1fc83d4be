package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"budgetwatch/internal/core"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCreateAndListExpenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	expenses := []core.Expense{
		{Date: core.NewDate(2024, 1, 5), Description: "groceries", Amount: core.Money{Cents: 5000}, Category: "food"},
		{Date: core.NewDate(2024, 1, 20), Description: "dinner", Amount: core.Money{Cents: 6000}, Category: "food"},
		{Date: core.NewDate(2024, 2, 2), Description: "train", Amount: core.Money{Cents: 2500}, Category: "travel"},
	}
	for _, e := range expenses {
		if _, err := repo.CreateExpense(ctx, e); err != nil {
			t.Fatalf("CreateExpense() error = %v", err)
		}
	}

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListExpenses(ctx, jan, feb)
	if err != nil {
		t.Fatalf("ListExpenses() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("january expenses = %d, want 2", len(got))
	}
	if got[0].Description != "groceries" || got[0].Amount.Cents != 5000 {
		t.Errorf("first expense = %+v", got[0])
	}
	if !got[0].Date.Equal(core.NewDate(2024, 1, 5).Time) {
		t.Errorf("date round-trip = %v", got[0].Date)
	}

	all, err := repo.ListAllExpenses(ctx)
	if err != nil {
		t.Fatalf("ListAllExpenses() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all expenses = %d, want 3", len(all))
	}
}

func TestBudgetUpsertListDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := core.BudgetLimit{Category: "food", Period: core.PeriodMonthly, Limit: core.Money{Cents: 10000}}
	if err := repo.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget() error = %v", err)
	}

	// Upsert with a new limit replaces, not duplicates.
	b.Limit = core.Money{Cents: 20000}
	if err := repo.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget() update error = %v", err)
	}

	budgets, err := repo.ListBudgets(ctx)
	if err != nil {
		t.Fatalf("ListBudgets() error = %v", err)
	}
	if len(budgets) != 1 {
		t.Fatalf("budgets = %d, want 1", len(budgets))
	}
	if budgets[0].Limit.Cents != 20000 {
		t.Errorf("limit = %d, want 20000", budgets[0].Limit.Cents)
	}

	if err := repo.DeleteBudget(ctx, "food", core.PeriodMonthly); err != nil {
		t.Fatalf("DeleteBudget() error = %v", err)
	}
	if err := repo.DeleteBudget(ctx, "food", core.PeriodMonthly); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestAlertLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := Alert{
		Kind:         AlertKindBudget,
		Category:     "food",
		PeriodStart:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		ActualCents:  11000,
		LimitCents:   10000,
		OverageCents: 1000,
	}
	id, err := repo.InsertAlert(ctx, a)
	if err != nil {
		t.Fatalf("InsertAlert() error = %v", err)
	}

	got, err := repo.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.DeliveryStatus != DeliveryPending {
		t.Errorf("status = %q, want pending", got.DeliveryStatus)
	}
	if got.OverageCents != 1000 || got.Category != "food" {
		t.Errorf("alert round-trip = %+v", got)
	}
	if !got.PeriodStart.Equal(a.PeriodStart) || !got.PeriodEnd.Equal(a.PeriodEnd) {
		t.Errorf("window round-trip = [%v, %v)", got.PeriodStart, got.PeriodEnd)
	}

	pending, err := repo.ListPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingAlerts() error = %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v, want the inserted alert", pending)
	}

	if err := repo.MarkAlertDelivered(ctx, id); err != nil {
		t.Fatalf("MarkAlertDelivered() error = %v", err)
	}
	got, err = repo.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("GetAlert() after delivery error = %v", err)
	}
	if got.DeliveryStatus != DeliveryDelivered {
		t.Errorf("status = %q, want delivered", got.DeliveryStatus)
	}
	if got.DeliveredAt.IsZero() {
		t.Error("delivered_at should be set")
	}

	pending, err = repo.ListPendingAlerts(ctx, 10)
	if err != nil {
		t.Fatalf("ListPendingAlerts() error = %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending after delivery = %d, want 0", len(pending))
	}
}

func TestMarkAlertDeliveryError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id, err := repo.InsertAlert(ctx, Alert{
		Kind:        AlertKindAnomaly,
		Category:    "shopping",
		PeriodStart: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		PeriodEnd:   time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC),
		ActualCents: 99000,
	})
	if err != nil {
		t.Fatalf("InsertAlert() error = %v", err)
	}
	if err := repo.MarkAlertDeliveryError(ctx, id); err != nil {
		t.Fatalf("MarkAlertDeliveryError() error = %v", err)
	}
	got, err := repo.GetAlert(ctx, id)
	if err != nil {
		t.Fatalf("GetAlert() error = %v", err)
	}
	if got.DeliveryStatus != DeliveryError {
		t.Errorf("status = %q, want error", got.DeliveryStatus)
	}
}

func TestHasAlertForWindow(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	exists, err := repo.HasAlertForWindow(ctx, AlertKindBudget, "food", start, end)
	if err != nil {
		t.Fatalf("HasAlertForWindow() error = %v", err)
	}
	if exists {
		t.Fatal("no alert inserted yet")
	}

	if _, err := repo.InsertAlert(ctx, Alert{
		Kind: AlertKindBudget, Category: "food",
		PeriodStart: start, PeriodEnd: end,
		ActualCents: 11000, LimitCents: 10000, OverageCents: 1000,
	}); err != nil {
		t.Fatalf("InsertAlert() error = %v", err)
	}

	exists, err = repo.HasAlertForWindow(ctx, AlertKindBudget, "food", start, end)
	if err != nil {
		t.Fatalf("HasAlertForWindow() error = %v", err)
	}
	if !exists {
		t.Fatal("alert for window should be found")
	}

	// Different category or kind does not match.
	exists, _ = repo.HasAlertForWindow(ctx, AlertKindBudget, "travel", start, end)
	if exists {
		t.Fatal("travel window should not match")
	}
	exists, _ = repo.HasAlertForWindow(ctx, AlertKindAnomaly, "food", start, end)
	if exists {
		t.Fatal("anomaly kind should not match")
	}
}

func TestGetAlertNotFound(t *testing.T) {
	repo := newTestRepo(t)
	if _, err := repo.GetAlert(context.Background(), 12345); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
