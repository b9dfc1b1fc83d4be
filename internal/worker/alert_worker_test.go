package worker

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"budgetwatch/internal/amqp"
	"budgetwatch/internal/log"
	"budgetwatch/internal/mailer"
	"budgetwatch/internal/storage"
)

type fakeAlertStore struct {
	alerts    map[int64]storage.Alert
	delivered []int64
	failed    []int64
}

func newFakeAlertStore(alerts ...storage.Alert) *fakeAlertStore {
	m := make(map[int64]storage.Alert)
	for _, a := range alerts {
		m[a.ID] = a
	}
	return &fakeAlertStore{alerts: m}
}

func (f *fakeAlertStore) GetAlert(_ context.Context, id int64) (storage.Alert, error) {
	a, ok := f.alerts[id]
	if !ok {
		return storage.Alert{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeAlertStore) ListPendingAlerts(_ context.Context, limit int) ([]storage.Alert, error) {
	var out []storage.Alert
	for _, a := range f.alerts {
		if a.DeliveryStatus != storage.DeliveryDelivered && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeAlertStore) MarkAlertDelivered(_ context.Context, id int64) error {
	a := f.alerts[id]
	a.DeliveryStatus = storage.DeliveryDelivered
	f.alerts[id] = a
	f.delivered = append(f.delivered, id)
	return nil
}

func (f *fakeAlertStore) MarkAlertDeliveryError(_ context.Context, id int64) error {
	a := f.alerts[id]
	a.DeliveryStatus = storage.DeliveryError
	f.alerts[id] = a
	f.failed = append(f.failed, id)
	return nil
}

type fakeSender struct {
	budget  []mailer.BudgetAlert
	anomaly []mailer.AnomalyAlert
	err     error
}

func (f *fakeSender) SendBudgetAlert(_ context.Context, a mailer.BudgetAlert) error {
	if f.err != nil {
		return f.err
	}
	f.budget = append(f.budget, a)
	return nil
}

func (f *fakeSender) SendAnomalyAlert(_ context.Context, a mailer.AnomalyAlert) error {
	if f.err != nil {
		return f.err
	}
	f.anomaly = append(f.anomaly, a)
	return nil
}

func testLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError})
}

func budgetAlert(id int64) storage.Alert {
	return storage.Alert{
		ID:             id,
		Kind:           storage.AlertKindBudget,
		Category:       "food",
		PeriodStart:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		ActualCents:    11000,
		LimitCents:     10000,
		OverageCents:   1000,
		DeliveryStatus: storage.DeliveryPending,
	}
}

func TestHandleAlertMessageBudget(t *testing.T) {
	store := newFakeAlertStore(budgetAlert(1))
	sender := &fakeSender{}
	w := NewAlertWorker(store, sender, 10, testLogger())

	msg := amqp.NewAlertMessage(1, storage.AlertKindBudget)
	if err := w.HandleAlertMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleAlertMessage() error = %v", err)
	}

	if len(sender.budget) != 1 {
		t.Fatalf("sent %d budget emails, want 1", len(sender.budget))
	}
	got := sender.budget[0]
	if got.Category != "food" || got.Overage.Cents != 1000 {
		t.Errorf("budget email = %+v, want food with 1000 overage", got)
	}
	if len(store.delivered) != 1 || store.delivered[0] != 1 {
		t.Errorf("delivered = %v, want [1]", store.delivered)
	}
}

func TestHandleAlertMessageAnomaly(t *testing.T) {
	store := newFakeAlertStore(storage.Alert{
		ID:             2,
		Kind:           storage.AlertKindAnomaly,
		Category:       "electronics",
		PeriodStart:    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC),
		ActualCents:    250000,
		DeliveryStatus: storage.DeliveryPending,
	})
	sender := &fakeSender{}
	w := NewAlertWorker(store, sender, 10, testLogger())

	msg := amqp.NewAlertMessage(2, storage.AlertKindAnomaly)
	if err := w.HandleAlertMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleAlertMessage() error = %v", err)
	}

	if len(sender.anomaly) != 1 {
		t.Fatalf("sent %d anomaly emails, want 1", len(sender.anomaly))
	}
	if sender.anomaly[0].Amount.Cents != 250000 {
		t.Errorf("anomaly amount = %d, want 250000", sender.anomaly[0].Amount.Cents)
	}
}

func TestHandleAlertMessageMissingAlert(t *testing.T) {
	w := NewAlertWorker(newFakeAlertStore(), &fakeSender{}, 10, testLogger())

	// Missing rows are dropped, not requeued.
	msg := amqp.NewAlertMessage(99, storage.AlertKindBudget)
	if err := w.HandleAlertMessage(context.Background(), msg); err != nil {
		t.Errorf("HandleAlertMessage() error = %v, want nil for missing alert", err)
	}
}

func TestHandleAlertMessageAlreadyDelivered(t *testing.T) {
	a := budgetAlert(1)
	a.DeliveryStatus = storage.DeliveryDelivered
	store := newFakeAlertStore(a)
	sender := &fakeSender{}
	w := NewAlertWorker(store, sender, 10, testLogger())

	msg := amqp.NewAlertMessage(1, storage.AlertKindBudget)
	if err := w.HandleAlertMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleAlertMessage() error = %v", err)
	}
	if len(sender.budget) != 0 {
		t.Errorf("sent %d emails for delivered alert, want 0", len(sender.budget))
	}
}

func TestHandleAlertMessageSendFailure(t *testing.T) {
	store := newFakeAlertStore(budgetAlert(1))
	sender := &fakeSender{err: errors.New("smtp down")}
	w := NewAlertWorker(store, sender, 10, testLogger())

	msg := amqp.NewAlertMessage(1, storage.AlertKindBudget)
	if err := w.HandleAlertMessage(context.Background(), msg); err == nil {
		t.Fatal("HandleAlertMessage() error = nil, want send failure")
	}

	if len(store.failed) != 1 || store.failed[0] != 1 {
		t.Errorf("failed = %v, want [1]", store.failed)
	}
	if len(store.delivered) != 0 {
		t.Errorf("delivered = %v, want none", store.delivered)
	}
}

func TestHandleAlertMessageUnknownKind(t *testing.T) {
	a := budgetAlert(1)
	a.Kind = "mystery"
	store := newFakeAlertStore(a)
	w := NewAlertWorker(store, &fakeSender{}, 10, testLogger())

	msg := amqp.NewAlertMessage(1, "mystery")
	if err := w.HandleAlertMessage(context.Background(), msg); err == nil {
		t.Error("HandleAlertMessage() error = nil, want unknown kind failure")
	}
}

func TestProcessPendingAlerts(t *testing.T) {
	delivered := budgetAlert(3)
	delivered.DeliveryStatus = storage.DeliveryDelivered
	store := newFakeAlertStore(budgetAlert(1), budgetAlert(2), delivered)
	sender := &fakeSender{}
	w := NewAlertWorker(store, sender, 10, testLogger())

	if err := w.ProcessPendingAlerts(context.Background()); err != nil {
		t.Fatalf("ProcessPendingAlerts() error = %v", err)
	}
	if len(sender.budget) != 2 {
		t.Errorf("sent %d emails, want 2", len(sender.budget))
	}
	if len(store.delivered) != 2 {
		t.Errorf("delivered %d alerts, want 2", len(store.delivered))
	}
}

func TestProcessPendingAlertsEmpty(t *testing.T) {
	w := NewAlertWorker(newFakeAlertStore(), &fakeSender{}, 10, testLogger())

	if err := w.ProcessPendingAlerts(context.Background()); err != nil {
		t.Errorf("ProcessPendingAlerts() error = %v, want nil", err)
	}
}

func TestProcessPendingAlertsReportsFailures(t *testing.T) {
	store := newFakeAlertStore(budgetAlert(1))
	w := NewAlertWorker(store, &fakeSender{err: errors.New("smtp down")}, 10, testLogger())

	if err := w.ProcessPendingAlerts(context.Background()); err == nil {
		t.Error("ProcessPendingAlerts() error = nil, want failure summary")
	}
}
