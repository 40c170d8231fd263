package booking

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/csfest/vendor-booking/internal/fault"
	"github.com/csfest/vendor-booking/internal/model"
	"github.com/csfest/vendor-booking/internal/queue"
	"github.com/csfest/vendor-booking/internal/repository"
	"github.com/csfest/vendor-booking/internal/store"
)

// fakePayments records the requested amount and can be told to fail.
type fakePayments struct {
	amountMinor int64
	calls       int
	err         error
}

func (f *fakePayments) CreateIntent(_ context.Context, amountMinor int64, _, _ string) (string, error) {
	f.calls++
	f.amountMinor = amountMinor
	if f.err != nil {
		return "", f.err
	}
	return "cs_fake_secret", nil
}

// memorySink collects published events in memory.
type memorySink struct {
	confirmed []queue.BookingConfirmedEvent
	orphaned  []queue.PaymentOrphanedEvent
}

func (s *memorySink) BookingConfirmed(_ context.Context, ev queue.BookingConfirmedEvent) error {
	s.confirmed = append(s.confirmed, ev)
	return nil
}

func (s *memorySink) PaymentOrphaned(_ context.Context, ev queue.PaymentOrphanedEvent) error {
	s.orphaned = append(s.orphaned, ev)
	return nil
}

var flowEditor = &model.Principal{Name: "ed", Email: "ed@test", Flags: []string{model.FlagEdit}}

func newTestFlow(t *testing.T, price float64) (*Flow, *repository.ReservationLedger, *fakePayments, *memorySink, *store.MemoryStore) {
	t.Helper()
	kv := store.NewMemoryStore()
	ledger := repository.NewReservationLedger(kv)
	reg := repository.NewSpotRegistry(kv, nil, ledger)
	spot := model.Spot{ID: "S100", Type: model.GeometryRect, X: 0, Y: 0, W: 100, H: 100, Price: price}
	if err := reg.Upsert(context.Background(), flowEditor, spot); err != nil {
		t.Fatalf("seed spot: %v", err)
	}
	pay := &fakePayments{}
	sink := &memorySink{}
	return NewFlow(reg, ledger, pay, sink, kv), ledger, pay, sink, kv
}

func fields() CustomerFields {
	return CustomerFields{Name: "Dana", Email: "dana@test", Phone: "555-0100", CompanyName: "Dana Crafts"}
}

func TestFlowOpenForm(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown spot", func(t *testing.T) {
		f, _, _, _, _ := newTestFlow(t, 100)
		if err := f.OpenForm(ctx, "S404"); !errors.Is(err, fault.ErrNotFound) {
			t.Errorf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("reserved spot refused", func(t *testing.T) {
		f, ledger, _, _, _ := newTestFlow(t, 100)
		if err := ledger.Reserve(ctx, model.Reservation{SpotID: "S100", CustomerName: "x", Email: "x@test"}); err != nil {
			t.Fatalf("seed reservation: %v", err)
		}
		if err := f.OpenForm(ctx, "S100"); !errors.Is(err, fault.ErrUnavailable) {
			t.Errorf("want ErrUnavailable, got %v", err)
		}
		if f.State() != Idle {
			t.Errorf("state %v, want Idle", f.State())
		}
	})

	t.Run("free spot opens the form", func(t *testing.T) {
		f, _, _, _, _ := newTestFlow(t, 100)
		if err := f.OpenForm(ctx, "S100"); err != nil {
			t.Fatalf("open: %v", err)
		}
		if f.State() != FormOpen {
			t.Errorf("state %v, want FormOpen", f.State())
		}
		if f.TotalAmount() != 100 {
			t.Errorf("total %v, want base price 100", f.TotalAmount())
		}
	})
}

func TestFlowTotals(t *testing.T) {
	ctx := context.Background()
	f, _, _, _, _ := newTestFlow(t, 50)
	if err := f.OpenForm(ctx, "S100"); err != nil {
		t.Fatalf("open: %v", err)
	}

	t.Run("addon adds its price", func(t *testing.T) {
		if err := f.ToggleAddon(model.Addon{Name: "Electricity", Price: 10}); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if got := f.TotalAmount(); got != 60 {
			t.Errorf("total %v, want 60", got)
		}
	})

	t.Run("toggling again removes it", func(t *testing.T) {
		if err := f.ToggleAddon(model.Addon{Name: "Electricity", Price: 10}); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		if got := f.TotalAmount(); got != 50 {
			t.Errorf("total %v, want 50", got)
		}
	})

	t.Run("nonprofit discounts the base only", func(t *testing.T) {
		if err := f.ToggleAddon(model.Addon{Name: "Table", Price: 15}); err != nil {
			t.Fatalf("toggle: %v", err)
		}
		f.SetNonprofit(true)
		// round(50*0.8) + 15
		if got := f.TotalAmount(); got != 55 {
			t.Errorf("total %v, want 55", got)
		}
		f.SetNonprofit(false)
		if got := f.TotalAmount(); got != 65 {
			t.Errorf("total %v, want 65", got)
		}
	})
}

func TestFlowSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("missing contact fields refused", func(t *testing.T) {
		f, _, pay, _, _ := newTestFlow(t, 100)
		_ = f.OpenForm(ctx, "S100")
		_, err := f.Submit(ctx, CustomerFields{Name: "Dana"})
		if !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
		if pay.calls != 0 {
			t.Error("provider must not be called on invalid input")
		}
	})

	t.Run("success moves to payment pending", func(t *testing.T) {
		f, _, pay, _, _ := newTestFlow(t, 100)
		_ = f.OpenForm(ctx, "S100")
		_ = f.ToggleAddon(model.Addon{Name: "Electricity", Price: 10})
		secret, err := f.Submit(ctx, fields())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if secret != "cs_fake_secret" {
			t.Errorf("secret %q", secret)
		}
		if pay.amountMinor != 11000 {
			t.Errorf("charged %d minor units, want 11000", pay.amountMinor)
		}
		if f.State() != PaymentPending {
			t.Errorf("state %v, want PaymentPending", f.State())
		}
	})

	t.Run("provider failure keeps the form editable", func(t *testing.T) {
		f, _, pay, _, _ := newTestFlow(t, 100)
		_ = f.OpenForm(ctx, "S100")
		pay.err = fault.Wrap(fault.ErrTransport, "gateway down")
		if _, err := f.Submit(ctx, fields()); !errors.Is(err, fault.ErrTransport) {
			t.Errorf("want ErrTransport, got %v", err)
		}
		if f.State() != Failed {
			t.Errorf("state %v, want Failed", f.State())
		}
		// Retry after the gateway recovers.
		pay.err = nil
		if _, err := f.Submit(ctx, fields()); err != nil {
			t.Fatalf("retry submit: %v", err)
		}
		if f.State() != PaymentPending {
			t.Errorf("state %v after retry, want PaymentPending", f.State())
		}
	})
}

func TestFlowCompletePayment(t *testing.T) {
	ctx := context.Background()

	t.Run("success records a paid reservation and publishes", func(t *testing.T) {
		f, ledger, _, sink, _ := newTestFlow(t, 50)
		_ = f.OpenForm(ctx, "S100")
		_ = f.ToggleAddon(model.Addon{Name: "Electricity", Price: 10})
		if _, err := f.Submit(ctx, fields()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if err := f.CompletePayment(ctx, "txn_1", nil); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if f.State() != Confirmed {
			t.Errorf("state %v, want Confirmed", f.State())
		}
		res, _ := ledger.Get(ctx, "S100")
		if res == nil {
			t.Fatal("no reservation recorded")
		}
		if !res.Paid || res.TransactionID != "txn_1" || res.TotalAmount != 60 {
			t.Errorf("reservation wrong: %+v", res)
		}
		if len(sink.confirmed) != 1 || sink.confirmed[0].SpotID != "S100" {
			t.Errorf("booking.confirmed not published: %+v", sink.confirmed)
		}
	})

	t.Run("payment error fails without touching the ledger", func(t *testing.T) {
		f, ledger, _, _, _ := newTestFlow(t, 50)
		_ = f.OpenForm(ctx, "S100")
		_, _ = f.Submit(ctx, fields())
		if err := f.CompletePayment(ctx, "", errors.New("card declined")); err != nil {
			t.Fatalf("complete: %v", err)
		}
		if f.State() != Failed {
			t.Errorf("state %v, want Failed", f.State())
		}
		if res, _ := ledger.Get(ctx, "S100"); res != nil {
			t.Error("failed payment must not reserve")
		}
	})

	t.Run("lost race records an orphaned charge", func(t *testing.T) {
		f, ledger, _, sink, kv := newTestFlow(t, 50)
		_ = f.OpenForm(ctx, "S100")
		_, _ = f.Submit(ctx, fields())

		// Someone else wins the spot while the charge is in flight.
		rival := model.Reservation{SpotID: "S100", CustomerName: "Eve", Email: "eve@test"}
		if err := ledger.Reserve(ctx, rival); err != nil {
			t.Fatalf("rival reserve: %v", err)
		}

		err := f.CompletePayment(ctx, "txn_2", nil)
		if !errors.Is(err, fault.ErrConflict) {
			t.Fatalf("want ErrConflict, got %v", err)
		}
		if !strings.Contains(err.Error(), "txn_2") {
			t.Errorf("conflict error should carry the transaction id: %v", err)
		}

		// The winner keeps the spot.
		res, _ := ledger.Get(ctx, "S100")
		if res == nil || res.CustomerName != "Eve" {
			t.Errorf("winner lost the spot: %+v", res)
		}

		// The charge is parked for reconciliation.
		raw, ok, _ := kv.GetItem(ctx, store.KeyOrphanedPayments)
		if !ok {
			t.Fatal("no orphaned payment recorded")
		}
		var orphans []map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &orphans); err != nil {
			t.Fatalf("orphan record corrupt: %v", err)
		}
		if len(orphans) != 1 || orphans[0]["transactionId"] != "txn_2" {
			t.Errorf("unexpected orphan record: %+v", orphans)
		}
		if len(sink.orphaned) != 1 {
			t.Errorf("payment.orphaned not published: %+v", sink.orphaned)
		}
	})

	t.Run("complete without pending payment refused", func(t *testing.T) {
		f, _, _, _, _ := newTestFlow(t, 50)
		if err := f.CompletePayment(ctx, "txn_3", nil); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("want ErrValidation, got %v", err)
		}
	})
}

func TestFlowAdminOps(t *testing.T) {
	ctx := context.Background()
	adminP := &model.Principal{Name: "op", Email: "op@test", Flags: []string{model.FlagAdmin}}

	t.Run("override requires admin", func(t *testing.T) {
		f, _, _, _, _ := newTestFlow(t, 50)
		err := f.AdminOverrideReserve(ctx, flowEditor, "S100", fields())
		if !errors.Is(err, fault.ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
	})

	t.Run("override reserves without payment", func(t *testing.T) {
		f, ledger, pay, _, _ := newTestFlow(t, 50)
		if err := f.AdminOverrideReserve(ctx, adminP, "S100", fields()); err != nil {
			t.Fatalf("override: %v", err)
		}
		if pay.calls != 0 {
			t.Error("override must not contact the payment provider")
		}
		res, _ := ledger.Get(ctx, "S100")
		if res == nil || !res.Paid || !strings.HasPrefix(res.TransactionID, "admin_") {
			t.Errorf("unexpected reservation: %+v", res)
		}
	})

	t.Run("release frees the spot for rebooking", func(t *testing.T) {
		f, ledger, _, _, _ := newTestFlow(t, 50)
		if err := f.AdminOverrideReserve(ctx, adminP, "S100", fields()); err != nil {
			t.Fatalf("override: %v", err)
		}
		if err := f.AdminRelease(ctx, adminP, "S100"); err != nil {
			t.Fatalf("release: %v", err)
		}
		if res, _ := ledger.Get(ctx, "S100"); res != nil {
			t.Error("reservation survived release")
		}
	})
}
