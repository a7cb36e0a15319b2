package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/leadline/leadline/adapters/clock"
	"github.com/leadline/leadline/adapters/jsonfile"
	"github.com/leadline/leadline/app"
	"github.com/leadline/leadline/domain/quota"
	"github.com/leadline/leadline/ports"
)

// failingQuotaStore always errors, simulating a full disk.
type failingQuotaStore struct{}

func (failingQuotaStore) RecordHit(context.Context, string, quota.Kind, int) (quota.Decision, error) {
	return quota.Decision{}, errors.New("disk full")
}

func (failingQuotaStore) Count(context.Context, string, quota.Kind) (int, error) {
	return 0, errors.New("disk full")
}

func TestQuotaService_EndToEndFreePlanContactDay(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	store := jsonfile.NewQuotaStore(t.TempDir(), clk, zerolog.Nop())
	svc := app.NewQuotaService(app.QuotaDeps{Quotas: store, Logger: zerolog.Nop()}, true)
	ctx := context.Background()
	user := ports.User{ID: "u1", Plan: "free"}

	// free plan: contact_daily = 6.
	for i := 1; i <= 6; i++ {
		d, err := svc.Hit(ctx, user, quota.KindContactDaily)
		if err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
		if !d.Allowed {
			t.Fatalf("hit %d rejected, want allowed", i)
		}
	}

	d, err := svc.Hit(ctx, user, quota.KindContactDaily)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("7th hit admitted, want rejected")
	}
	if d.RetryAfter <= 0 {
		t.Fatalf("retryAfter = %d, want positive", d.RetryAfter)
	}

	// Past UTC midnight the ledger starts over.
	clk.Advance(time.Duration(d.RetryAfter) * time.Second)
	d, err = svc.Hit(ctx, user, quota.KindContactDaily)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("hit after midnight rejected, want allowed")
	}
}

func TestQuotaService_UnknownPlanMetersAtFreeTier(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	store := jsonfile.NewQuotaStore(t.TempDir(), clk, zerolog.Nop())
	svc := app.NewQuotaService(app.QuotaDeps{Quotas: store, Logger: zerolog.Nop()}, true)
	ctx := context.Background()
	user := ports.User{ID: "u1", Plan: "platinum"} // No such tier.

	allowed := 0
	for i := 0; i < 10; i++ {
		d, err := svc.Hit(ctx, user, quota.KindContactDaily)
		if err != nil {
			t.Fatal(err)
		}
		if d.Allowed {
			allowed++
		}
	}
	if allowed != 6 {
		t.Errorf("allowed %d hits on unknown plan, want free-tier 6", allowed)
	}
}

func TestQuotaService_PlansGetDistinctCeilings(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 3, 10, 18, 0, 0, 0, time.UTC))
	store := jsonfile.NewQuotaStore(t.TempDir(), clk, zerolog.Nop())
	svc := app.NewQuotaService(app.QuotaDeps{Quotas: store, Logger: zerolog.Nop()}, true)
	ctx := context.Background()

	// pro allows 50 daily contacts; the free user's ledger is separate.
	pro := ports.User{ID: "pro1", Plan: "pro"}
	free := ports.User{ID: "free1", Plan: "free"}

	for i := 0; i < 7; i++ {
		if d, _ := svc.Hit(ctx, pro, quota.KindContactDaily); !d.Allowed {
			t.Fatalf("pro hit %d rejected", i+1)
		}
	}
	for i := 0; i < 6; i++ {
		if d, _ := svc.Hit(ctx, free, quota.KindContactDaily); !d.Allowed {
			t.Fatalf("free hit %d rejected", i+1)
		}
	}
	if d, _ := svc.Hit(ctx, free, quota.KindContactDaily); d.Allowed {
		t.Error("free user exceeded ceiling")
	}
}

func TestQuotaService_FailOpenAdmitsOnStoreFailure(t *testing.T) {
	svc := app.NewQuotaService(app.QuotaDeps{Quotas: failingQuotaStore{}, Logger: zerolog.Nop()}, true)

	d, err := svc.Hit(context.Background(), ports.User{ID: "u1", Plan: "free"}, quota.KindContactDaily)
	if err != nil {
		t.Fatalf("fail-open returned error: %v", err)
	}
	if !d.Allowed {
		t.Error("fail-open rejected the hit")
	}
}

func TestQuotaService_FailClosedSurfacesUnavailability(t *testing.T) {
	svc := app.NewQuotaService(app.QuotaDeps{Quotas: failingQuotaStore{}, Logger: zerolog.Nop()}, false)

	_, err := svc.Hit(context.Background(), ports.User{ID: "u1", Plan: "free"}, quota.KindContactDaily)
	if !errors.Is(err, app.ErrQuotaUnavailable) {
		t.Errorf("err = %v, want ErrQuotaUnavailable", err)
	}
}
