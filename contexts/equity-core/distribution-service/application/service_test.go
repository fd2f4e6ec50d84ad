package application_test

import (
	"context"
	"errors"
	"testing"

	distributionservice "equitas/contexts/equity-core/distribution-service"
	"equitas/contexts/equity-core/distribution-service/application"
	"equitas/contexts/equity-core/distribution-service/domain/entities"
	domainerrors "equitas/contexts/equity-core/distribution-service/domain/errors"

	"github.com/shopspring/decimal"
)

func newModule() distributionservice.Module {
	profits := []entities.ProfitRecord{
		{ID: "p-1", CompanyID: "co-1", Period: "2026-Q2", DistributableAmount: decimal.NewFromInt(100000)},
		{ID: "p-2", CompanyID: "co-other", Period: "2026-Q2", DistributableAmount: decimal.NewFromInt(5000)},
	}
	stakes := map[string][]entities.MemberStake{
		"co-1": {
			{MemberID: "m-1", Percentage: decimal.NewFromInt(40), TaxRate: decimal.NewFromInt(10)},
			{MemberID: "m-2", Percentage: decimal.NewFromInt(35), TaxRate: decimal.NewFromInt(20)},
			{MemberID: "m-3", Percentage: decimal.NewFromInt(25), TaxRate: decimal.Zero},
		},
	}
	return distributionservice.NewInMemoryModule(profits, stakes, nil, nil)
}

func TestCalculatePreviewsWithoutCommit(t *testing.T) {
	module := newModule()
	ctx := context.Background()

	result, err := module.Service.Calculate(ctx, "co-1", "p-1", nil)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if len(result.Allocations) != 3 {
		t.Fatalf("expected 3 allocations, got %d", len(result.Allocations))
	}
	if !result.TotalCalculated.Equal(decimal.NewFromInt(100000)) {
		t.Fatalf("expected 100000 allocated, got %s", result.TotalCalculated)
	}
	if len(module.Store.AppendedEvents()) != 0 {
		t.Fatal("calculate must not write anything")
	}
}

func TestCalculateRejectsCompanyMismatch(t *testing.T) {
	module := newModule()

	_, err := module.Service.Calculate(context.Background(), "co-1", "p-2", nil)
	if !errors.Is(err, domainerrors.ErrCompanyMismatch) {
		t.Fatalf("expected ErrCompanyMismatch, got %v", err)
	}
}

func TestCalculateUnknownProfit(t *testing.T) {
	module := newModule()

	_, err := module.Service.Calculate(context.Background(), "co-1", "ghost", nil)
	if !errors.Is(err, domainerrors.ErrProfitNotFound) {
		t.Fatalf("expected ErrProfitNotFound, got %v", err)
	}
}

func TestCalculateHonorsOverrideAmount(t *testing.T) {
	module := newModule()

	override := decimal.NewFromInt(50000)
	result, err := module.Service.Calculate(context.Background(), "co-1", "p-1", &override)
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if !result.TotalAmount.Equal(override) {
		t.Fatalf("expected override pool %s, got %s", override, result.TotalAmount)
	}
	if !result.Allocations[0].Gross.Equal(decimal.NewFromInt(20000)) {
		t.Fatalf("expected 40%% of override, got %s", result.Allocations[0].Gross)
	}
}

func TestCreatePersistsAndEmitsEvent(t *testing.T) {
	module := newModule()
	ctx := context.Background()

	distribution, shares, err := module.Service.Create(ctx, application.CreateDistributionCommand{
		CompanyID: "co-1",
		ProfitID:  "p-1",
		CreatedBy: "cfo",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if distribution.Status != entities.DistributionStatusCalculated {
		t.Fatalf("unexpected status %s", distribution.Status)
	}
	if len(shares) != 3 {
		t.Fatalf("expected 3 member shares, got %d", len(shares))
	}
	for _, share := range shares {
		if share.PaymentStatus != entities.PaymentStatusPending {
			t.Fatalf("expected PENDING share, got %+v", share)
		}
		if !share.NetAmount.Equal(share.Amount.Sub(share.TaxWithholding)) {
			t.Fatalf("net must equal gross minus tax: %+v", share)
		}
	}

	appended := module.Store.AppendedEvents()
	if len(appended) != 1 || appended[0].EventType != application.EventTypeDistributionCalculated {
		t.Fatalf("expected one distribution.calculated event, got %+v", appended)
	}

	stored, storedShares, err := module.Service.GetDistribution(ctx, distribution.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if stored.ID != distribution.ID || len(storedShares) != 3 {
		t.Fatalf("stored distribution mismatch: %+v", stored)
	}
}

func TestMarkMemberPaidIsSingleShot(t *testing.T) {
	module := newModule()
	ctx := context.Background()

	distribution, shares, err := module.Service.Create(ctx, application.CreateDistributionCommand{
		CompanyID: "co-1",
		ProfitID:  "p-1",
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if err := module.Service.MarkMemberPaid(ctx, distribution.ID, shares[0].MemberID); err != nil {
		t.Fatalf("mark paid failed: %v", err)
	}
	if err := module.Service.MarkMemberPaid(ctx, distribution.ID, shares[0].MemberID); !errors.Is(err, domainerrors.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	if err := module.Service.MarkMemberPaid(ctx, distribution.ID, "ghost"); !errors.Is(err, domainerrors.ErrMemberShareNotFound) {
		t.Fatalf("expected ErrMemberShareNotFound, got %v", err)
	}
}
