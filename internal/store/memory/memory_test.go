package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"mizpos/terminal/internal/domain"
	"mizpos/terminal/internal/store"
)

func TestFindProductByBarcodePrimaryWinsOverSecondary(t *testing.T) {
	ctx := context.Background()
	s := New()

	// Product A carries "1111" as its primary code, product B as its
	// secondary. A scan of "1111" must resolve to A.
	if err := s.UpsertProduct(ctx, domain.Product{ID: "a", JANCode: "1111", Name: "A"}); err != nil {
		t.Fatalf("upsert a: %v", err)
	}
	if err := s.UpsertProduct(ctx, domain.Product{ID: "b", JANCode: "2222", JANCode2: "1111", Name: "B"}); err != nil {
		t.Fatalf("upsert b: %v", err)
	}

	found, err := s.FindProductByBarcode(ctx, "1111")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != "a" {
		t.Fatalf("expected primary match a, got %s", found.ID)
	}

	found, err = s.FindProductByBarcode(ctx, "2222")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != "b" {
		t.Fatalf("expected b, got %s", found.ID)
	}
}

func TestFindProductByBarcodeSecondaryFallback(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.UpsertProduct(ctx, domain.Product{ID: "b", JANCode: "2222", JANCode2: "1111"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	found, err := s.FindProductByBarcode(ctx, "1111")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != "b" {
		t.Fatalf("expected secondary match b, got %s", found.ID)
	}
}

func TestSoftDeleteHidesFromLookupAndList(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.UpsertProduct(ctx, domain.Product{ID: "a", JANCode: "1111", ISBN: "978"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.SoftDeleteProduct(ctx, "a", time.Now()); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := s.FindProductByBarcode(ctx, "1111"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	if _, err := s.FindProductByISBN(ctx, "978"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found by isbn after delete, got %v", err)
	}

	active, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active products, got %d", len(active))
	}

	all, err := s.ListAllProducts(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 || !all[0].Deleted() {
		t.Fatalf("expected 1 soft-deleted product in full list")
	}

	if err := s.RestoreProduct(ctx, "a"); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if _, err := s.FindProductByBarcode(ctx, "1111"); err != nil {
		t.Fatalf("expected lookup to work after restore, got %v", err)
	}
}

func TestReplaceProductsDropsStaleRecords(t *testing.T) {
	ctx := context.Background()
	s := New()

	if err := s.UpsertProduct(ctx, domain.Product{ID: "old", JANCode: "9999"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	err := s.ReplaceProducts(ctx, []domain.Product{
		{ID: "new-1", JANCode: "1111"},
		{ID: "new-2", JANCode: "2222"},
	})
	if err != nil {
		t.Fatalf("replace: %v", err)
	}

	if _, err := s.FindProductByBarcode(ctx, "9999"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected stale product gone, got %v", err)
	}
	products, err := s.ListProducts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
}

func TestListTransactionsBetweenIsHalfOpen(t *testing.T) {
	ctx := context.Background()
	s := New()

	from := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	save := func(id string, at time.Time) {
		t.Helper()
		err := s.SaveTransaction(ctx, domain.Transaction{
			ID:        id,
			Items:     []domain.TransactionItem{{ProductID: "p", Quantity: 1, UnitPrice: 100, Subtotal: 100}},
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	save("before", from.Add(-time.Second))
	save("start", from)
	save("mid", from.Add(12*time.Hour))
	save("end", to)

	got, err := s.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("list between: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions in [from, to), got %d", len(got))
	}
	if got[0].ID != "start" || got[1].ID != "mid" {
		t.Fatalf("unexpected order: %s, %s", got[0].ID, got[1].ID)
	}
}

func TestClearDayDataScope(t *testing.T) {
	ctx := context.Background()
	s := New()

	from := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	inDay := from.Add(10 * time.Hour)
	yesterday := from.Add(-10 * time.Hour)

	mustSaveTx := func(id string, at time.Time) {
		t.Helper()
		err := s.SaveTransaction(ctx, domain.Transaction{
			ID:        id,
			Items:     []domain.TransactionItem{{ProductID: "p", Quantity: 1, UnitPrice: 100, Subtotal: 100}},
			CreatedAt: at,
		})
		if err != nil {
			t.Fatalf("save tx: %v", err)
		}
	}
	mustSaveTx("today", inDay)
	mustSaveTx("yesterday", yesterday)

	if err := s.SaveOpeningReport(ctx, domain.OpeningReport{ID: "open-1", TerminalID: "t1", OpenedAt: inDay}); err != nil {
		t.Fatalf("save opening: %v", err)
	}
	if err := s.SaveClosingReport(ctx, domain.ClosingReport{ID: "close-1", TerminalID: "t1", ClosedAt: inDay}); err != nil {
		t.Fatalf("save closing: %v", err)
	}
	if err := s.SaveExchangeRecord(ctx, domain.ExchangeRecord{ID: "exch-1", TerminalID: "t1", CreatedAt: inDay}); err != nil {
		t.Fatalf("save exchange: %v", err)
	}
	if err := s.PutSalesSummary(ctx, domain.SalesSummary{Key: "1111|circle", TotalQuantity: 3}); err != nil {
		t.Fatalf("put summary: %v", err)
	}

	if err := s.ClearDayData(ctx, from, to); err != nil {
		t.Fatalf("clear: %v", err)
	}

	transactions, err := s.ListTransactions(ctx, 10)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(transactions) != 1 || transactions[0].ID != "yesterday" {
		t.Fatalf("expected only yesterday's transaction to survive, got %d", len(transactions))
	}

	if _, err := s.GetOpeningReportBetween(ctx, from, to); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected opening report deleted, got %v", err)
	}

	closings, err := s.ListClosingReports(ctx, 10)
	if err != nil {
		t.Fatalf("list closings: %v", err)
	}
	if len(closings) != 1 {
		t.Fatalf("closing reports must be retained, got %d", len(closings))
	}

	exchanges, err := s.ListExchangeRecordsBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("list exchanges: %v", err)
	}
	if len(exchanges) != 0 {
		t.Fatalf("expected exchanges cleared, got %d", len(exchanges))
	}

	summaries, err := s.ListSalesSummaries(ctx)
	if err != nil {
		t.Fatalf("list summaries: %v", err)
	}
	if len(summaries) != 0 {
		t.Fatalf("expected summary table emptied, got %d rows", len(summaries))
	}
}

func TestGetOpeningReportBetweenPicksLatest(t *testing.T) {
	ctx := context.Background()
	s := New()

	from := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	if err := s.SaveOpeningReport(ctx, domain.OpeningReport{ID: "early", TerminalID: "t1", OpenedAt: from.Add(8 * time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.SaveOpeningReport(ctx, domain.OpeningReport{ID: "late", TerminalID: "t1", OpenedAt: from.Add(9 * time.Hour)}); err != nil {
		t.Fatalf("save: %v", err)
	}

	report, err := s.GetOpeningReportBetween(ctx, from, to)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if report.ID != "late" {
		t.Fatalf("expected latest report, got %s", report.ID)
	}
}

func TestCreateStaffRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	s := New()

	account := domain.StaffAccount{StaffNumber: "9000010", PIN: "hash", Role: "cashier"}
	if err := s.CreateStaff(ctx, account); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateStaff(ctx, account); !errors.Is(err, store.ErrInvalidRecord) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
}
