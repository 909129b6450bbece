package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"mizpos/terminal/internal/barcode"
	"mizpos/terminal/internal/cache"
	"mizpos/terminal/internal/catalog"
	"mizpos/terminal/internal/domain"
	"mizpos/terminal/internal/store"
	"mizpos/terminal/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// summaryKeySeparator joins barcode and circle name into the summary row key.
const summaryKeySeparator = "|"

// unknownCircle is the vendor bucket for line items without a circle name.
const unknownCircle = "unknown"

type Service struct {
	repo       store.Repository
	catalog    catalog.Client
	lookups    cache.LookupCache
	strategy   barcode.Strategy
	terminalID string
	lookupTTL  time.Duration
	now        func() time.Time
}

func New(repo store.Repository, catalogClient catalog.Client, lookups cache.LookupCache, terminalID string, lookupTTL time.Duration) *Service {
	if terminalID == "" {
		terminalID = "terminal-01"
	}
	if lookups == nil {
		lookups = cache.NoopLookupCache{}
	}
	if lookupTTL <= 0 {
		lookupTTL = 5 * time.Minute
	}

	return &Service{
		repo:       repo,
		catalog:    catalogClient,
		lookups:    lookups,
		strategy:   barcode.ISDNStrategy{},
		terminalID: terminalID,
		lookupTTL:  lookupTTL,
		now:        time.Now,
	}
}

// todayBounds returns the local calendar day [midnight, next midnight)
// containing the current moment. Shift operations are day-scoped in the
// terminal's local time, not UTC.
func (s *Service) todayBounds() (time.Time, time.Time) {
	now := s.now().Local()
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 1)
}

// LookupProductByBarcode resolves a scanned code, preferring the primary
// barcode index over the secondary. Soft-deleted products never resolve.
func (s *Service) LookupProductByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, store.ErrNotFound
	}

	if cached, ok, err := s.lookups.Get(ctx, code); err != nil {
		log.Printf("[service] WARN: lookup cache read failed code=%s: %v", code, err)
	} else if ok {
		return cached, nil
	}

	product, err := s.repo.FindProductByBarcode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := s.lookups.Set(ctx, code, product, s.lookupTTL); err != nil {
		log.Printf("[service] WARN: lookup cache write failed code=%s: %v", code, err)
	}
	return product, nil
}

func (s *Service) LookupProductByISBN(ctx context.Context, isbn string) (*domain.Product, error) {
	isbn = strings.TrimSpace(isbn)
	if isbn == "" {
		return nil, store.ErrNotFound
	}
	return s.repo.FindProductByISBN(ctx, isbn)
}

func (s *Service) ListProducts(ctx context.Context, includeDeleted bool) ([]domain.Product, error) {
	if includeDeleted {
		return s.repo.ListAllProducts(ctx)
	}
	return s.repo.ListProducts(ctx)
}

// UpsertProduct registers or edits a product locally, for items sold at the
// event that never reached the remote catalog. The next full sync replaces it.
func (s *Service) UpsertProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.Price < 0 {
		return domain.Product{}, store.ErrInvalidRecord
	}
	if strings.TrimSpace(product.ID) == "" {
		product.ID = xid.New("prod")
	}
	if err := s.repo.UpsertProduct(ctx, product); err != nil {
		return domain.Product{}, err
	}
	if err := s.flushLookups(ctx); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) SoftDeleteProduct(ctx context.Context, id string) error {
	if err := s.repo.SoftDeleteProduct(ctx, id, s.now().UTC()); err != nil {
		return err
	}
	return s.flushLookups(ctx)
}

func (s *Service) RestoreProduct(ctx context.Context, id string) error {
	if err := s.repo.RestoreProduct(ctx, id); err != nil {
		return err
	}
	return s.flushLookups(ctx)
}

func (s *Service) flushLookups(ctx context.Context) error {
	if err := s.lookups.Flush(ctx); err != nil {
		log.Printf("[service] WARN: lookup cache flush failed: %v", err)
	}
	return nil
}

// SyncProducts pulls the full catalog and replaces the local product set.
// The complete remote list is held in memory before any local mutation, so a
// fetch or decode failure leaves the last-known-good catalog intact.
func (s *Service) SyncProducts(ctx context.Context) (domain.SyncResult, error) {
	if s.catalog == nil {
		return domain.SyncResult{}, fmt.Errorf("catalog service not configured")
	}

	remotes, err := s.catalog.FetchProducts(ctx)
	if err != nil {
		return domain.SyncResult{}, err
	}

	products := make([]domain.Product, 0, len(remotes))
	for _, remote := range remotes {
		products = append(products, s.mapRemoteProduct(remote))
	}

	if err := s.repo.ReplaceProducts(ctx, products); err != nil {
		return domain.SyncResult{}, err
	}
	_ = s.flushLookups(ctx)

	log.Printf("[service] catalog sync imported %d products", len(products))
	return domain.SyncResult{
		Imported: len(products),
		SyncedAt: s.now().UTC().Format(time.RFC3339),
	}, nil
}

func (s *Service) mapRemoteProduct(remote domain.RemoteProduct) domain.Product {
	product := domain.Product{
		ID:         remote.ProductID,
		JANCode:    strings.TrimSpace(remote.JANCode),
		JANCode2:   strings.TrimSpace(remote.JANCode2),
		ISBN:       strings.TrimSpace(remote.ISBN),
		ISDN:       strings.TrimSpace(remote.ISDN),
		Name:       remote.Name,
		CircleName: remote.CircleName,
		Price:      remote.Price,
		ImageURL:   remote.ImageURL,
		// Book is the backward-compatibility default for records predating
		// the flag, not a business assertion.
		IsBook: remote.IsBook == nil || *remote.IsBook,
	}

	if product.JANCode == "" {
		// No server barcode; derive one when an ISDN/ISBN allows it. A
		// product without either stays browsable but unscannable.
		primary, secondary := s.strategy.Derive(remote)
		product.JANCode = primary
		if product.JANCode2 == "" {
			product.JANCode2 = secondary
		}
	}
	return product
}

// GenerateBarcodeInfo returns the label-printing codes for a product,
// deriving an in-store code when none is assigned.
func (s *Service) GenerateBarcodeInfo(ctx context.Context, productID string) (domain.BarcodeInfo, error) {
	products, err := s.repo.ListAllProducts(ctx)
	if err != nil {
		return domain.BarcodeInfo{}, err
	}
	for _, product := range products {
		if product.ID == productID {
			return barcode.Info(product), nil
		}
	}
	return domain.BarcodeInfo{}, store.ErrNotFound
}

// SaveTransaction persists a completed sale to the append-only log. The
// matching summary update is a separate call; the pair is sequenced, not
// transactional, and a crash between the two under-counts the summary until
// RebuildSalesSummaryFromLog runs.
func (s *Service) SaveTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if err := validateTransaction(tx); err != nil {
		return domain.Transaction{}, err
	}

	if tx.ID == "" {
		tx.ID = xid.New("tx")
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = s.now().UTC()
	}
	if tx.StaffID == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			tx.StaffID = actor.StaffNumber
		}
	}

	if err := s.repo.SaveTransaction(ctx, tx); err != nil {
		return domain.Transaction{}, err
	}
	return tx, nil
}

func validateTransaction(tx domain.Transaction) error {
	if len(tx.Items) == 0 {
		return store.ErrInvalidRecord
	}

	itemTotal := int64(0)
	for _, item := range tx.Items {
		if item.Quantity < 1 {
			return fmt.Errorf("line quantity must be at least 1: %w", store.ErrInvalidRecord)
		}
		if item.Subtotal != item.UnitPrice*int64(item.Quantity) {
			return fmt.Errorf("line subtotal mismatch for %s: %w", item.ProductID, store.ErrInvalidRecord)
		}
		itemTotal += item.Subtotal
	}
	if itemTotal != tx.TotalAmount {
		return fmt.Errorf("item subtotals %d do not sum to total %d: %w", itemTotal, tx.TotalAmount, store.ErrInvalidRecord)
	}

	paid := int64(0)
	cashPaid := false
	for _, payment := range tx.Payments {
		if !domain.IsSupportedPaymentMethod(payment.Method) {
			return fmt.Errorf("unsupported payment method %q: %w", payment.Method, store.ErrInvalidRecord)
		}
		if payment.Amount < 0 {
			return fmt.Errorf("negative payment amount: %w", store.ErrInvalidRecord)
		}
		if payment.Method == domain.PaymentCash {
			cashPaid = true
		}
		paid += payment.Amount
	}
	if paid < tx.TotalAmount {
		return fmt.Errorf("payments %d below total %d: %w", paid, tx.TotalAmount, store.ErrInvalidRecord)
	}
	// Overpay produces cash change at the drawer; non-cash methods charge
	// exact amounts.
	if paid > tx.TotalAmount && !cashPaid {
		return fmt.Errorf("non-cash overpayment: %w", store.ErrInvalidRecord)
	}
	return nil
}

// SummaryKey builds the composite summary row key from a barcode (may be
// empty) and a circle name ("unknown" when blank). Two circles selling the
// same catalog code aggregate separately: consignment sales report per
// vendor.
func SummaryKey(janCode string, circleName string) string {
	circle := strings.TrimSpace(circleName)
	if circle == "" {
		circle = unknownCircle
	}
	return strings.TrimSpace(janCode) + summaryKeySeparator + circle
}

// UpdateSalesSummary folds one transaction into the running summary rows.
// Training transactions contribute nothing. The ledger does not deduplicate
// by transaction id: processing the same transaction twice double-counts,
// and once-only delivery is the caller's responsibility.
func (s *Service) UpdateSalesSummary(ctx context.Context, tx domain.Transaction) error {
	if tx.IsTraining {
		return nil
	}

	for _, item := range tx.Items {
		key := SummaryKey(item.JANCode, item.CircleName)

		summary, err := s.repo.GetSalesSummary(ctx, key)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return err
			}
			summary = &domain.SalesSummary{
				Key:        key,
				JANCode:    strings.TrimSpace(item.JANCode),
				ISBN:       item.ISBN,
				Name:       item.Name,
				CircleName: strings.TrimSpace(item.CircleName),
			}
			if summary.CircleName == "" {
				summary.CircleName = unknownCircle
			}
		}

		summary.TotalQuantity += item.Quantity
		summary.TotalAmount += item.Subtotal
		if tx.CreatedAt.After(summary.LastSoldAt) {
			summary.LastSoldAt = tx.CreatedAt
		}

		if err := s.repo.PutSalesSummary(ctx, *summary); err != nil {
			return err
		}
	}
	return nil
}

// RecordSale is the checkout entry point: log append, then summary update.
func (s *Service) RecordSale(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	saved, err := s.SaveTransaction(ctx, tx)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := s.UpdateSalesSummary(ctx, saved); err != nil {
		// The log is authoritative; the summary catches up on rebuild.
		log.Printf("[service] WARN: summary update failed for tx=%s (rebuild required): %v", saved.ID, err)
		return saved, err
	}
	return saved, nil
}

func (s *Service) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListTransactions(ctx, limit)
}

func (s *Service) ListSalesSummaries(ctx context.Context) ([]domain.SalesSummary, error) {
	return s.repo.ListSalesSummaries(ctx)
}

// GetTodaySalesTotal scans the local calendar day's transactions, excluding
// training mode, and buckets amounts by payment method. Both voucher methods
// merge into one bucket.
func (s *Service) GetTodaySalesTotal(ctx context.Context) (domain.DailySalesTotal, error) {
	from, to := s.todayBounds()
	transactions, err := s.repo.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return domain.DailySalesTotal{}, err
	}

	total := domain.DailySalesTotal{}
	for _, tx := range transactions {
		if tx.IsTraining {
			continue
		}
		total.TransactionCount++
		total.TotalAmount += tx.TotalAmount
		for _, payment := range tx.Payments {
			switch payment.Method {
			case domain.PaymentCash:
				total.CashAmount += payment.Amount
			case domain.PaymentCashless:
				total.CashlessAmount += payment.Amount
			case domain.PaymentVoucherDept, domain.PaymentVoucherEvent:
				total.VoucherAmount += payment.Amount
			}
		}
	}
	return total, nil
}

// RebuildSalesSummaryFromLog discards the summary rows and recomputes them
// from the transaction log. This is the repair path for the crash window
// between a log append and its summary update.
func (s *Service) RebuildSalesSummaryFromLog(ctx context.Context) (int, error) {
	from, to := s.todayBounds()
	transactions, err := s.repo.ListTransactionsBetween(ctx, from, to)
	if err != nil {
		return 0, err
	}

	if err := s.repo.ClearSalesSummaries(ctx); err != nil {
		return 0, err
	}
	for _, tx := range transactions {
		if err := s.UpdateSalesSummary(ctx, tx); err != nil {
			return 0, err
		}
	}

	summaries, err := s.repo.ListSalesSummaries(ctx)
	if err != nil {
		return 0, err
	}
	log.Printf("[service] rebuilt %d summary rows from %d transactions", len(summaries), len(transactions))
	return len(summaries), nil
}

// SaveOpeningReport records the shift's starting cash declaration. The cash
// total is recomputed from the denomination counts so the persisted figure
// always matches the arithmetic shown at the drawer.
func (s *Service) SaveOpeningReport(ctx context.Context, req domain.OpeningReportRequest) (domain.OpeningReport, error) {
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.OpeningReport{}, err
	}
	if existing, err := s.GetTodayOpeningReport(ctx); err == nil && existing != nil {
		return domain.OpeningReport{}, fmt.Errorf("shift already opened at %s", existing.OpenedAt.Format(time.RFC3339))
	} else if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.OpeningReport{}, err
	}

	report := domain.OpeningReport{
		ID:            xid.New("open"),
		TerminalID:    s.terminalID,
		StaffID:       req.StaffID,
		Denominations: req.Denominations,
		CashTotal:     domain.CashTotal(req.Denominations),
		OpenedAt:      s.now().UTC(),
	}
	if req.TerminalID != "" {
		report.TerminalID = req.TerminalID
	}
	if err := s.repo.SaveOpeningReport(ctx, report); err != nil {
		return domain.OpeningReport{}, err
	}
	return report, nil
}

// GetTodayOpeningReport reports whether (and how) today's shift was opened.
// The UI gates checkout on this.
func (s *Service) GetTodayOpeningReport(ctx context.Context) (*domain.OpeningReport, error) {
	from, to := s.todayBounds()
	return s.repo.GetOpeningReportBetween(ctx, from, to)
}

// UndoOpeningReport deletes today's opening report, returning the terminal
// to the no-report state. The caller guarantees no sale has occurred yet;
// this core does not verify it.
func (s *Service) UndoOpeningReport(ctx context.Context) error {
	report, err := s.GetTodayOpeningReport(ctx)
	if err != nil {
		return err
	}
	return s.repo.DeleteOpeningReport(ctx, report.ID)
}

// RecordExchange logs a change-float denomination swap. Exchanges are
// value-neutral: the given and received totals must match.
func (s *Service) RecordExchange(ctx context.Context, req domain.ExchangeRequest) (domain.ExchangeRecord, error) {
	if err := validateDenominations(req.Given); err != nil {
		return domain.ExchangeRecord{}, err
	}
	if err := validateDenominations(req.Received); err != nil {
		return domain.ExchangeRecord{}, err
	}
	given := domain.CashTotal(req.Given)
	received := domain.CashTotal(req.Received)
	if given != received || given == 0 {
		return domain.ExchangeRecord{}, fmt.Errorf("exchange totals differ: given %d, received %d: %w", given, received, store.ErrInvalidRecord)
	}

	record := domain.ExchangeRecord{
		ID:         xid.New("exch"),
		TerminalID: s.terminalID,
		StaffID:    req.StaffID,
		Given:      req.Given,
		Received:   req.Received,
		Note:       req.Note,
		CreatedAt:  s.now().UTC(),
	}
	if req.TerminalID != "" {
		record.TerminalID = req.TerminalID
	}
	if err := s.repo.SaveExchangeRecord(ctx, record); err != nil {
		return domain.ExchangeRecord{}, err
	}
	return record, nil
}

func (s *Service) ListTodayExchanges(ctx context.Context) ([]domain.ExchangeRecord, error) {
	from, to := s.todayBounds()
	return s.repo.ListExchangeRecordsBetween(ctx, from, to)
}

// CloseShift counts the drawer against the expected cash (opening float plus
// cash sales), persists the closing report, and clears the day's working
// data. A counted/expected mismatch is recorded as variance, never rejected.
func (s *Service) CloseShift(ctx context.Context, req domain.CloseShiftRequest) (domain.ClosingReport, error) {
	if err := validateDenominations(req.Denominations); err != nil {
		return domain.ClosingReport{}, err
	}

	opening, err := s.GetTodayOpeningReport(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.ClosingReport{}, fmt.Errorf("no opening report for today")
		}
		return domain.ClosingReport{}, err
	}

	totals, err := s.GetTodaySalesTotal(ctx)
	if err != nil {
		return domain.ClosingReport{}, err
	}

	counted := domain.CashTotal(req.Denominations)
	expected := opening.CashTotal + totals.CashAmount

	report := domain.ClosingReport{
		ID:            xid.New("close"),
		TerminalID:    s.terminalID,
		StaffID:       req.StaffID,
		Denominations: req.Denominations,
		CountedCash:   counted,
		ExpectedCash:  expected,
		Variance:      counted - expected,
		ClosedAt:      s.now().UTC(),
	}
	if req.TerminalID != "" {
		report.TerminalID = req.TerminalID
	}
	if err := s.repo.SaveClosingReport(ctx, report); err != nil {
		return domain.ClosingReport{}, err
	}
	if report.Variance != 0 {
		log.Printf("[service] shift closed with variance=%d (counted=%d expected=%d)", report.Variance, counted, expected)
	}

	if err := s.ClearTodayData(ctx); err != nil {
		// Closing report is already durable; the clear can be re-run.
		return report, fmt.Errorf("shift closed but data clear failed: %w", err)
	}
	return report, nil
}

// ClearTodayData resets the terminal for the next shift: today's
// transactions, opening reports and exchange records are deleted and the
// summary table is emptied. Closing report history is retained.
func (s *Service) ClearTodayData(ctx context.Context) error {
	from, to := s.todayBounds()
	return s.repo.ClearDayData(ctx, from, to)
}

func (s *Service) ListClosingReports(ctx context.Context, limit int) ([]domain.ClosingReport, error) {
	if limit < 1 {
		limit = 50
	}
	return s.repo.ListClosingReports(ctx, limit)
}

func validateDenominations(counts []domain.DenominationCount) error {
	if len(counts) == 0 {
		return fmt.Errorf("denomination counts required: %w", store.ErrInvalidRecord)
	}
	for _, entry := range counts {
		if entry.Count < 0 {
			return fmt.Errorf("negative count for denomination %d: %w", entry.Denomination, store.ErrInvalidRecord)
		}
		if !isKnownDenomination(entry.Denomination) {
			return fmt.Errorf("unknown denomination %d: %w", entry.Denomination, store.ErrInvalidRecord)
		}
	}
	return nil
}

func isKnownDenomination(value int64) bool {
	for _, denom := range domain.Denominations {
		if denom == value {
			return true
		}
	}
	return false
}
