package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"mizpos/terminal/internal/domain"
	"mizpos/terminal/internal/store"
)

// Store is an in-memory Repository used for dev mode and tests. Writes are
// per-record atomic under the mutex; multi-record operations mirror the
// sequential semantics of the durable store.
type Store struct {
	mu             sync.RWMutex
	productsByID   map[string]domain.Product
	transactions   []domain.Transaction
	summariesByKey map[string]domain.SalesSummary
	openingReports map[string]domain.OpeningReport
	closingReports []domain.ClosingReport
	exchanges      []domain.ExchangeRecord
	staffByNumber  map[string]domain.StaffAccount
}

func New() *Store {
	return &Store{
		productsByID:   make(map[string]domain.Product),
		transactions:   make([]domain.Transaction, 0, 256),
		summariesByKey: make(map[string]domain.SalesSummary),
		openingReports: make(map[string]domain.OpeningReport),
		closingReports: make([]domain.ClosingReport, 0, 16),
		exchanges:      make([]domain.ExchangeRecord, 0, 16),
		staffByNumber:  make(map[string]domain.StaffAccount),
	}
}

// NewSeeded returns a store preloaded with dev staff accounts. PINs come from
// SEED_ADMIN_PIN and SEED_CASHIER_PIN; hardcoded dev defaults are used with a
// warning when unset. Production terminals run on the sqlite store.
func NewSeeded() *Store {
	s := New()

	adminPIN := envOr("SEED_ADMIN_PIN", "770031")
	cashierPIN := envOr("SEED_CASHIER_PIN", "482915")
	if os.Getenv("SEED_ADMIN_PIN") == "" || os.Getenv("SEED_CASHIER_PIN") == "" {
		log.Println("[memory-store] WARNING: using default dev PINs. Set SEED_ADMIN_PIN and SEED_CASHIER_PIN to override.")
	}

	now := time.Now().UTC()
	for _, acc := range []struct {
		number string
		pin    string
		role   string
	}{
		{"9000001", adminPIN, "admin"},
		{"9000002", cashierPIN, "cashier"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(acc.pin), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed PIN for %s: %v", acc.number, err)
		}
		s.staffByNumber[acc.number] = domain.StaffAccount{
			StaffNumber: acc.number,
			PIN:         string(hash),
			Role:        acc.role,
			Active:      true,
			CreatedAt:   now,
		}
	}
	return s
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *Store) FindProductByBarcode(_ context.Context, code string) (*domain.Product, error) {
	if strings.TrimSpace(code) == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	// Primary index wins even when another product's secondary code carries
	// the same value.
	var secondaryMatch *domain.Product
	for _, p := range s.productsByID {
		if p.Deleted() {
			continue
		}
		if p.JANCode == code {
			found := p
			return &found, nil
		}
		if secondaryMatch == nil && p.JANCode2 != "" && p.JANCode2 == code {
			found := p
			secondaryMatch = &found
		}
	}
	if secondaryMatch != nil {
		return secondaryMatch, nil
	}
	return nil, store.ErrNotFound
}

func (s *Store) FindProductByISBN(_ context.Context, isbn string) (*domain.Product, error) {
	if strings.TrimSpace(isbn) == "" {
		return nil, store.ErrNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.productsByID {
		if p.Deleted() || p.ISBN == "" {
			continue
		}
		if p.ISBN == isbn {
			found := p
			return &found, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) UpsertProduct(_ context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.productsByID[product.ID] = product
	return nil
}

func (s *Store) SoftDeleteProduct(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	deletedAt := at.UTC()
	product.DeletedAt = &deletedAt
	s.productsByID[id] = product
	return nil
}

func (s *Store) RestoreProduct(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, exists := s.productsByID[id]
	if !exists {
		return store.ErrNotFound
	}
	product.DeletedAt = nil
	s.productsByID[id] = product
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		if p.Deleted() {
			continue
		}
		products = append(products, p)
	}
	sortProducts(products)
	return products, nil
}

func (s *Store) ListAllProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.productsByID))
	for _, p := range s.productsByID {
		products = append(products, p)
	}
	sortProducts(products)
	return products, nil
}

func (s *Store) ReplaceProducts(_ context.Context, products []domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]domain.Product, len(products))
	for _, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return store.ErrInvalidRecord
		}
		next[p.ID] = p
	}
	s.productsByID = next
	return nil
}

func (s *Store) SaveTransaction(_ context.Context, tx domain.Transaction) error {
	if tx.ID == "" || len(tx.Items) == 0 {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, cloneTransaction(tx))
	return nil
}

func (s *Store) ListTransactions(_ context.Context, limit int) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListTransactionsBetween(_ context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, 64)
	for _, tx := range s.transactions {
		if tx.CreatedAt.Before(from) || !tx.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneTransaction(tx))
	}
	slices.SortFunc(result, func(a, b domain.Transaction) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) GetSalesSummary(_ context.Context, key string) (*domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary, exists := s.summariesByKey[key]
	if !exists {
		return nil, store.ErrNotFound
	}
	found := summary
	return &found, nil
}

func (s *Store) PutSalesSummary(_ context.Context, summary domain.SalesSummary) error {
	if summary.Key == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.summariesByKey[summary.Key] = summary
	return nil
}

func (s *Store) ListSalesSummaries(_ context.Context) ([]domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.SalesSummary, 0, len(s.summariesByKey))
	for _, summary := range s.summariesByKey {
		result = append(result, summary)
	}
	slices.SortFunc(result, func(a, b domain.SalesSummary) int {
		if a.TotalAmount == b.TotalAmount {
			return cmpString(a.Key, b.Key)
		}
		if a.TotalAmount > b.TotalAmount {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ClearSalesSummaries(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summariesByKey = make(map[string]domain.SalesSummary)
	return nil
}

func (s *Store) SaveOpeningReport(_ context.Context, report domain.OpeningReport) error {
	if report.ID == "" || report.TerminalID == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.openingReports[report.ID] = cloneOpeningReport(report)
	return nil
}

func (s *Store) GetOpeningReportBetween(_ context.Context, from time.Time, to time.Time) (*domain.OpeningReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.OpeningReport
	for _, report := range s.openingReports {
		if report.OpenedAt.Before(from) || !report.OpenedAt.Before(to) {
			continue
		}
		if latest == nil || report.OpenedAt.After(latest.OpenedAt) {
			found := cloneOpeningReport(report)
			latest = &found
		}
	}
	if latest == nil {
		return nil, store.ErrNotFound
	}
	return latest, nil
}

func (s *Store) DeleteOpeningReport(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.openingReports[id]; !exists {
		return store.ErrNotFound
	}
	delete(s.openingReports, id)
	return nil
}

func (s *Store) SaveClosingReport(_ context.Context, report domain.ClosingReport) error {
	if report.ID == "" || report.TerminalID == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closingReports = append(s.closingReports, cloneClosingReport(report))
	return nil
}

func (s *Store) ListClosingReports(_ context.Context, limit int) ([]domain.ClosingReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ClosingReport, 0, len(s.closingReports))
	for _, report := range s.closingReports {
		result = append(result, cloneClosingReport(report))
	}
	slices.SortFunc(result, func(a, b domain.ClosingReport) int {
		if a.ClosedAt.Equal(b.ClosedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.ClosedAt.After(b.ClosedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SaveExchangeRecord(_ context.Context, record domain.ExchangeRecord) error {
	if record.ID == "" || record.TerminalID == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.exchanges = append(s.exchanges, cloneExchangeRecord(record))
	return nil
}

func (s *Store) ListExchangeRecordsBetween(_ context.Context, from time.Time, to time.Time) ([]domain.ExchangeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.ExchangeRecord, 0, len(s.exchanges))
	for _, record := range s.exchanges {
		if record.CreatedAt.Before(from) || !record.CreatedAt.Before(to) {
			continue
		}
		result = append(result, cloneExchangeRecord(record))
	}
	slices.SortFunc(result, func(a, b domain.ExchangeRecord) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) ClearDayData(_ context.Context, from time.Time, to time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inDay := func(ts time.Time) bool {
		return !ts.Before(from) && ts.Before(to)
	}

	keptTx := s.transactions[:0]
	for _, tx := range s.transactions {
		if inDay(tx.CreatedAt) {
			continue
		}
		keptTx = append(keptTx, tx)
	}
	s.transactions = keptTx

	for id, report := range s.openingReports {
		if inDay(report.OpenedAt) {
			delete(s.openingReports, id)
		}
	}

	keptEx := s.exchanges[:0]
	for _, record := range s.exchanges {
		if inDay(record.CreatedAt) {
			continue
		}
		keptEx = append(keptEx, record)
	}
	s.exchanges = keptEx

	// Summaries represent the whole active shift, not a day slice.
	s.summariesByKey = make(map[string]domain.SalesSummary)
	return nil
}

func (s *Store) CreateStaff(_ context.Context, staff domain.StaffAccount) error {
	number := strings.TrimSpace(staff.StaffNumber)
	if number == "" || strings.TrimSpace(staff.PIN) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.staffByNumber[number]; exists {
		return store.ErrInvalidRecord
	}
	staff.StaffNumber = number
	if staff.Role == "" {
		staff.Role = "cashier"
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	staff.Active = true
	s.staffByNumber[number] = staff
	return nil
}

func (s *Store) ListStaff(_ context.Context) ([]domain.StaffAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StaffAccount, 0, len(s.staffByNumber))
	for _, staff := range s.staffByNumber {
		result = append(result, staff)
	}
	slices.SortFunc(result, func(a, b domain.StaffAccount) int {
		return cmpString(a.StaffNumber, b.StaffNumber)
	})
	return result, nil
}

func (s *Store) UpdateStaffPIN(_ context.Context, staffNumber string, pin string) error {
	staffNumber = strings.TrimSpace(staffNumber)
	if staffNumber == "" || strings.TrimSpace(pin) == "" {
		return store.ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staff, exists := s.staffByNumber[staffNumber]
	if !exists {
		return store.ErrNotFound
	}
	staff.PIN = pin
	s.staffByNumber[staffNumber] = staff
	return nil
}

func sortProducts(products []domain.Product) {
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.CircleName == b.CircleName {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.CircleName, b.CircleName)
	})
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func cloneTransaction(src domain.Transaction) domain.Transaction {
	dup := src
	items := make([]domain.TransactionItem, len(src.Items))
	copy(items, src.Items)
	dup.Items = items
	payments := make([]domain.Payment, len(src.Payments))
	copy(payments, src.Payments)
	dup.Payments = payments
	return dup
}

func cloneOpeningReport(src domain.OpeningReport) domain.OpeningReport {
	dup := src
	counts := make([]domain.DenominationCount, len(src.Denominations))
	copy(counts, src.Denominations)
	dup.Denominations = counts
	return dup
}

func cloneClosingReport(src domain.ClosingReport) domain.ClosingReport {
	dup := src
	counts := make([]domain.DenominationCount, len(src.Denominations))
	copy(counts, src.Denominations)
	dup.Denominations = counts
	return dup
}

func cloneExchangeRecord(src domain.ExchangeRecord) domain.ExchangeRecord {
	dup := src
	given := make([]domain.DenominationCount, len(src.Given))
	copy(given, src.Given)
	dup.Given = given
	received := make([]domain.DenominationCount, len(src.Received))
	copy(received, src.Received)
	dup.Received = received
	return dup
}
