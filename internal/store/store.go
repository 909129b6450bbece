package store

import (
	"context"
	"errors"
	"time"

	"mizpos/terminal/internal/domain"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidRecord = errors.New("invalid record")
)

// Repository is the terminal's local table store. Implementations provide
// per-record atomicity only; multi-record operations (ReplaceProducts,
// ClearDayData) run sequentially and a crash can leave partial state. Callers
// decide on retry; the store never retries internally.
type Repository interface {
	// Products. Barcode lookup checks the primary index first and falls back
	// to the secondary index, returning only non-deleted records.
	FindProductByBarcode(ctx context.Context, code string) (*domain.Product, error)
	FindProductByISBN(ctx context.Context, isbn string) (*domain.Product, error)
	UpsertProduct(ctx context.Context, product domain.Product) error
	SoftDeleteProduct(ctx context.Context, id string, at time.Time) error
	RestoreProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ListAllProducts(ctx context.Context) ([]domain.Product, error)
	// ReplaceProducts clears the product table and bulk-inserts the given set.
	ReplaceProducts(ctx context.Context, products []domain.Product) error

	// Transaction log: append-only, reverse-chronological bounded reads.
	SaveTransaction(ctx context.Context, tx domain.Transaction) error
	ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error)
	ListTransactionsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error)

	// Sales summary rows, keyed by the (barcode, circle) composite.
	GetSalesSummary(ctx context.Context, key string) (*domain.SalesSummary, error)
	PutSalesSummary(ctx context.Context, summary domain.SalesSummary) error
	ListSalesSummaries(ctx context.Context) ([]domain.SalesSummary, error)
	ClearSalesSummaries(ctx context.Context) error

	// Shift reports. Closing reports are never deleted.
	SaveOpeningReport(ctx context.Context, report domain.OpeningReport) error
	GetOpeningReportBetween(ctx context.Context, from time.Time, to time.Time) (*domain.OpeningReport, error)
	DeleteOpeningReport(ctx context.Context, id string) error
	SaveClosingReport(ctx context.Context, report domain.ClosingReport) error
	ListClosingReports(ctx context.Context, limit int) ([]domain.ClosingReport, error)

	SaveExchangeRecord(ctx context.Context, record domain.ExchangeRecord) error
	ListExchangeRecordsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.ExchangeRecord, error)

	// ClearDayData deletes transactions, opening reports and exchange records
	// with timestamps in [from, to), and unconditionally empties the sales
	// summary table. Closing reports are retained.
	ClearDayData(ctx context.Context, from time.Time, to time.Time) error

	// Staff accounts for the auth layer.
	CreateStaff(ctx context.Context, staff domain.StaffAccount) error
	ListStaff(ctx context.Context) ([]domain.StaffAccount, error)
	UpdateStaffPIN(ctx context.Context, staffNumber string, pin string) error
}
