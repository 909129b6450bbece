package domain

import "time"

// Product is a sellable item cached on the terminal. The authoritative copy
// lives on the catalog service; the local set is replaced wholesale on sync.
type Product struct {
	ID         string     `json:"id"`
	JANCode    string     `json:"jan_code"`
	JANCode2   string     `json:"jan_code_2,omitempty"`
	ISBN       string     `json:"isbn,omitempty"`
	ISDN       string     `json:"isdn,omitempty"`
	IsBook     bool       `json:"is_book"`
	Name       string     `json:"name"`
	CircleName string     `json:"circle_name"`
	Price      int64      `json:"price"`
	ImageURL   string     `json:"image_url,omitempty"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

// Deleted reports whether the product is soft-deleted.
func (p Product) Deleted() bool {
	return p.DeletedAt != nil
}

// Payment methods accepted at the terminal.
const (
	PaymentCash         = "cash"
	PaymentCashless     = "cashless"
	PaymentVoucherDept  = "voucher_dept"
	PaymentVoucherEvent = "voucher_event"
)

// IsSupportedPaymentMethod reports whether method belongs to the closed set.
func IsSupportedPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCashless, PaymentVoucherDept, PaymentVoucherEvent:
		return true
	}
	return false
}

type TransactionItem struct {
	ProductID  string `json:"product_id"`
	JANCode    string `json:"jan_code,omitempty"`
	ISBN       string `json:"isbn,omitempty"`
	Name       string `json:"name"`
	CircleName string `json:"circle_name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int64  `json:"unit_price"`
	Subtotal   int64  `json:"subtotal"`
}

type Payment struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// Transaction is an immutable completed-sale event. The log is append-only;
// only the shift-closing data clear removes the current day's records.
type Transaction struct {
	ID          string            `json:"id"`
	StaffID     string            `json:"staff_id"`
	Items       []TransactionItem `json:"items"`
	Payments    []Payment         `json:"payments"`
	TotalAmount int64             `json:"total_amount"`
	IsTraining  bool              `json:"is_training"`
	CreatedAt   time.Time         `json:"created_at"`
}

// SalesSummary is the denormalized per-(barcode, circle) running aggregate.
// It is a cache over the transaction log, not a source of truth.
type SalesSummary struct {
	Key           string    `json:"key"`
	JANCode       string    `json:"jan_code"`
	ISBN          string    `json:"isbn,omitempty"`
	Name          string    `json:"name"`
	CircleName    string    `json:"circle_name"`
	TotalQuantity int       `json:"total_quantity"`
	TotalAmount   int64     `json:"total_amount"`
	LastSoldAt    time.Time `json:"last_sold_at"`
}

// Denominations lists JPY cash denominations, largest first. Opening and
// closing counts are ordered over this list.
var Denominations = []int64{10000, 5000, 2000, 1000, 500, 100, 50, 10, 5, 1}

type DenominationCount struct {
	Denomination int64 `json:"denomination"`
	Count        int   `json:"count"`
}

// CashTotal computes the integer sum of denomination times count.
func CashTotal(counts []DenominationCount) int64 {
	total := int64(0)
	for _, entry := range counts {
		total += entry.Denomination * int64(entry.Count)
	}
	return total
}

// OpeningReport records the starting cash declaration for a shift. One per
// terminal per day; deletable only before the first sale ("undo open").
type OpeningReport struct {
	ID            string              `json:"id"`
	TerminalID    string              `json:"terminal_id"`
	StaffID       string              `json:"staff_id"`
	Denominations []DenominationCount `json:"denominations"`
	CashTotal     int64               `json:"cash_total"`
	OpenedAt      time.Time           `json:"opened_at"`
}

// ClosingReport records the counted cash against the expected cash at shift
// close. Retained indefinitely as an audit record.
type ClosingReport struct {
	ID            string              `json:"id"`
	TerminalID    string              `json:"terminal_id"`
	StaffID       string              `json:"staff_id"`
	Denominations []DenominationCount `json:"denominations"`
	CountedCash   int64               `json:"counted_cash"`
	ExpectedCash  int64               `json:"expected_cash"`
	Variance      int64               `json:"variance"`
	ClosedAt      time.Time           `json:"closed_at"`
}

// ExchangeRecord is a value-neutral change-float denomination swap.
type ExchangeRecord struct {
	ID         string              `json:"id"`
	TerminalID string              `json:"terminal_id"`
	StaffID    string              `json:"staff_id"`
	Given      []DenominationCount `json:"given"`
	Received   []DenominationCount `json:"received"`
	Note       string              `json:"note,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
}

// DailySalesTotal is the per-shift rollup returned by GetTodaySalesTotal.
// Both voucher methods share one bucket for reporting.
type DailySalesTotal struct {
	TransactionCount int   `json:"transaction_count"`
	TotalAmount      int64 `json:"total_amount"`
	CashAmount       int64 `json:"cash_amount"`
	CashlessAmount   int64 `json:"cashless_amount"`
	VoucherAmount    int64 `json:"voucher_amount"`
}

// RemoteProduct is the catalog service's product shape. Optional fields may
// be absent; defaulting rules live in the sync path.
type RemoteProduct struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	CircleName string `json:"circle_name"`
	Price      int64  `json:"price"`
	JANCode    string `json:"jan_code,omitempty"`
	JANCode2   string `json:"jan_code_2,omitempty"`
	ISBN       string `json:"isbn,omitempty"`
	ISDN       string `json:"isdn,omitempty"`
	CCode      string `json:"c_code,omitempty"`
	IsBook     *bool  `json:"is_book,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
}

type LoginRequest struct {
	StaffNumber string `json:"staff_number"`
	PIN         string `json:"pin"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	StaffNumber string
	Role        string
}

// StaffAccount is an internal persistence model for auth credentials.
type StaffAccount struct {
	StaffNumber string
	PIN         string
	Role        string
	Active      bool
	CreatedAt   time.Time
}

type StaffCreateRequest struct {
	StaffNumber string `json:"staff_number"`
	PIN         string `json:"pin"`
	Role        string `json:"role,omitempty"`
}

type OpeningReportRequest struct {
	TerminalID    string              `json:"terminal_id"`
	StaffID       string              `json:"staff_id"`
	Denominations []DenominationCount `json:"denominations"`
}

type CloseShiftRequest struct {
	TerminalID    string              `json:"terminal_id"`
	StaffID       string              `json:"staff_id"`
	Denominations []DenominationCount `json:"denominations"`
}

type ExchangeRequest struct {
	TerminalID string              `json:"terminal_id"`
	StaffID    string              `json:"staff_id"`
	Given      []DenominationCount `json:"given"`
	Received   []DenominationCount `json:"received"`
	Note       string              `json:"note,omitempty"`
}

type SyncResult struct {
	Imported int    `json:"imported"`
	SyncedAt string `json:"synced_at"`
}

// BarcodeInfo is the label-printing view of a product's codes.
type BarcodeInfo struct {
	ISDN          string `json:"isdn,omitempty"`
	ISDNFormatted string `json:"isdn_formatted,omitempty"`
	JANBarcode1   string `json:"jan_barcode_1"`
	JANBarcode2   string `json:"jan_barcode_2,omitempty"`
	IsBook        bool   `json:"is_book"`
}
