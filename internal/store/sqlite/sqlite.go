// Package sqlite implements the terminal's durable local store on an
// embedded SQLite database. The terminal process is the only writer, so the
// pool is capped at a single connection.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mizpos/terminal/internal/domain"
	"mizpos/terminal/internal/store"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	db *sql.DB
}

// Open creates or opens the terminal database at path, applying pragmas and
// the schema. Safe to call on an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer avoids SQLITE_BUSY on concurrent handler writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = "id, jan_code, jan_code_2, isbn, isdn, is_book, name, circle_name, price, image_url, deleted_at"

func scanProduct(row interface{ Scan(...any) error }) (*domain.Product, error) {
	var p domain.Product
	var deletedAt sql.NullInt64
	err := row.Scan(&p.ID, &p.JANCode, &p.JANCode2, &p.ISBN, &p.ISDN, &p.IsBook,
		&p.Name, &p.CircleName, &p.Price, &p.ImageURL, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		ts := time.Unix(0, deletedAt.Int64).UTC()
		p.DeletedAt = &ts
	}
	return &p, nil
}

func (s *Store) FindProductByBarcode(ctx context.Context, code string) (*domain.Product, error) {
	if strings.TrimSpace(code) == "" {
		return nil, store.ErrNotFound
	}

	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE jan_code = ? AND deleted_at IS NULL
		LIMIT 1
	`, code))
	if err == nil {
		return product, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// No active primary match; fall back to the secondary index.
	product, err = scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE jan_code_2 = ? AND jan_code_2 != '' AND deleted_at IS NULL
		LIMIT 1
	`, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) FindProductByISBN(ctx context.Context, isbn string) (*domain.Product, error) {
	if strings.TrimSpace(isbn) == "" {
		return nil, store.ErrNotFound
	}

	product, err := scanProduct(s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE isbn = ? AND isbn != '' AND deleted_at IS NULL
		LIMIT 1
	`, isbn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *Store) UpsertProduct(ctx context.Context, product domain.Product) error {
	if strings.TrimSpace(product.ID) == "" {
		return store.ErrInvalidRecord
	}

	var deletedAt any
	if product.DeletedAt != nil {
		deletedAt = product.DeletedAt.UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			jan_code = excluded.jan_code,
			jan_code_2 = excluded.jan_code_2,
			isbn = excluded.isbn,
			isdn = excluded.isdn,
			is_book = excluded.is_book,
			name = excluded.name,
			circle_name = excluded.circle_name,
			price = excluded.price,
			image_url = excluded.image_url,
			deleted_at = excluded.deleted_at
	`, product.ID, product.JANCode, product.JANCode2, product.ISBN, product.ISDN,
		product.IsBook, product.Name, product.CircleName, product.Price, product.ImageURL, deletedAt)
	return err
}

func (s *Store) SoftDeleteProduct(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET deleted_at = ? WHERE id = ?
	`, at.UTC().UnixNano(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) RestoreProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products SET deleted_at = NULL WHERE id = ?
	`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE deleted_at IS NULL
		ORDER BY circle_name, name
	`)
}

func (s *Store) ListAllProducts(ctx context.Context) ([]domain.Product, error) {
	return s.listProducts(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY circle_name, name
	`)
}

func (s *Store) listProducts(ctx context.Context, query string) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ReplaceProducts(ctx context.Context, products []domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return err
	}
	for _, product := range products {
		if strings.TrimSpace(product.ID) == "" {
			return store.ErrInvalidRecord
		}
		var deletedAt any
		if product.DeletedAt != nil {
			deletedAt = product.DeletedAt.UnixNano()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (`+productColumns+`)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)
		`, product.ID, product.JANCode, product.JANCode2, product.ISBN, product.ISDN,
			product.IsBook, product.Name, product.CircleName, product.Price, product.ImageURL, deletedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) SaveTransaction(ctx context.Context, tx domain.Transaction) error {
	if tx.ID == "" || len(tx.Items) == 0 {
		return store.ErrInvalidRecord
	}
	items, err := json.Marshal(tx.Items)
	if err != nil {
		return err
	}
	payments, err := json.Marshal(tx.Payments)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, staff_id, items, payments, total_amount, is_training, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, tx.ID, tx.StaffID, string(items), string(payments), tx.TotalAmount, tx.IsTraining, tx.CreatedAt.UTC().UnixNano())
	return err
}

func scanTransaction(rows *sql.Rows) (*domain.Transaction, error) {
	var tx domain.Transaction
	var items, payments string
	var createdAt int64
	if err := rows.Scan(&tx.ID, &tx.StaffID, &items, &payments, &tx.TotalAmount, &tx.IsTraining, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &tx.Items); err != nil {
		return nil, fmt.Errorf("decode transaction items %s: %w", tx.ID, err)
	}
	if err := json.Unmarshal([]byte(payments), &tx.Payments); err != nil {
		return nil, fmt.Errorf("decode transaction payments %s: %w", tx.ID, err)
	}
	tx.CreatedAt = time.Unix(0, createdAt).UTC()
	return &tx, nil
}

func (s *Store) ListTransactions(ctx context.Context, limit int) ([]domain.Transaction, error) {
	if limit < 1 {
		limit = 50
	}
	return s.listTransactions(ctx, `
		SELECT id, staff_id, items, payments, total_amount, is_training, created_at
		FROM transactions
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
}

func (s *Store) ListTransactionsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT id, staff_id, items, payments, total_amount, is_training, created_at
		FROM transactions
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, from.UTC().UnixNano(), to.UTC().UnixNano())
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.Transaction, 0, 64)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) GetSalesSummary(ctx context.Context, key string) (*domain.SalesSummary, error) {
	var summary domain.SalesSummary
	var lastSoldAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT key, jan_code, isbn, name, circle_name, total_quantity, total_amount, last_sold_at
		FROM sales_summaries
		WHERE key = ?
	`, key).Scan(&summary.Key, &summary.JANCode, &summary.ISBN, &summary.Name,
		&summary.CircleName, &summary.TotalQuantity, &summary.TotalAmount, &lastSoldAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	summary.LastSoldAt = time.Unix(0, lastSoldAt).UTC()
	return &summary, nil
}

func (s *Store) PutSalesSummary(ctx context.Context, summary domain.SalesSummary) error {
	if summary.Key == "" {
		return store.ErrInvalidRecord
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales_summaries (key, jan_code, isbn, name, circle_name, total_quantity, total_amount, last_sold_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET
			jan_code = excluded.jan_code,
			isbn = excluded.isbn,
			name = excluded.name,
			circle_name = excluded.circle_name,
			total_quantity = excluded.total_quantity,
			total_amount = excluded.total_amount,
			last_sold_at = excluded.last_sold_at
	`, summary.Key, summary.JANCode, summary.ISBN, summary.Name, summary.CircleName,
		summary.TotalQuantity, summary.TotalAmount, summary.LastSoldAt.UTC().UnixNano())
	return err
}

func (s *Store) ListSalesSummaries(ctx context.Context) ([]domain.SalesSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, jan_code, isbn, name, circle_name, total_quantity, total_amount, last_sold_at
		FROM sales_summaries
		ORDER BY total_amount DESC, key ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.SalesSummary, 0, 64)
	for rows.Next() {
		var summary domain.SalesSummary
		var lastSoldAt int64
		if err := rows.Scan(&summary.Key, &summary.JANCode, &summary.ISBN, &summary.Name,
			&summary.CircleName, &summary.TotalQuantity, &summary.TotalAmount, &lastSoldAt); err != nil {
			return nil, err
		}
		summary.LastSoldAt = time.Unix(0, lastSoldAt).UTC()
		result = append(result, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) ClearSalesSummaries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sales_summaries`)
	return err
}

func (s *Store) SaveOpeningReport(ctx context.Context, report domain.OpeningReport) error {
	if report.ID == "" || report.TerminalID == "" {
		return store.ErrInvalidRecord
	}
	counts, err := json.Marshal(report.Denominations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO opening_reports (id, terminal_id, staff_id, denominations, cash_total, opened_at)
		VALUES (?,?,?,?,?,?)
	`, report.ID, report.TerminalID, report.StaffID, string(counts), report.CashTotal, report.OpenedAt.UTC().UnixNano())
	return err
}

func (s *Store) GetOpeningReportBetween(ctx context.Context, from time.Time, to time.Time) (*domain.OpeningReport, error) {
	var report domain.OpeningReport
	var counts string
	var openedAt int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, terminal_id, staff_id, denominations, cash_total, opened_at
		FROM opening_reports
		WHERE opened_at >= ? AND opened_at < ?
		ORDER BY opened_at DESC
		LIMIT 1
	`, from.UTC().UnixNano(), to.UTC().UnixNano()).Scan(
		&report.ID, &report.TerminalID, &report.StaffID, &counts, &report.CashTotal, &openedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(counts), &report.Denominations); err != nil {
		return nil, fmt.Errorf("decode opening report %s: %w", report.ID, err)
	}
	report.OpenedAt = time.Unix(0, openedAt).UTC()
	return &report, nil
}

func (s *Store) DeleteOpeningReport(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM opening_reports WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) SaveClosingReport(ctx context.Context, report domain.ClosingReport) error {
	if report.ID == "" || report.TerminalID == "" {
		return store.ErrInvalidRecord
	}
	counts, err := json.Marshal(report.Denominations)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO closing_reports (id, terminal_id, staff_id, denominations, counted_cash, expected_cash, variance, closed_at)
		VALUES (?,?,?,?,?,?,?,?)
	`, report.ID, report.TerminalID, report.StaffID, string(counts),
		report.CountedCash, report.ExpectedCash, report.Variance, report.ClosedAt.UTC().UnixNano())
	return err
}

func (s *Store) ListClosingReports(ctx context.Context, limit int) ([]domain.ClosingReport, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_id, staff_id, denominations, counted_cash, expected_cash, variance, closed_at
		FROM closing_reports
		ORDER BY closed_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ClosingReport, 0, limit)
	for rows.Next() {
		var report domain.ClosingReport
		var counts string
		var closedAt int64
		if err := rows.Scan(&report.ID, &report.TerminalID, &report.StaffID, &counts,
			&report.CountedCash, &report.ExpectedCash, &report.Variance, &closedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(counts), &report.Denominations); err != nil {
			return nil, fmt.Errorf("decode closing report %s: %w", report.ID, err)
		}
		report.ClosedAt = time.Unix(0, closedAt).UTC()
		result = append(result, report)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) SaveExchangeRecord(ctx context.Context, record domain.ExchangeRecord) error {
	if record.ID == "" || record.TerminalID == "" {
		return store.ErrInvalidRecord
	}
	given, err := json.Marshal(record.Given)
	if err != nil {
		return err
	}
	received, err := json.Marshal(record.Received)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO exchange_records (id, terminal_id, staff_id, given, received, note, created_at)
		VALUES (?,?,?,?,?,?,?)
	`, record.ID, record.TerminalID, record.StaffID, string(given), string(received),
		record.Note, record.CreatedAt.UTC().UnixNano())
	return err
}

func (s *Store) ListExchangeRecordsBetween(ctx context.Context, from time.Time, to time.Time) ([]domain.ExchangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, terminal_id, staff_id, given, received, note, created_at
		FROM exchange_records
		WHERE created_at >= ? AND created_at < ?
		ORDER BY created_at ASC, id ASC
	`, from.UTC().UnixNano(), to.UTC().UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.ExchangeRecord, 0, 16)
	for rows.Next() {
		var record domain.ExchangeRecord
		var given, received string
		var createdAt int64
		if err := rows.Scan(&record.ID, &record.TerminalID, &record.StaffID,
			&given, &received, &record.Note, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(given), &record.Given); err != nil {
			return nil, fmt.Errorf("decode exchange record %s: %w", record.ID, err)
		}
		if err := json.Unmarshal([]byte(received), &record.Received); err != nil {
			return nil, fmt.Errorf("decode exchange record %s: %w", record.ID, err)
		}
		record.CreatedAt = time.Unix(0, createdAt).UTC()
		result = append(result, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ClearDayData runs the sweep as sequential statements, not one transaction:
// a crash mid-clear leaves partial state, which callers repair by re-running
// the clear. The summary table is emptied whole (it models the active shift).
func (s *Store) ClearDayData(ctx context.Context, from time.Time, to time.Time) error {
	fromNs := from.UTC().UnixNano()
	toNs := to.UTC().UnixNano()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE created_at >= ? AND created_at < ?`, fromNs, toNs); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM opening_reports WHERE opened_at >= ? AND opened_at < ?`, fromNs, toNs); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM exchange_records WHERE created_at >= ? AND created_at < ?`, fromNs, toNs); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sales_summaries`); err != nil {
		return err
	}
	return nil
}

func (s *Store) CreateStaff(ctx context.Context, staff domain.StaffAccount) error {
	number := strings.TrimSpace(staff.StaffNumber)
	if number == "" || strings.TrimSpace(staff.PIN) == "" {
		return store.ErrInvalidRecord
	}
	if staff.Role == "" {
		staff.Role = "cashier"
	}
	if staff.CreatedAt.IsZero() {
		staff.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO staff_accounts (staff_number, pin, role, active, created_at)
		VALUES (?,?,?,1,?)
	`, number, staff.PIN, staff.Role, staff.CreatedAt.UTC().UnixNano())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return store.ErrInvalidRecord
		}
		return err
	}
	return nil
}

func (s *Store) ListStaff(ctx context.Context) ([]domain.StaffAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT staff_number, pin, role, active, created_at
		FROM staff_accounts
		ORDER BY staff_number
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]domain.StaffAccount, 0, 8)
	for rows.Next() {
		var staff domain.StaffAccount
		var createdAt int64
		if err := rows.Scan(&staff.StaffNumber, &staff.PIN, &staff.Role, &staff.Active, &createdAt); err != nil {
			return nil, err
		}
		staff.CreatedAt = time.Unix(0, createdAt).UTC()
		result = append(result, staff)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) UpdateStaffPIN(ctx context.Context, staffNumber string, pin string) error {
	staffNumber = strings.TrimSpace(staffNumber)
	if staffNumber == "" || strings.TrimSpace(pin) == "" {
		return store.ErrInvalidRecord
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE staff_accounts SET pin = ? WHERE staff_number = ?
	`, pin, staffNumber)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
