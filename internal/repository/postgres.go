// Package repository содержит хранилища клиентов и счетов: JSON-файлы и PostgreSQL.
package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/mmeshcher/crm-system/internal/ident"
	"github.com/mmeshcher/crm-system/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	counterCustomers = "customers"
	counterInvoices  = "invoices"
)

// PostgresRepository предоставляет доступ к хранилищу данных в PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository создаёт новый репозиторий и инициализирует схему БД через миграции.
func NewPostgresRepository(dsn string) (*PostgresRepository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	r := &PostgresRepository{pool: pool}

	if err := r.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return r, nil
}

func (r *PostgresRepository) runMigrations(ctx context.Context) error {
	db := stdlib.OpenDBFromPool(r.pool)
	defer db.Close()

	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

func (r *PostgresRepository) withRetry(ctx context.Context, fn func() error) error {
	var err error
	delays := []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

	for i := 0; i <= len(delays); i++ {
		err = fn()
		if err == nil {
			return nil
		}

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		if !isRetryable(err) || i == len(delays) {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delays[i]):
		}
	}
	return err
}

// isRetryable сообщает, стоит ли повторить операцию: конфликт сериализации, дедлок или обрыв соединения.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure || pgErr.Code == pgerrcode.DeadlockDetected
	}
	return isConnectionError(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func isConnectionError(err error) bool {
	// Упрощенная проверка на ошибки соединения
	return strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "broken pipe") ||
		strings.Contains(err.Error(), "connection reset by peer")
}

// Close закрывает пул соединений с БД.
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// nextCounter увеличивает счётчик в рамках транзакции; откат транзакции возвращает его значение.
func nextCounter(ctx context.Context, tx pgx.Tx, kind string) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx,
		`UPDATE counters SET last_value = last_value + 1 WHERE kind = $1 RETURNING last_value`,
		kind,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next %s counter: %w", kind, err)
	}
	return n, nil
}

// CreateCustomer присваивает клиенту идентификатор и сохраняет его.
func (r *PostgresRepository) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		n, err := nextCounter(ctx, tx, counterCustomers)
		if err != nil {
			return err
		}
		c.ID = ident.Format(ident.CustomerPrefix, n)

		_, err = tx.Exec(ctx,
			`INSERT INTO customers (id, email, full_name, phone, address, registered_on)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.ID, c.Email, c.FullName, c.Phone, c.Address, c.RegisteredOn,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", ErrCustomerExists, c.Email)
			}
			return fmt.Errorf("insert customer: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomer возвращает клиента по email.
func (r *PostgresRepository) GetCustomer(ctx context.Context, email string) (*model.Customer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, full_name, email, phone, address, registered_on FROM customers WHERE email = $1`,
		email,
	)

	var c model.Customer
	err := row.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Address, &c.RegisteredOn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}

	return &c, nil
}

// ListCustomers возвращает клиентов в порядке регистрации.
func (r *PostgresRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, full_name, email, phone, address, registered_on
		 FROM customers
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("select customers: %w", err)
	}
	defer rows.Close()

	var res []model.Customer
	for rows.Next() {
		var c model.Customer
		if err := rows.Scan(&c.ID, &c.FullName, &c.Email, &c.Phone, &c.Address, &c.RegisteredOn); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		res = append(res, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}

// DeleteCustomer удаляет клиента вместе со счетами и возвращает число удалённых счетов.
func (r *PostgresRepository) DeleteCustomer(ctx context.Context, email string) (int, error) {
	var removed int
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		invTag, err := tx.Exec(ctx, `DELETE FROM invoices WHERE email = $1`, email)
		if err != nil {
			return fmt.Errorf("delete invoices: %w", err)
		}

		custTag, err := tx.Exec(ctx, `DELETE FROM customers WHERE email = $1`, email)
		if err != nil {
			return fmt.Errorf("delete customer: %w", err)
		}
		if custTag.RowsAffected() == 0 {
			return ErrCustomerNotFound
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}

		removed = int(invTag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CreateInvoice сохраняет счёт существующего клиента, копируя его текущее имя.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv model.Invoice) (*model.Invoice, error) {
	err := r.withRetry(ctx, func() error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback(ctx)

		// Блокируем клиента, чтобы параллельное удаление не оставило счёт без владельца.
		err = tx.QueryRow(ctx,
			`SELECT full_name FROM customers WHERE email = $1 FOR SHARE`,
			inv.Email,
		).Scan(&inv.CustomerName)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrCustomerNotFound, inv.Email)
			}
			return fmt.Errorf("lock customer: %w", err)
		}

		n, err := nextCounter(ctx, tx, counterInvoices)
		if err != nil {
			return err
		}
		inv.Number = ident.Format(ident.InvoicePrefix, n)

		_, err = tx.Exec(ctx,
			`INSERT INTO invoices (number, issued_at, description, amount, status, customer_name, email)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inv.Number, inv.IssuedAt, inv.Description, inv.Amount, string(inv.Status), inv.CustomerName, inv.Email,
		)
		if err != nil {
			return fmt.Errorf("insert invoice: %w", err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices возвращает все счета в порядке создания.
func (r *PostgresRepository) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, issued_at, description, amount, status, customer_name, email
		 FROM invoices
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	return collectInvoices(rows)
}

// ListInvoicesByCustomer возвращает счета клиента в порядке создания.
func (r *PostgresRepository) ListInvoicesByCustomer(ctx context.Context, email string) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT number, issued_at, description, amount, status, customer_name, email
		 FROM invoices
		 WHERE email = $1
		 ORDER BY seq`,
		email,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]model.Invoice, error) {
	defer rows.Close()

	var res []model.Invoice
	for rows.Next() {
		var (
			inv    model.Invoice
			status string
		)
		if err := rows.Scan(&inv.Number, &inv.IssuedAt, &inv.Description, &inv.Amount, &status, &inv.CustomerName, &inv.Email); err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		inv.Status = model.InvoiceStatus(status)
		res = append(res, inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return res, nil
}
