package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/mmeshcher/crm-system/internal/ident"
	"github.com/mmeshcher/crm-system/internal/model"
)

// FilePaths задаёт расположение файлов хранилища.
type FilePaths struct {
	Customers string
	Invoices  string
	Counters  string
}

// counters хранит последние выданные номера, чтобы идентификаторы не повторялись после удалений.
type counters struct {
	Customers int64 `json:"customers"`
	Invoices  int64 `json:"invoices"`
}

type fileState struct {
	customers *customerBook
	invoices  []model.Invoice
	counters  counters
}

func (s fileState) clone() fileState {
	return fileState{
		customers: s.customers.clone(),
		invoices:  slices.Clone(s.invoices),
		counters:  s.counters,
	}
}

// FileRepository держит клиентов и счета в памяти и после каждого изменения
// целиком перезаписывает JSON-файлы.
type FileRepository struct {
	mu    sync.Mutex
	paths FilePaths
	state fileState
}

// NewFileRepository загружает состояние из файлов. Отсутствующий файл означает пустой
// контейнер, повреждённый JSON возвращается как ошибка.
func NewFileRepository(paths FilePaths) (*FileRepository, error) {
	book := newCustomerBook()
	if err := readJSON(paths.Customers, book); err != nil {
		return nil, err
	}

	var records []invoiceRecord
	if err := readJSON(paths.Invoices, &records); err != nil {
		return nil, err
	}
	invoices := make([]model.Invoice, 0, len(records))
	for _, rec := range records {
		invoices = append(invoices, rec.toModel())
	}

	var cnt counters
	if paths.Counters != "" {
		if err := readJSON(paths.Counters, &cnt); err != nil {
			return nil, err
		}
	}

	customerIDs := make([]string, 0, book.Len())
	for _, c := range book.All() {
		customerIDs = append(customerIDs, c.ID)
	}
	invoiceNumbers := make([]string, 0, len(invoices))
	for _, inv := range invoices {
		invoiceNumbers = append(invoiceNumbers, inv.Number)
	}
	cnt.Customers = highWater(cnt.Customers, ident.CustomerPrefix, customerIDs)
	cnt.Invoices = highWater(cnt.Invoices, ident.InvoicePrefix, invoiceNumbers)

	return &FileRepository{
		paths: paths,
		state: fileState{
			customers: book,
			invoices:  invoices,
			counters:  cnt,
		},
	}, nil
}

// highWater возвращает наибольшее из сохранённого счётчика, номеров в идентификаторах и числа записей.
func highWater(last int64, prefix string, ids []string) int64 {
	last = max(last, int64(len(ids)))
	for _, id := range ids {
		if n, ok := ident.Parse(prefix, id); ok {
			last = max(last, n)
		}
	}
	return last
}

// Close ничего не освобождает: все данные уже на диске.
func (r *FileRepository) Close() error {
	return nil
}

// CreateCustomer присваивает клиенту идентификатор, добавляет его и сохраняет файлы.
func (r *FileRepository) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.customers.Get(c.Email); ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerExists, c.Email)
	}

	id, n := ident.Next(ident.CustomerPrefix, r.state.counters.Customers)
	c.ID = id

	err := r.mutate(func(s *fileState) {
		s.customers.Put(c.Email, c)
		s.counters.Customers = n
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetCustomer возвращает клиента по email.
func (r *FileRepository) GetCustomer(ctx context.Context, email string) (*model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.state.customers.Get(email)
	if !ok {
		return nil, ErrCustomerNotFound
	}
	return &c, nil
}

// ListCustomers возвращает клиентов в порядке регистрации.
func (r *FileRepository) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state.customers.All(), nil
}

// DeleteCustomer удаляет клиента и все его счета, возвращает число удалённых счетов.
func (r *FileRepository) DeleteCustomer(ctx context.Context, email string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.state.customers.Get(email); !ok {
		return 0, ErrCustomerNotFound
	}

	removed := 0
	err := r.mutate(func(s *fileState) {
		s.customers.Delete(email)
		before := len(s.invoices)
		s.invoices = slices.DeleteFunc(s.invoices, func(inv model.Invoice) bool {
			return inv.Email == email
		})
		removed = before - len(s.invoices)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// CreateInvoice добавляет счёт существующему клиенту, копируя его текущее имя.
func (r *FileRepository) CreateInvoice(ctx context.Context, inv model.Invoice) (*model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.state.customers.Get(inv.Email)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCustomerNotFound, inv.Email)
	}

	number, n := ident.Next(ident.InvoicePrefix, r.state.counters.Invoices)
	inv.Number = number
	inv.CustomerName = c.FullName

	err := r.mutate(func(s *fileState) {
		s.invoices = append(s.invoices, inv)
		s.counters.Invoices = n
	})
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// ListInvoices возвращает все счета в порядке создания.
func (r *FileRepository) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.state.invoices), nil
}

// ListInvoicesByCustomer возвращает счета клиента в порядке создания.
func (r *FileRepository) ListInvoicesByCustomer(ctx context.Context, email string) ([]model.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res []model.Invoice
	for _, inv := range r.state.invoices {
		if inv.Email == email {
			res = append(res, inv)
		}
	}
	return res, nil
}

// mutate применяет изменение и сохраняет файлы; при ошибке записи состояние откатывается.
func (r *FileRepository) mutate(fn func(s *fileState)) error {
	prev := r.state.clone()
	fn(&r.state)

	if err := r.flush(); err != nil {
		r.state = prev
		return err
	}
	return nil
}

func (r *FileRepository) flush() error {
	if err := writeJSON(r.paths.Customers, r.state.customers); err != nil {
		return err
	}

	records := make([]invoiceRecord, 0, len(r.state.invoices))
	for _, inv := range r.state.invoices {
		records = append(records, toInvoiceRecord(inv))
	}
	if err := writeJSON(r.paths.Invoices, records); err != nil {
		return err
	}

	if r.paths.Counters == "" {
		return nil
	}
	return writeJSON(r.paths.Counters, r.state.counters)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON пишет отступ в 4 пробела, без экранирования не-ASCII и HTML, через временный файл.
func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
