// Package service реализует бизнес-логику CRM: регистрацию клиентов, выставление счетов и отчёты.
package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/crm-system/internal/metrics"
	"github.com/mmeshcher/crm-system/internal/model"
	"github.com/mmeshcher/crm-system/internal/repository"
	"github.com/mmeshcher/crm-system/internal/validation"
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error)
	GetCustomer(ctx context.Context, email string) (*model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	DeleteCustomer(ctx context.Context, email string) (int, error)
	CreateInvoice(ctx context.Context, inv model.Invoice) (*model.Invoice, error)
	ListInvoices(ctx context.Context) ([]model.Invoice, error)
	ListInvoicesByCustomer(ctx context.Context, email string) ([]model.Invoice, error)
}

// Service содержит бизнес-логику CRM.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService создаёт новый сервис с указанным репозиторием. metrics может быть nil.
func NewService(repo Repository, m *metrics.Metrics) *Service {
	return &Service{
		repo:    repo,
		metrics: m,
		now:     time.Now,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterCustomer проверяет данные формы и регистрирует нового клиента.
func (s *Service) RegisterCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Surname = strings.TrimSpace(in.Surname)
	in.Email = strings.TrimSpace(in.Email)

	if err := validation.ValidateCustomer(in); err != nil {
		s.metrics.Rejected("register", reason(err))
		return nil, err
	}

	c := model.Customer{
		FullName:     in.Name + " " + in.Surname,
		Email:        validation.NormalizeEmail(in.Email),
		Phone:        orUnspecified(in.Phone),
		Address:      orUnspecified(in.Address),
		RegisteredOn: s.now().Format(model.DateLayout),
	}

	created, err := s.repo.CreateCustomer(ctx, c)
	if err != nil {
		s.metrics.Rejected("register", reason(err))
		return nil, err
	}

	s.metrics.CustomerRegistered()
	return created, nil
}

func orUnspecified(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return model.Unspecified
	}
	return v
}

// CreateInvoice выставляет счёт существующему клиенту.
func (s *Service) CreateInvoice(ctx context.Context, in model.InvoiceInput) (*model.Invoice, error) {
	email := validation.NormalizeEmail(in.Email)

	if _, err := s.repo.GetCustomer(ctx, email); err != nil {
		s.metrics.Rejected("invoice", reason(err))
		return nil, err
	}

	if err := validation.ValidateInvoice(in); err != nil {
		s.metrics.Rejected("invoice", reason(err))
		return nil, err
	}

	amount, err := validation.ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	status, err := validation.ParseStatus(in.Status)
	if err != nil {
		return nil, err
	}

	inv := model.Invoice{
		IssuedAt:    s.now().Format(model.DateTimeLayout),
		Description: strings.TrimSpace(in.Description),
		Amount:      amount,
		Status:      status,
		Email:       email,
	}

	created, err := s.repo.CreateInvoice(ctx, inv)
	if err != nil {
		s.metrics.Rejected("invoice", reason(err))
		return nil, err
	}

	s.metrics.InvoiceIssued(string(created.Status))
	return created, nil
}

// SearchByEmail ищет клиента по точному совпадению email.
func (s *Service) SearchByEmail(ctx context.Context, email string) (*model.Customer, error) {
	return s.repo.GetCustomer(ctx, validation.NormalizeEmail(email))
}

// SearchByName возвращает клиентов, в полном имени которых встречается query без учёта регистра.
func (s *Service) SearchByName(ctx context.Context, query string) ([]model.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(query))

	var res []model.Customer
	for _, c := range customers {
		if strings.Contains(strings.ToLower(c.FullName), q) {
			res = append(res, c)
		}
	}
	return res, nil
}

// ListCustomers возвращает всех клиентов в порядке регистрации.
func (s *Service) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.repo.ListCustomers(ctx)
}

// CustomerInvoices возвращает счета клиента с общей суммой и суммой к оплате.
func (s *Service) CustomerInvoices(ctx context.Context, email string) (*model.CustomerInvoices, error) {
	email = validation.NormalizeEmail(email)

	c, err := s.repo.GetCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListInvoicesByCustomer(ctx, email)
	if err != nil {
		return nil, err
	}

	var t totals
	for _, inv := range invoices {
		t.add(inv)
	}

	return &model.CustomerInvoices{
		Customer: *c,
		Invoices: invoices,
		Total:    t.total.InexactFloat64(),
		Pending:  t.pending.InexactFloat64(),
	}, nil
}

// DeleteCustomer удаляет клиента и все его счета. Подтверждение запрашивает вызывающая сторона.
func (s *Service) DeleteCustomer(ctx context.Context, email string) (int, error) {
	removed, err := s.repo.DeleteCustomer(ctx, validation.NormalizeEmail(email))
	if err != nil {
		s.metrics.Rejected("delete", reason(err))
		return 0, err
	}

	s.metrics.CustomerDeleted()
	return removed, nil
}

type totals struct {
	count   int
	total   decimal.Decimal
	paid    decimal.Decimal
	pending decimal.Decimal
}

func (t *totals) add(inv model.Invoice) {
	amount := decimal.NewFromFloat(inv.Amount)

	t.count++
	t.total = t.total.Add(amount)
	switch inv.Status {
	case model.InvoiceStatusPaid:
		t.paid = t.paid.Add(amount)
	case model.InvoiceStatusPending:
		t.pending = t.pending.Add(amount)
	}
}

func (t *totals) merge(o totals) {
	t.count += o.count
	t.total = t.total.Add(o.total)
	t.paid = t.paid.Add(o.paid)
	t.pending = t.pending.Add(o.pending)
}

// FinancialSummary считает число счетов, общую, оплаченную и ожидающую сумму по каждому клиенту и в целом.
func (s *Service) FinancialSummary(ctx context.Context) (*model.Summary, error) {
	customers, err := s.repo.ListCustomers(ctx)
	if err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}

	byEmail := make(map[string]*totals, len(customers))
	for _, inv := range invoices {
		t, ok := byEmail[inv.Email]
		if !ok {
			t = &totals{}
			byEmail[inv.Email] = t
		}
		t.add(inv)
	}

	summary := &model.Summary{
		Customers: make([]model.CustomerSummary, 0, len(customers)),
	}

	var all totals
	for _, c := range customers {
		var t totals
		if ct, ok := byEmail[c.Email]; ok {
			t = *ct
		}
		all.merge(t)

		summary.Customers = append(summary.Customers, model.CustomerSummary{
			Name:     c.FullName,
			Email:    c.Email,
			Invoices: t.count,
			Total:    t.total.InexactFloat64(),
			Paid:     t.paid.InexactFloat64(),
			Pending:  t.pending.InexactFloat64(),
		})
	}

	summary.Totals = model.SummaryTotals{
		Customers: len(customers),
		Invoices:  all.count,
		Total:     all.total.InexactFloat64(),
		Paid:      all.paid.InexactFloat64(),
		Pending:   all.pending.InexactFloat64(),
	}

	return summary, nil
}

// Statistics возвращает число счетов по месяцам, общее число счетов и среднюю сумму.
// Счета с нераспознанной датой учитываются в итогах, но не в помесячной разбивке.
func (s *Service) Statistics(ctx context.Context) (*model.Statistics, error) {
	invoices, err := s.repo.ListInvoices(ctx)
	if err != nil {
		return nil, err
	}

	perMonth := make(map[string]int)
	sum := decimal.Zero
	for _, inv := range invoices {
		sum = sum.Add(decimal.NewFromFloat(inv.Amount))

		issued, err := parseIssuedAt(inv.IssuedAt)
		if err != nil {
			continue
		}
		perMonth[issued.Format("2006-01")]++
	}

	stats := &model.Statistics{
		InvoicesPerMonth: make([]model.MonthCount, 0, len(perMonth)),
		TotalInvoices:    len(invoices),
	}
	for _, month := range slices.Sorted(maps.Keys(perMonth)) {
		stats.InvoicesPerMonth = append(stats.InvoicesPerMonth, model.MonthCount{
			Month: month,
			Count: perMonth[month],
		})
	}
	if len(invoices) > 0 {
		stats.AverageAmount = sum.Div(decimal.NewFromInt(int64(len(invoices)))).Round(2).InexactFloat64()
	}

	return stats, nil
}

func parseIssuedAt(v string) (time.Time, error) {
	t, err := time.Parse(model.DateTimeLayout, v)
	if err == nil {
		return t, nil
	}
	if t, err := time.Parse(model.DateLayout, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse invoice date %q: %w", v, err)
}

// reason возвращает метку причины отказа для метрик.
func reason(err error) string {
	switch {
	case errors.Is(err, validation.ErrRequiredField):
		return "required"
	case errors.Is(err, validation.ErrInvalidEmail):
		return "email"
	case errors.Is(err, validation.ErrInvalidAmount):
		return "amount"
	case errors.Is(err, validation.ErrInvalidStatus):
		return "status"
	case errors.Is(err, repository.ErrCustomerExists):
		return "duplicate"
	case errors.Is(err, repository.ErrCustomerNotFound):
		return "not_found"
	default:
		return "error"
	}
}
