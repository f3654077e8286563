package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/crm-system/internal/metrics"
	"github.com/mmeshcher/crm-system/internal/model"
	"github.com/mmeshcher/crm-system/internal/repository"
	"github.com/mmeshcher/crm-system/internal/validation"
)

func newFileService(t *testing.T) (*Service, *repository.FileRepository) {
	t.Helper()

	dir := t.TempDir()
	repo, err := repository.NewFileRepository(repository.FilePaths{
		Customers: filepath.Join(dir, "usuarios.json"),
		Invoices:  filepath.Join(dir, "facturas.json"),
		Counters:  filepath.Join(dir, "contadores.json"),
	})
	require.NoError(t, err)

	svc := NewService(repo, nil)
	svc.now = func() time.Time { return time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC) }
	return svc, repo
}

func register(t *testing.T, svc *Service, name, surname, email string) *model.Customer {
	t.Helper()

	c, err := svc.RegisterCustomer(context.Background(), model.CustomerInput{Name: name, Surname: surname, Email: email})
	require.NoError(t, err)
	return c
}

func TestScenario_RegisterInvoiceSummary(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	ana := register(t, svc, "Ana", "Lopez", "ana@x.com")
	bob := register(t, svc, "Bob", "Diaz", "bob@x.com")
	assert.Equal(t, "USR001", ana.ID)
	assert.Equal(t, "USR002", bob.ID)

	inv, err := svc.CreateInvoice(ctx, model.InvoiceInput{
		Email:       "ana@x.com",
		Description: "Consultoría",
		Amount:      "100.0",
		Status:      "Pagada",
	})
	require.NoError(t, err)
	assert.Equal(t, "FAC001", inv.Number)
	assert.Equal(t, "Ana Lopez", inv.CustomerName)
	assert.Equal(t, "05/03/2024 14:30", inv.IssuedAt)
	assert.Equal(t, model.InvoiceStatusPaid, inv.Status)

	summary, err := svc.FinancialSummary(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Customers, 2)

	anaSummary := summary.Customers[0]
	assert.Equal(t, "ana@x.com", anaSummary.Email)
	assert.Equal(t, 1, anaSummary.Invoices)
	assert.InDelta(t, 100.0, anaSummary.Total, 1e-9)
	assert.InDelta(t, 100.0, anaSummary.Paid, 1e-9)
	assert.InDelta(t, 0.0, anaSummary.Pending, 1e-9)

	assert.Equal(t, 0, summary.Customers[1].Invoices)
	assert.Equal(t, 2, summary.Totals.Customers)
	assert.Equal(t, 1, summary.Totals.Invoices)
	assert.InDelta(t, 100.0, summary.Totals.Total, 1e-9)

	found, err := svc.SearchByName(ctx, "an")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Ana Lopez", found[0].FullName)
}

func TestRegisterCustomer_Defaults(t *testing.T) {
	svc, _ := newFileService(t)

	c, err := svc.RegisterCustomer(context.Background(), model.CustomerInput{
		Name:    "  José ",
		Surname: "Núñez",
		Email:   " Jose@X.com ",
		Phone:   "   ",
	})
	require.NoError(t, err)

	assert.Equal(t, "José Núñez", c.FullName)
	assert.Equal(t, "jose@x.com", c.Email)
	assert.Equal(t, model.Unspecified, c.Phone)
	assert.Equal(t, model.Unspecified, c.Address)
	assert.Equal(t, "05/03/2024", c.RegisteredOn)
}

func TestRegisterCustomer_Duplicate(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()

	register(t, svc, "Ana", "Lopez", "ana@x.com")

	_, err := svc.RegisterCustomer(ctx, model.CustomerInput{Name: "Ana", Surname: "Otra", Email: "ANA@x.com"})
	require.ErrorIs(t, err, repository.ErrCustomerExists)

	customers, err := svc.ListCustomers(ctx)
	require.NoError(t, err)
	assert.Len(t, customers, 1)
}

func TestRegisterCustomer_ValidationLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		in      model.CustomerInput
		wantErr error
	}{
		{name: "empty name", in: model.CustomerInput{Surname: "Lopez", Email: "ana@x.com"}, wantErr: validation.ErrRequiredField},
		{name: "blank surname", in: model.CustomerInput{Name: "Ana", Surname: "  ", Email: "ana@x.com"}, wantErr: validation.ErrRequiredField},
		{name: "empty email", in: model.CustomerInput{Name: "Ana", Surname: "Lopez"}, wantErr: validation.ErrRequiredField},
		{name: "bad email", in: model.CustomerInput{Name: "Ana", Surname: "Lopez", Email: "ana@x"}, wantErr: validation.ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newFileService(t)
			ctx := context.Background()

			_, err := svc.RegisterCustomer(ctx, tt.in)
			require.ErrorIs(t, err, tt.wantErr)

			customers, err := svc.ListCustomers(ctx)
			require.NoError(t, err)
			assert.Empty(t, customers)

			summary, err := svc.FinancialSummary(ctx)
			require.NoError(t, err)
			assert.Zero(t, summary.Totals.Invoices)
		})
	}
}

func TestCreateInvoice_Failures(t *testing.T) {
	tests := []struct {
		name    string
		in      model.InvoiceInput
		wantErr error
	}{
		{name: "unknown customer", in: model.InvoiceInput{Email: "nobody@x.com", Amount: "10", Status: "Pagada"}, wantErr: repository.ErrCustomerNotFound},
		{name: "unknown customer wins over bad amount", in: model.InvoiceInput{Email: "nobody@x.com", Amount: "-1", Status: "Pagada"}, wantErr: repository.ErrCustomerNotFound},
		{name: "zero amount", in: model.InvoiceInput{Email: "ana@x.com", Amount: "0", Status: "Pagada"}, wantErr: validation.ErrInvalidAmount},
		{name: "negative amount", in: model.InvoiceInput{Email: "ana@x.com", Amount: "-3.5", Status: "Pagada"}, wantErr: validation.ErrInvalidAmount},
		{name: "non-numeric amount", in: model.InvoiceInput{Email: "ana@x.com", Amount: "cien", Status: "Pagada"}, wantErr: validation.ErrInvalidAmount},
		{name: "amount before status", in: model.InvoiceInput{Email: "ana@x.com", Amount: "x", Status: "Borrador"}, wantErr: validation.ErrInvalidAmount},
		{name: "unknown status", in: model.InvoiceInput{Email: "ana@x.com", Amount: "10", Status: "Borrador"}, wantErr: validation.ErrInvalidStatus},
		{name: "amount underflows to zero", in: model.InvoiceInput{Email: "ana@x.com", Amount: "1e-400", Status: "Pagada"}, wantErr: validation.ErrInvalidAmount},
		{name: "amount overflows to infinity", in: model.InvoiceInput{Email: "ana@x.com", Amount: "1e400", Status: "Pagada"}, wantErr: validation.ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newFileService(t)
			ctx := context.Background()
			register(t, svc, "Ana", "Lopez", "ana@x.com")

			_, err := svc.CreateInvoice(ctx, tt.in)
			require.ErrorIs(t, err, tt.wantErr)

			stats, err := svc.Statistics(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.TotalInvoices)
		})
	}
}

func TestSearchByEmail(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()
	register(t, svc, "Ana", "Lopez", "ana@x.com")

	c, err := svc.SearchByEmail(ctx, " ANA@x.com")
	require.NoError(t, err)
	assert.Equal(t, "USR001", c.ID)

	_, err = svc.SearchByEmail(ctx, "bob@x.com")
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
}

func TestSearchByName_InsertionOrder(t *testing.T) {
	svc, _ := newFileService(t)
	register(t, svc, "Zoe", "Martin", "zoe@x.com")
	register(t, svc, "Mario", "Alba", "mario@x.com")
	register(t, svc, "Luis", "Perez", "luis@x.com")

	found, err := svc.SearchByName(context.Background(), "MAR")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "Zoe Martin", found[0].FullName)
	assert.Equal(t, "Mario Alba", found[1].FullName)
}

func TestCustomerInvoices(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()
	register(t, svc, "Ana", "Lopez", "ana@x.com")
	register(t, svc, "Bob", "Diaz", "bob@x.com")

	for _, in := range []model.InvoiceInput{
		{Email: "ana@x.com", Amount: "10.10", Status: "Pendiente"},
		{Email: "bob@x.com", Amount: "99", Status: "Pendiente"},
		{Email: "ana@x.com", Amount: "20.20", Status: "Pagada"},
		{Email: "ana@x.com", Amount: "5", Status: "Cancelada"},
	} {
		_, err := svc.CreateInvoice(ctx, in)
		require.NoError(t, err)
	}

	res, err := svc.CustomerInvoices(ctx, "ana@x.com")
	require.NoError(t, err)
	require.Len(t, res.Invoices, 3)
	assert.Equal(t, []string{"FAC001", "FAC003", "FAC004"}, []string{res.Invoices[0].Number, res.Invoices[1].Number, res.Invoices[2].Number})
	assert.InDelta(t, 35.30, res.Total, 1e-9)
	assert.InDelta(t, 10.10, res.Pending, 1e-9)

	_, err = svc.CustomerInvoices(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
}

func TestDeleteCustomer_Cascades(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()
	register(t, svc, "Ana", "Lopez", "ana@x.com")
	register(t, svc, "Bob", "Diaz", "bob@x.com")

	for _, in := range []model.InvoiceInput{
		{Email: "ana@x.com", Amount: "1", Status: "Pagada"},
		{Email: "bob@x.com", Amount: "2", Status: "Pagada"},
		{Email: "ana@x.com", Amount: "3", Status: "Pendiente"},
	} {
		_, err := svc.CreateInvoice(ctx, in)
		require.NoError(t, err)
	}

	removed, err := svc.DeleteCustomer(ctx, "ana@x.com")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = svc.SearchByEmail(ctx, "ana@x.com")
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)

	bobInvoices, err := svc.CustomerInvoices(ctx, "bob@x.com")
	require.NoError(t, err)
	require.Len(t, bobInvoices.Invoices, 1)
	assert.Equal(t, "FAC002", bobInvoices.Invoices[0].Number)

	_, err = svc.DeleteCustomer(ctx, "ana@x.com")
	assert.ErrorIs(t, err, repository.ErrCustomerNotFound)
}

func TestStatistics(t *testing.T) {
	svc, _ := newFileService(t)
	ctx := context.Background()
	register(t, svc, "Ana", "Lopez", "ana@x.com")

	months := []time.Time{
		time.Date(2024, time.February, 10, 9, 0, 0, 0, time.UTC),
		time.Date(2024, time.January, 3, 9, 0, 0, 0, time.UTC),
		time.Date(2024, time.February, 28, 18, 45, 0, 0, time.UTC),
	}
	amounts := []string{"10", "20", "15"}
	for i, m := range months {
		svc.now = func() time.Time { return m }
		_, err := svc.CreateInvoice(ctx, model.InvoiceInput{Email: "ana@x.com", Amount: amounts[i], Status: "Pendiente"})
		require.NoError(t, err)
	}

	stats, err := svc.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInvoices)
	assert.InDelta(t, 15.0, stats.AverageAmount, 1e-9)
	assert.Equal(t, []model.MonthCount{
		{Month: "2024-01", Count: 1},
		{Month: "2024-02", Count: 2},
	}, stats.InvoicesPerMonth)
}

func TestStatistics_Empty(t *testing.T) {
	svc, _ := newFileService(t)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalInvoices)
	assert.Zero(t, stats.AverageAmount)
	assert.Empty(t, stats.InvoicesPerMonth)
}

func TestService_RecordsMetrics(t *testing.T) {
	svc, _ := newFileService(t)
	m := metrics.New(prometheus.NewRegistry())
	svc.metrics = m
	ctx := context.Background()

	register(t, svc, "Ana", "Lopez", "ana@x.com")
	_, _ = svc.RegisterCustomer(ctx, model.CustomerInput{Name: "Ana", Surname: "Lopez", Email: "ana@x.com"})
	_, err := svc.CreateInvoice(ctx, model.InvoiceInput{Email: "ana@x.com", Amount: "5", Status: "paid"})
	require.NoError(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(m.CustomersRegistered), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Rejections.WithLabelValues("register", "duplicate")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.InvoicesIssued.WithLabelValues("Pagada")), 0)
}

type stubRepo struct {
	customers []model.Customer
	invoices  []model.Invoice
	listErr   error
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateCustomer(ctx context.Context, c model.Customer) (*model.Customer, error) {
	return &c, nil
}

func (s *stubRepo) GetCustomer(ctx context.Context, email string) (*model.Customer, error) {
	return nil, repository.ErrCustomerNotFound
}

func (s *stubRepo) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	return s.customers, s.listErr
}

func (s *stubRepo) DeleteCustomer(ctx context.Context, email string) (int, error) {
	return 0, repository.ErrCustomerNotFound
}

func (s *stubRepo) CreateInvoice(ctx context.Context, inv model.Invoice) (*model.Invoice, error) {
	return &inv, nil
}

func (s *stubRepo) ListInvoices(ctx context.Context) ([]model.Invoice, error) {
	return s.invoices, s.listErr
}

func (s *stubRepo) ListInvoicesByCustomer(ctx context.Context, email string) ([]model.Invoice, error) {
	return nil, s.listErr
}

func TestFinancialSummary_PropagatesRepositoryError(t *testing.T) {
	repoErr := errors.New("disk on fire")
	svc := NewService(&stubRepo{listErr: repoErr}, nil)

	_, err := svc.FinancialSummary(context.Background())
	assert.ErrorIs(t, err, repoErr)

	_, err = svc.SearchByName(context.Background(), "a")
	assert.ErrorIs(t, err, repoErr)
}

func TestStatistics_SkipsUnparsableDates(t *testing.T) {
	svc := NewService(&stubRepo{invoices: []model.Invoice{
		{Number: "FAC001", IssuedAt: "05/03/2024 10:00", Amount: 10},
		{Number: "FAC002", IssuedAt: "ayer", Amount: 20},
		{Number: "FAC003", IssuedAt: "06/04/2024", Amount: 30},
	}}, nil)

	stats, err := svc.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalInvoices)
	assert.InDelta(t, 20.0, stats.AverageAmount, 1e-9)
	assert.Equal(t, []model.MonthCount{
		{Month: "2024-03", Count: 1},
		{Month: "2024-04", Count: 1},
	}, stats.InvoicesPerMonth)
}
