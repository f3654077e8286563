// Package console реализует текстовое меню CRM для работы оператора через stdin/stdout.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"github.com/mmeshcher/crm-system/internal/model"
	"github.com/mmeshcher/crm-system/internal/repository"
	"github.com/mmeshcher/crm-system/internal/validation"
)

// Service определяет операции CRM, доступные из меню.
type Service interface {
	RegisterCustomer(ctx context.Context, in model.CustomerInput) (*model.Customer, error)
	CreateInvoice(ctx context.Context, in model.InvoiceInput) (*model.Invoice, error)
	SearchByEmail(ctx context.Context, email string) (*model.Customer, error)
	SearchByName(ctx context.Context, query string) ([]model.Customer, error)
	ListCustomers(ctx context.Context) ([]model.Customer, error)
	CustomerInvoices(ctx context.Context, email string) (*model.CustomerInvoices, error)
	DeleteCustomer(ctx context.Context, email string) (int, error)
	FinancialSummary(ctx context.Context) (*model.Summary, error)
	Statistics(ctx context.Context) (*model.Statistics, error)
}

const menu = `
===== CRM =====
1. Register customer
2. Search customer
3. Create invoice
4. List customers
5. Customer invoices
6. Financial summary
7. Delete customer
8. Statistics
9. Exit`

// Console читает команды построчно из in и печатает результаты в out.
type Console struct {
	svc    Service
	in     *bufio.Scanner
	out    io.Writer
	logger *zap.Logger
}

// New создаёт консоль поверх указанного сервиса.
func New(svc Service, in io.Reader, out io.Writer, logger *zap.Logger) *Console {
	return &Console{
		svc:    svc,
		in:     bufio.NewScanner(in),
		out:    out,
		logger: logger,
	}
}

// Run показывает меню до выбора пункта выхода или конца ввода.
func (c *Console) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		fmt.Fprintln(c.out, menu)
		choice, err := c.prompt("Select an option: ")
		if err != nil {
			return c.endOfInput(err)
		}

		switch choice {
		case "1":
			err = c.register(ctx)
		case "2":
			err = c.search(ctx)
		case "3":
			err = c.createInvoice(ctx)
		case "4":
			err = c.listCustomers(ctx)
		case "5":
			err = c.customerInvoices(ctx)
		case "6":
			err = c.summary(ctx)
		case "7":
			err = c.deleteCustomer(ctx)
		case "8":
			err = c.statistics(ctx)
		case "9":
			fmt.Fprintln(c.out, "Goodbye.")
			return nil
		default:
			fmt.Fprintln(c.out, "Invalid option, choose 1-9.")
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				return c.endOfInput(err)
			}
			c.report(err)
		}
	}
}

func (c *Console) endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// prompt печатает приглашение и возвращает введённую строку без пробелов по краям.
func (c *Console) prompt(label string) (string, error) {
	fmt.Fprint(c.out, label)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", fmt.Errorf("read input: %w", err)
		}
		fmt.Fprintln(c.out)
		return "", io.EOF
	}
	return strings.TrimSpace(c.in.Text()), nil
}

func (c *Console) report(err error) {
	switch {
	case errors.Is(err, repository.ErrCustomerNotFound):
		fmt.Fprintln(c.out, "Customer not found.")
	case errors.Is(err, repository.ErrCustomerExists):
		fmt.Fprintln(c.out, "A customer with that email already exists.")
	case errors.Is(err, validation.ErrRequiredField),
		errors.Is(err, validation.ErrInvalidEmail),
		errors.Is(err, validation.ErrInvalidAmount),
		errors.Is(err, validation.ErrInvalidStatus):
		fmt.Fprintf(c.out, "Error: %v\n", err)
	default:
		c.logger.Error("console operation error", zap.Error(err))
		fmt.Fprintln(c.out, "Unexpected error, see logs.")
	}
}

func (c *Console) register(ctx context.Context) error {
	var in model.CustomerInput
	fields := []struct {
		label string
		dst   *string
	}{
		{"Name: ", &in.Name},
		{"Surname: ", &in.Surname},
		{"Email: ", &in.Email},
		{"Phone (optional): ", &in.Phone},
		{"Address (optional): ", &in.Address},
	}
	for _, f := range fields {
		v, err := c.prompt(f.label)
		if err != nil {
			return err
		}
		*f.dst = v
	}

	customer, err := c.svc.RegisterCustomer(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Customer registered with id %s.\n", customer.ID)
	return nil
}

func (c *Console) search(ctx context.Context) error {
	mode, err := c.prompt("Search by (1) email or (2) name: ")
	if err != nil {
		return err
	}

	switch mode {
	case "1":
		email, err := c.prompt("Email: ")
		if err != nil {
			return err
		}
		customer, err := c.svc.SearchByEmail(ctx, email)
		if err != nil {
			return err
		}
		c.printCustomers([]model.Customer{*customer})
	case "2":
		query, err := c.prompt("Name contains: ")
		if err != nil {
			return err
		}
		customers, err := c.svc.SearchByName(ctx, query)
		if err != nil {
			return err
		}
		if len(customers) == 0 {
			fmt.Fprintln(c.out, "No customers match.")
			return nil
		}
		c.printCustomers(customers)
	default:
		fmt.Fprintln(c.out, "Invalid search mode.")
	}
	return nil
}

// statusChoice переводит номер пункта в метку статуса; остальной ввод передаётся как есть.
func statusChoice(v string) string {
	switch v {
	case "1":
		return string(model.InvoiceStatusPending)
	case "2":
		return string(model.InvoiceStatusPaid)
	case "3":
		return string(model.InvoiceStatusCancelled)
	default:
		return v
	}
}

func (c *Console) createInvoice(ctx context.Context) error {
	var in model.InvoiceInput

	email, err := c.prompt("Customer email: ")
	if err != nil {
		return err
	}
	in.Email = email

	if _, err := c.svc.SearchByEmail(ctx, email); err != nil {
		return err
	}

	if in.Description, err = c.prompt("Description: "); err != nil {
		return err
	}
	if in.Amount, err = c.prompt("Amount: "); err != nil {
		return err
	}
	status, err := c.prompt("Status (1) Pendiente (2) Pagada (3) Cancelada: ")
	if err != nil {
		return err
	}
	in.Status = statusChoice(status)

	inv, err := c.svc.CreateInvoice(ctx, in)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Invoice %s created for %s.\n", inv.Number, inv.CustomerName)
	return nil
}

func (c *Console) listCustomers(ctx context.Context) error {
	customers, err := c.svc.ListCustomers(ctx)
	if err != nil {
		return err
	}
	if len(customers) == 0 {
		fmt.Fprintln(c.out, "No customers registered.")
		return nil
	}
	c.printCustomers(customers)
	return nil
}

func (c *Console) customerInvoices(ctx context.Context) error {
	email, err := c.prompt("Customer email: ")
	if err != nil {
		return err
	}

	res, err := c.svc.CustomerInvoices(ctx, email)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Invoices of %s <%s>\n", res.Customer.FullName, res.Customer.Email)
	if len(res.Invoices) == 0 {
		fmt.Fprintln(c.out, "No invoices.")
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NUMBER\tDATE\tDESCRIPTION\tAMOUNT\tSTATUS")
	for _, inv := range res.Invoices {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", inv.Number, inv.IssuedAt, inv.Description, inv.Amount, inv.Status)
	}
	tw.Flush()

	fmt.Fprintf(c.out, "Total: %.2f  Pending: %.2f\n", res.Total, res.Pending)
	return nil
}

func (c *Console) summary(ctx context.Context) error {
	s, err := c.svc.FinancialSummary(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CUSTOMER\tEMAIL\tINVOICES\tTOTAL\tPAID\tPENDING")
	for _, cs := range s.Customers {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.2f\t%.2f\t%.2f\n", cs.Name, cs.Email, cs.Invoices, cs.Total, cs.Paid, cs.Pending)
	}
	fmt.Fprintf(tw, "TOTAL\t%d customers\t%d\t%.2f\t%.2f\t%.2f\n",
		s.Totals.Customers, s.Totals.Invoices, s.Totals.Total, s.Totals.Paid, s.Totals.Pending)
	return tw.Flush()
}

func confirmed(answer string) bool {
	switch strings.ToLower(answer) {
	case "y", "yes", "s", "si", "sí":
		return true
	default:
		return false
	}
}

func (c *Console) deleteCustomer(ctx context.Context) error {
	email, err := c.prompt("Customer email: ")
	if err != nil {
		return err
	}

	customer, err := c.svc.SearchByEmail(ctx, email)
	if err != nil {
		return err
	}

	answer, err := c.prompt(fmt.Sprintf("Delete %s and all their invoices? (y/n): ", customer.FullName))
	if err != nil {
		return err
	}
	if !confirmed(answer) {
		fmt.Fprintln(c.out, "Deletion cancelled.")
		return nil
	}

	removed, err := c.svc.DeleteCustomer(ctx, email)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Customer deleted together with %d invoice(s).\n", removed)
	return nil
}

func (c *Console) statistics(ctx context.Context) error {
	stats, err := c.svc.Statistics(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Total invoices: %d\n", stats.TotalInvoices)
	fmt.Fprintf(c.out, "Average amount: %.2f\n", stats.AverageAmount)
	if len(stats.InvoicesPerMonth) == 0 {
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tINVOICES")
	for _, mc := range stats.InvoicesPerMonth {
		fmt.Fprintf(tw, "%s\t%d\n", mc.Month, mc.Count)
	}
	return tw.Flush()
}

func (c *Console) printCustomers(customers []model.Customer) {
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tPHONE\tADDRESS\tREGISTERED")
	for _, cu := range customers {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", cu.ID, cu.FullName, cu.Email, cu.Phone, cu.Address, cu.RegisteredOn)
	}
	tw.Flush()
}
