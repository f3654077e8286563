// Package model содержит доменные сущности CRM: клиентов, счета и финансовые сводки.
package model

import "strings"

// Unspecified подставляется вместо незаполненных необязательных полей клиента.
const Unspecified = "No especificado"

// Форматы дат, в которых хранятся отметки времени.
const (
	DateLayout     = "02/01/2006"
	DateTimeLayout = "02/01/2006 15:04"
)

// Customer представляет зарегистрированного клиента.
type Customer struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Address      string `json:"address"`
	RegisteredOn string `json:"registered_on"`
}

// InvoiceStatus описывает статус оплаты счёта.
type InvoiceStatus string

const (
	InvoiceStatusPending   InvoiceStatus = "Pendiente"
	InvoiceStatusPaid      InvoiceStatus = "Pagada"
	InvoiceStatusCancelled InvoiceStatus = "Cancelada"
)

// InvoiceStatuses перечисляет допустимые статусы в порядке их показа пользователю.
var InvoiceStatuses = []InvoiceStatus{
	InvoiceStatusPending,
	InvoiceStatusPaid,
	InvoiceStatusCancelled,
}

var statusAliases = map[string]InvoiceStatus{
	"pendiente": InvoiceStatusPending,
	"pending":   InvoiceStatusPending,
	"pagada":    InvoiceStatusPaid,
	"paid":      InvoiceStatusPaid,
	"cancelada": InvoiceStatusCancelled,
	"cancelled": InvoiceStatusCancelled,
	"canceled":  InvoiceStatusCancelled,
}

// ParseInvoiceStatus распознаёт статус по испанской или английской метке без учёта регистра.
func ParseInvoiceStatus(s string) (InvoiceStatus, bool) {
	status, ok := statusAliases[strings.ToLower(strings.TrimSpace(s))]
	return status, ok
}

// Invoice описывает выставленный клиенту счёт.
type Invoice struct {
	Number       string        `json:"number"`
	IssuedAt     string        `json:"issued_at"`
	Description  string        `json:"description"`
	Amount       float64       `json:"amount"`
	Status       InvoiceStatus `json:"status"`
	CustomerName string        `json:"customer_name"`
	Email        string        `json:"email"`
}

// CustomerInput содержит данные формы регистрации клиента.
type CustomerInput struct {
	Name    string `json:"name" validate:"required"`
	Surname string `json:"surname" validate:"required"`
	Email   string `json:"email" validate:"required,crmemail"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

// InvoiceInput содержит данные формы выставления счёта. Сумма передаётся строкой,
// как её ввёл пользователь.
type InvoiceInput struct {
	Email       string `json:"email"`
	Description string `json:"description"`
	Amount      string `json:"amount" validate:"amount"`
	Status      string `json:"status" validate:"invoicestatus"`
}

// CustomerInvoices содержит счета одного клиента и их итоги.
type CustomerInvoices struct {
	Customer Customer  `json:"customer"`
	Invoices []Invoice `json:"invoices"`
	Total    float64   `json:"total"`
	Pending  float64   `json:"pending"`
}

// CustomerSummary содержит финансовые показатели одного клиента.
type CustomerSummary struct {
	Name     string  `json:"name"`
	Email    string  `json:"email"`
	Invoices int     `json:"invoices"`
	Total    float64 `json:"total"`
	Paid     float64 `json:"paid"`
	Pending  float64 `json:"pending"`
}

// SummaryTotals содержит показатели, агрегированные по всем клиентам.
type SummaryTotals struct {
	Customers int     `json:"customers"`
	Invoices  int     `json:"invoices"`
	Total     float64 `json:"total"`
	Paid      float64 `json:"paid"`
	Pending   float64 `json:"pending"`
}

// Summary содержит финансовую сводку по клиентам и в целом.
type Summary struct {
	Customers []CustomerSummary `json:"customers"`
	Totals    SummaryTotals     `json:"totals"`
}

// MonthCount содержит число счетов, выставленных за календарный месяц (YYYY-MM).
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// Statistics содержит статистику выставленных счетов.
type Statistics struct {
	InvoicesPerMonth []MonthCount `json:"invoices_per_month"`
	TotalInvoices    int          `json:"total_invoices"`
	AverageAmount    float64      `json:"average_amount"`
}
