// Package handler содержит HTTP-обработчики API CRM.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mmeshcher/crm-system/internal/model"
	"github.com/mmeshcher/crm-system/internal/repository"
	"github.com/mmeshcher/crm-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
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

// Handler реализует HTTP-обработчики API CRM.
type Handler struct {
	service  Service
	logger   *zap.Logger
	gatherer prometheus.Gatherer
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. Если gatherer равен nil,
// маршрут /metrics не регистрируется.
func NewHandler(s Service, logger *zap.Logger, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		service:  s,
		logger:   logger,
		gatherer: gatherer,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type deleteResponse struct {
	RemovedInvoices int `json:"removed_invoices"`
}

type customerRequest struct {
	Name    string `json:"name" form:"name"`
	Surname string `json:"surname" form:"surname"`
	Email   string `json:"email" form:"email"`
	Phone   string `json:"phone" form:"phone"`
	Address string `json:"address" form:"address"`
}

type invoiceRequest struct {
	Email       string      `json:"email" form:"email"`
	Description string      `json:"description" form:"description"`
	Amount      amountField `json:"amount" form:"amount"`
	Status      string      `json:"status" form:"status"`
}

// amountField принимает сумму и числом, и строкой: проверка значения остаётся за валидатором.
type amountField string

func (a *amountField) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*a = amountField(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = amountField(n.String())
	return nil
}

// decode разбирает тело запроса в формате JSON или формы; без Content-Type тело считается JSON.
func decode(r *http.Request, v any) error {
	if r.Header.Get("Content-Type") == "" {
		return render.DecodeJSON(r.Body, v)
	}
	return render.Decode(r, v)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, status int, v any) {
	render.Status(r, status)
	render.JSON(w, r, v)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.respond(w, r, status, errorResponse{Error: msg})
}

// failErr выбирает код ответа по ошибке бизнес-логики.
func (h *Handler) failErr(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, validation.ErrRequiredField),
		errors.Is(err, validation.ErrInvalidEmail),
		errors.Is(err, validation.ErrInvalidAmount),
		errors.Is(err, validation.ErrInvalidStatus):
		h.fail(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrCustomerExists):
		h.fail(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, repository.ErrCustomerNotFound):
		h.fail(w, r, http.StatusNotFound, err.Error())
	default:
		h.logger.Error(op+" error", zap.Error(err))
		h.fail(w, r, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
	}
}

func emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	if email, err := url.PathUnescape(raw); err == nil {
		return email
	}
	return raw
}

// RegisterCustomer регистрирует нового клиента.
func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	c, err := h.service.RegisterCustomer(r.Context(), model.CustomerInput{
		Name:    req.Name,
		Surname: req.Surname,
		Email:   req.Email,
		Phone:   req.Phone,
		Address: req.Address,
	})
	if err != nil {
		h.failErr(w, r, "register customer", err)
		return
	}

	h.respond(w, r, http.StatusCreated, c)
}

// ListCustomers возвращает всех клиентов в порядке регистрации.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context())
	if err != nil {
		h.failErr(w, r, "list customers", err)
		return
	}

	if len(customers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.respond(w, r, http.StatusOK, customers)
}

// SearchCustomers ищет клиентов по точному email или по подстроке имени.
func (h *Handler) SearchCustomers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if email := strings.TrimSpace(q.Get("email")); email != "" {
		c, err := h.service.SearchByEmail(r.Context(), email)
		if err != nil {
			h.failErr(w, r, "search by email", err)
			return
		}
		h.respond(w, r, http.StatusOK, []model.Customer{*c})
		return
	}

	if !q.Has("name") {
		h.fail(w, r, http.StatusBadRequest, "email or name query parameter is required")
		return
	}

	customers, err := h.service.SearchByName(r.Context(), q.Get("name"))
	if err != nil {
		h.failErr(w, r, "search by name", err)
		return
	}

	if len(customers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.respond(w, r, http.StatusOK, customers)
}

// CustomerInvoices возвращает счета клиента с итогами.
func (h *Handler) CustomerInvoices(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.CustomerInvoices(r.Context(), emailParam(r))
	if err != nil {
		h.failErr(w, r, "customer invoices", err)
		return
	}

	if res.Invoices == nil {
		res.Invoices = []model.Invoice{}
	}

	h.respond(w, r, http.StatusOK, res)
}

// DeleteCustomer удаляет клиента и его счета. Требует параметр confirm=true.
func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("confirm") != "true" {
		h.fail(w, r, http.StatusBadRequest, "deletion must be confirmed with confirm=true")
		return
	}

	removed, err := h.service.DeleteCustomer(r.Context(), emailParam(r))
	if err != nil {
		h.failErr(w, r, "delete customer", err)
		return
	}

	h.respond(w, r, http.StatusOK, deleteResponse{RemovedInvoices: removed})
}

// CreateInvoice выставляет счёт клиенту.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req invoiceRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	inv, err := h.service.CreateInvoice(r.Context(), model.InvoiceInput{
		Email:       req.Email,
		Description: req.Description,
		Amount:      string(req.Amount),
		Status:      req.Status,
	})
	if err != nil {
		h.failErr(w, r, "create invoice", err)
		return
	}

	h.respond(w, r, http.StatusCreated, inv)
}

// Summary возвращает финансовую сводку.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.FinancialSummary(r.Context())
	if err != nil {
		h.failErr(w, r, "financial summary", err)
		return
	}

	h.respond(w, r, http.StatusOK, summary)
}

// Stats возвращает статистику выставленных счетов.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		h.failErr(w, r, "statistics", err)
		return
	}

	h.respond(w, r, http.StatusOK, stats)
}
