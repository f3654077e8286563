package repository

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/mmeshcher/crm-system/internal/model"
	"github.com/mmeshcher/crm-system/internal/validation"
)

// customerRecord и invoiceRecord повторяют ключи файлов usuarios.json и facturas.json.
type customerRecord struct {
	ID           string `json:"id"`
	Name         string `json:"nombre"`
	Email        string `json:"email"`
	Phone        string `json:"telefono"`
	Address      string `json:"direccion"`
	RegisteredOn string `json:"fecha_registro"`
}

type invoiceRecord struct {
	Number       string  `json:"numero"`
	IssuedAt     string  `json:"fecha"`
	Description  string  `json:"descripcion"`
	Amount       float64 `json:"monto"`
	Status       string  `json:"estado"`
	CustomerName string  `json:"cliente"`
	Email        string  `json:"email"`
}

func toCustomerRecord(c model.Customer) customerRecord {
	return customerRecord{
		ID:           c.ID,
		Name:         c.FullName,
		Email:        c.Email,
		Phone:        c.Phone,
		Address:      c.Address,
		RegisteredOn: c.RegisteredOn,
	}
}

func (r customerRecord) toModel() model.Customer {
	return model.Customer{
		ID:           r.ID,
		FullName:     r.Name,
		Email:        validation.NormalizeEmail(r.Email),
		Phone:        r.Phone,
		Address:      r.Address,
		RegisteredOn: r.RegisteredOn,
	}
}

func toInvoiceRecord(inv model.Invoice) invoiceRecord {
	return invoiceRecord{
		Number:       inv.Number,
		IssuedAt:     inv.IssuedAt,
		Description:  inv.Description,
		Amount:       inv.Amount,
		Status:       string(inv.Status),
		CustomerName: inv.CustomerName,
		Email:        inv.Email,
	}
}

func (r invoiceRecord) toModel() model.Invoice {
	return model.Invoice{
		Number:       r.Number,
		IssuedAt:     r.IssuedAt,
		Description:  r.Description,
		Amount:       r.Amount,
		Status:       model.InvoiceStatus(r.Status),
		CustomerName: r.CustomerName,
		Email:        validation.NormalizeEmail(r.Email),
	}
}

// customerBook хранит клиентов по email в порядке добавления и
// сериализуется в JSON-объект с тем же порядком ключей.
type customerBook struct {
	order []string
	byKey map[string]model.Customer
}

func newCustomerBook() *customerBook {
	return &customerBook{byKey: make(map[string]model.Customer)}
}

func (b *customerBook) Len() int {
	return len(b.order)
}

func (b *customerBook) Get(key string) (model.Customer, bool) {
	c, ok := b.byKey[key]
	return c, ok
}

// Put добавляет клиента в конец или заменяет существующую запись на её месте.
func (b *customerBook) Put(key string, c model.Customer) {
	if _, ok := b.byKey[key]; !ok {
		b.order = append(b.order, key)
	}
	b.byKey[key] = c
}

func (b *customerBook) Delete(key string) bool {
	if _, ok := b.byKey[key]; !ok {
		return false
	}
	delete(b.byKey, key)
	if i := slices.Index(b.order, key); i >= 0 {
		b.order = slices.Delete(b.order, i, i+1)
	}
	return true
}

func (b *customerBook) All() []model.Customer {
	res := make([]model.Customer, 0, len(b.order))
	for _, key := range b.order {
		res = append(res, b.byKey[key])
	}
	return res
}

func (b *customerBook) clone() *customerBook {
	c := &customerBook{
		order: slices.Clone(b.order),
		byKey: make(map[string]model.Customer, len(b.byKey)),
	}
	for k, v := range b.byKey {
		c.byKey[k] = v
	}
	return c
}

// MarshalJSON кодирует клиентов как объект email -> запись в порядке добавления.
func (b *customerBook) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range b.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := encodeCompact(key)
		if err != nil {
			return nil, err
		}
		v, err := encodeCompact(toCustomerRecord(b.byKey[key]))
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON читает объект email -> запись, сохраняя порядок ключей из файла.
// Ключи приводятся к нижнему регистру, как при поиске.
func (b *customerBook) UnmarshalJSON(data []byte) error {
	*b = *newCustomerBook()

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("customers: expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("customers: unexpected key %v", tok)
		}

		var rec customerRecord
		if err := dec.Decode(&rec); err != nil {
			return fmt.Errorf("customers: decode %q: %w", key, err)
		}
		b.Put(validation.NormalizeEmail(key), rec.toModel())
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
