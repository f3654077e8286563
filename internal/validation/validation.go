// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/crm-system/internal/model"
)

var (
	// ErrRequiredField возвращается, если обязательное поле пустое.
	ErrRequiredField = errors.New("required field is empty")
	// ErrInvalidEmail возвращается при неверном формате email.
	ErrInvalidEmail = errors.New("invalid email format")
	// ErrInvalidAmount возвращается, если сумма не число или не больше нуля.
	ErrInvalidAmount = errors.New("amount must be a number greater than zero")
	// ErrInvalidStatus возвращается при неизвестном статусе счёта.
	ErrInvalidStatus = errors.New("unknown invoice status")
)

// Проверка только структурная: локальная часть, @, домен с точкой. Конец строки не фиксируется.
var emailPattern = regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	// Собственные теги: crmemail, amount, invoicestatus.
	_ = v.RegisterValidation("crmemail", func(fl validator.FieldLevel) bool {
		return IsValidEmail(fl.Field().String())
	})
	_ = v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		_, err := ParseAmount(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("invoicestatus", func(fl validator.FieldLevel) bool {
		_, ok := model.ParseInvoiceStatus(fl.Field().String())
		return ok
	})

	return v
}

// IsValidEmail проверяет email по минимальному шаблону local@domain.tld.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// NormalizeEmail приводит email к виду ключа хранилища.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ParseAmount разбирает денежную сумму и проверяет, что она строго больше нуля.
func ParseAmount(s string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if !d.IsPositive() {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	// Сумма хранится как float64: значение должно остаться конечным и положительным после перевода.
	f := d.InexactFloat64()
	if f <= 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %s", ErrInvalidAmount, d.String())
	}
	return f, nil
}

// ParseStatus проверяет метку статуса счёта.
func ParseStatus(s string) (model.InvoiceStatus, error) {
	status, ok := model.ParseInvoiceStatus(s)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}

// ValidateCustomer проверяет форму регистрации: сначала обязательные поля, затем формат email.
// Поля должны быть предварительно очищены от пробелов по краям.
func ValidateCustomer(in model.CustomerInput) error {
	return structErr(validate.Struct(in))
}

// ValidateInvoice проверяет сумму и статус формы выставления счёта.
func ValidateInvoice(in model.InvoiceInput) error {
	return structErr(validate.Struct(in))
}

func structErr(err error) error {
	if err == nil {
		return nil
	}

	var valErrs validator.ValidationErrors
	if !errors.As(err, &valErrs) {
		return err
	}

	for _, fe := range valErrs {
		if fe.Tag() == "required" {
			return fmt.Errorf("%w: %s", ErrRequiredField, fe.Field())
		}
	}

	fe := valErrs[0]
	switch fe.Tag() {
	case "crmemail":
		return fmt.Errorf("%w: %v", ErrInvalidEmail, fe.Value())
	case "amount":
		return fmt.Errorf("%w: %v", ErrInvalidAmount, fe.Value())
	case "invoicestatus":
		return fmt.Errorf("%w: %v", ErrInvalidStatus, fe.Value())
	default:
		return fmt.Errorf("field %s failed %s validation", fe.Field(), fe.Tag())
	}
}
