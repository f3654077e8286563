// Package ident формирует последовательные идентификаторы записей CRM.
package ident

import (
	"fmt"
	"strconv"
	"strings"
)

// Префиксы идентификаторов по видам записей.
const (
	CustomerPrefix = "USR"
	InvoicePrefix  = "FAC"
)

// Format возвращает идентификатор вида PREFIX001. Начиная с 1000 номер
// просто удлиняется, фиксированная ширина теряется.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%03d", prefix, n)
}

// Next возвращает идентификатор, следующий за последним выданным номером.
func Next(prefix string, last int64) (string, int64) {
	n := last + 1
	return Format(prefix, n), n
}

// Parse извлекает номер из идентификатора с указанным префиксом.
func Parse(prefix, id string) (int64, bool) {
	digits, ok := strings.CutPrefix(id, prefix)
	if !ok || digits == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
