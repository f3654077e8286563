package repository

import "errors"

var (
	// ErrCustomerExists возвращается при попытке зарегистрировать уже существующий email.
	ErrCustomerExists = errors.New("customer already exists")
	// ErrCustomerNotFound возвращается, если клиент с таким email не найден.
	ErrCustomerNotFound = errors.New("customer not found")
)
