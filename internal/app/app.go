// Package app собирает общие зависимости исполняемых файлов CRM.
package app

import (
	"github.com/mmeshcher/crm-system/internal/config"
	"github.com/mmeshcher/crm-system/internal/repository"
	"github.com/mmeshcher/crm-system/internal/service"
)

// OpenRepository возвращает хранилище PostgreSQL, если задан DatabaseURI, иначе файловое хранилище.
func OpenRepository(cfg *config.Config) (service.Repository, error) {
	if cfg.DatabaseURI != "" {
		repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	repo, err := repository.NewFileRepository(repository.FilePaths{
		Customers: cfg.CustomersFile,
		Invoices:  cfg.InvoicesFile,
		Counters:  cfg.CountersFile,
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}
