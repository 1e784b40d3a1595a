package repository

import (
	"context"

	"gorm.io/gorm"
)

// Transactor runs a unit of work in one database transaction. Repositories
// bind to the transaction with their WithTx method.
type Transactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) Do(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return t.db.WithContext(ctx).Transaction(fn)
}
