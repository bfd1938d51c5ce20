package uow

import (
	"context"

	"gorm.io/gorm"

	"blustick/internal/ports"
)

// UnitOfWork implements ports.UnitOfWork with gorm.
//
// gorm's Transaction drives the tx to commit or rollback on every exit path,
// including panic and context cancellation, so a client disconnect mid-batch
// never leaks an open transaction.
type UnitOfWork struct {
	db *gorm.DB
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ports.WithTxContext(ctx, tx))
	})
}
