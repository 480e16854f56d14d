package tx

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a GORM transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a GORM transaction from context if present.
func From(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	return tx, ok
}

// DB returns the transaction in ctx, or db bound to ctx when there is none.
func DB(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := From(ctx); ok {
		return tx.WithContext(ctx)
	}
	return db.WithContext(ctx)
}
