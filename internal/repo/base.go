package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base holds the gorm handle a repository queries through. Repositories embed
// it and rebind it to a transaction with Bind.
type Base struct {
	conn *gorm.DB
}

func NewBase(conn *gorm.DB) Base {
	return Base{conn: conn}
}

// DB returns the handle scoped to ctx.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.conn
	}
	return b.conn.WithContext(ctx)
}

// Bind returns a Base issuing queries on tx, or b unchanged when tx is nil.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{conn: tx}
}
