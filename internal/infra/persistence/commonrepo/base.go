package commonrepo

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Mode struct {
	ID        uint64    `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index;autoCreateTime"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime"`
}

type dbContextKey struct{}

// DefaultRepo 仓储基类：事务内的调用通过 context 携带 tx，使同一事务贯穿多个仓储
type DefaultRepo struct {
	db DB
}

func NewDefaultRepo(db DB) DefaultRepo {
	return DefaultRepo{db: db}
}

func (r *DefaultRepo) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.Db(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, dbContextKey{}, tx))
	})
}

func (r *DefaultRepo) Db(ctx context.Context) DB {
	if tx, ok := ctx.Value(dbContextKey{}).(DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}
