package commonrepo

import (
	"context"
	"database/sql"

	"gorm.io/gorm"
)

type DB interface {
	Model(value any) (tx *gorm.DB)
	Create(value any) (tx *gorm.DB)
	Save(value any) (tx *gorm.DB)
	Where(query any, args ...any) (tx *gorm.DB)
	Delete(value any, conds ...any) (tx *gorm.DB)
	Transaction(fn func(tx *gorm.DB) error, opts ...*sql.TxOptions) error
	AutoMigrate(table ...any) error
	First(dest any, conds ...any) (tx *gorm.DB)
	Find(dest any, conds ...any) (tx *gorm.DB)
	Updates(values any) *gorm.DB
	Count(count *int64) *gorm.DB
	Offset(offset int) *gorm.DB
	Limit(limit int) *gorm.DB
	Order(value any) *gorm.DB
	WithContext(ctx context.Context) *gorm.DB
	DB() (*sql.DB, error)
}
