package orm

import (
	"fmt"
	"time"

	"github.com/antidetect/automation/internal/infra/persistence/runrepo"
	"github.com/antidetect/automation/internal/infra/persistence/taskrepo"
	"github.com/antidetect/automation/internal/infra/persistence/webhookrepo"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var Provider = wire.NewSet(New)

type Config struct {
	Host                  string
	Port                  int
	Database              string
	User                  string
	Password              string
	MaxConnections        int
	MaxIdleConnections    int
	ConnectionMaxLifetime time.Duration
}

type Storage struct {
	db *gorm.DB
}

func New(cfg Config) (*Storage, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConnections)
	sqlDB.SetConnMaxLifetime(cfg.ConnectionMaxLifetime)

	if err := db.AutoMigrate(
		&taskrepo.TaskPo{},
		&runrepo.RunPo{},
		&webhookrepo.SubscriptionPo{},
		&webhookrepo.DeliveryPo{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate tables: %w", err)
	}

	return &Storage{db: db}, nil
}

func (s *Storage) DB() *gorm.DB {
	return s.db
}

func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
