// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/wfunc/drawserver/models"
)

// GormWordStore keeps the vocabulary in PostgreSQL through GORM.
type GormWordStore struct {
	db *gorm.DB
}

// NewGormPostgreSQL connects, sizes the pool and migrates the words table.
func NewGormPostgreSQL(host string, port int, user, password, dbname string) (*GormWordStore, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormWord{}); err != nil {
		return nil, fmt.Errorf("migrate words: %w", err)
	}

	return &GormWordStore{db: db}, nil
}

func (s *GormWordStore) ListWords(ctx context.Context) ([]string, error) {
	var words []string
	err := s.db.WithContext(ctx).
		Model(&models.GormWord{}).
		Where("enabled = ?", true).
		Order("id").
		Pluck("text", &words).Error
	return words, err
}

func (s *GormWordStore) AddWords(ctx context.Context, words []string) error {
	if len(words) == 0 {
		return nil
	}
	rows := make([]models.GormWord, 0, len(words))
	for _, w := range words {
		rows = append(rows, models.GormWord{Text: w, Enabled: true})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "text"}},
			DoNothing: true,
		}).CreateInBatches(rows, 100).Error
	})
}

func (s *GormWordStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
