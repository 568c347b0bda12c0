package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	slogGorm "github.com/orandin/slog-gorm"
	"github.com/streamplace/oidcrp/pkg/oidcrp"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type Store struct {
	DB     *gorm.DB
	Logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger, verbose bool) (*Store, error) {
	gormLogger := slogGorm.New(
		slogGorm.WithHandler(tint.NewHandler(os.Stderr, &tint.Options{
			TimeFormat: time.RFC3339,
		})),
	)
	if verbose {
		gormLogger = slogGorm.New(
			slogGorm.WithHandler(tint.NewHandler(os.Stderr, &tint.Options{
				TimeFormat: time.RFC3339,
			})),
			slogGorm.WithTraceAll(),
		)
	}
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}
	if err := db.AutoMigrate(&Discovery{}, &Key{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &Store{DB: db, Logger: logger}, nil
}

// Discovery is a cached discovery document for one authority and client_id.
type Discovery struct {
	Authority string `gorm:"primaryKey"`
	ClientID  string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	FetchedAt time.Time
	Document  string
}

// GetDiscovery returns nil without error when nothing younger than ttl is stored.
func (s *Store) GetDiscovery(authority, clientID string, ttl time.Duration) (*oidcrp.Configuration, error) {
	var row Discovery
	err := s.DB.Where("authority = ? AND client_id = ?", authority, clientID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if time.Since(row.FetchedAt) > ttl {
		s.Logger.Debug("cached discovery document expired", "authority", authority, "fetched_at", row.FetchedAt)
		return nil, nil
	}
	conf := &oidcrp.Configuration{ClientID: row.ClientID}
	if err := json.Unmarshal([]byte(row.Document), &conf.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt cached discovery document for %s: %w", authority, err)
	}
	return conf, nil
}

func (s *Store) PutDiscovery(authority string, conf *oidcrp.Configuration) error {
	bs, err := json.Marshal(conf.Metadata)
	if err != nil {
		return err
	}
	return s.DB.Save(&Discovery{
		Authority: authority,
		ClientID:  conf.ClientID,
		FetchedAt: time.Now(),
		Document:  string(bs),
	}).Error
}
