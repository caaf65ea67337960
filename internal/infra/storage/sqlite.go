// Package storage persists the trade ledger, alert history and telemetry
// snapshots to SQLite.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tradeflow/internal/domain"
)

// Storage wraps the SQLite database handle.
type Storage struct {
	db *gorm.DB
}

// NewStorage opens the database at the default per-OS data path.
func NewStorage() (*Storage, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve DB path: %w", err)
	}
	return NewStorageAt(dbPath)
}

// NewStorageAt opens (or creates) the database at an explicit path and runs
// migrations.
func NewStorageAt(dbPath string) (*Storage, error) {
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create DB directory: %w", err)
	}

	// Pure Go SQLite
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&domain.TradeRecord{}, &domain.AlertRecord{}, &domain.SnapshotRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// getDBPath resolves the database file path based on OS.
func getDBPath() (string, error) {
	var configDir string
	var err error

	if runtime.GOOS == "windows" {
		configDir = os.Getenv("LOCALAPPDATA")
		if configDir == "" {
			configDir, err = os.UserConfigDir()
		}
	} else {
		configDir, err = os.UserConfigDir()
	}

	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, "TradeFlow", "data", "tradeflow.db"), nil
}

// InsertTrade appends a trade ledger row.
func (s *Storage) InsertTrade(t *domain.TradeRecord) error {
	return s.db.Create(t).Error
}

// TradesByRoute returns the ledger rows for one route, oldest first.
func (s *Storage) TradesByRoute(routeID string) ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := s.db.Where("route_id = ?", routeID).Order("created_at asc").Find(&out).Error
	return out, err
}

// AllTrades returns the full ledger, oldest first.
func (s *Storage) AllTrades() ([]domain.TradeRecord, error) {
	var out []domain.TradeRecord
	err := s.db.Order("created_at asc").Find(&out).Error
	return out, err
}

// InsertAlert appends an alert row.
func (s *Storage) InsertAlert(a *domain.AlertRecord) error {
	return s.db.Create(a).Error
}

// AlertsByLevel returns alerts of one level, newest first, up to limit.
func (s *Storage) AlertsByLevel(level string, limit int) ([]domain.AlertRecord, error) {
	var out []domain.AlertRecord
	err := s.db.Where("level = ?", level).Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// InsertSnapshot appends a telemetry snapshot row.
func (s *Storage) InsertSnapshot(r *domain.SnapshotRecord) error {
	return s.db.Create(r).Error
}

// RecentSnapshots returns the newest snapshots, newest first.
func (s *Storage) RecentSnapshots(limit int) ([]domain.SnapshotRecord, error) {
	var out []domain.SnapshotRecord
	err := s.db.Order("created_at desc").Limit(limit).Find(&out).Error
	return out, err
}

// Close releases the underlying connection.
func (s *Storage) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
