// Package packetlog is the storage layer for the trackingsdk-logger
// example CLI: an optional SQLite capture of a session's packets, kept
// entirely outside the SDK core (spec.md §1's non-goals exclude
// persistence from the Ring itself).
package packetlog

import (
	"context"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ommotech/trackingsdk/internal/wire"
)

// Store wraps a GORM SQLite connection.
type Store struct {
	orm *gorm.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// the schema migration.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&PacketRow{}); err != nil {
		return nil, err
	}
	return &Store{orm: db}, nil
}

// Insert persists one packet, identified by the ring index it was
// delivered under.
func (s *Store) Insert(ctx context.Context, idx uint64, p wire.Packet) error {
	receivedAt, ok := p.LatencyStampAt(wire.LatencyStampServiceReceived)
	if !ok {
		receivedAt = p.Report.Timestamp
	}
	row := PacketRow{
		SIUUUID:     p.Device.SIUUUID,
		PortID:      p.Device.PortID,
		PacketIndex: idx,
		AngleDeg:    p.Report.AngleDeg,
		SpeedMps:    p.Report.SpeedMps,
		BatteryPct:  p.Battery.PercentCharge,
		ReceivedAt:  receivedAt,
		CapturedAt:  time.Now(),
	}
	return s.orm.WithContext(ctx).Create(&row).Error
}

// Count returns the number of rows captured so far.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.orm.WithContext(ctx).Model(&PacketRow{}).Count(&n).Error
	return n, err
}

// Close releases the underlying SQL connection.
func (s *Store) Close() error {
	sqlDB, err := s.orm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
