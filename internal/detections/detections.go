// Package detections reads the person counts written by the on-board vision
// pipeline.
package detections

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// Source is the read side of the detection feed.
type Source interface {
	Latest(ctx context.Context) (types.DetectionSample, bool, error)
}

// PersonCount is one row of the vision pipeline's person_count table.
type PersonCount struct {
	ID        uint      `gorm:"primaryKey"`
	Count     int       `gorm:"column:count"`
	Timestamp time.Time `gorm:"column:timestamp;index"`
}

func (PersonCount) TableName() string {
	return "person_count"
}

type Store struct {
	db *gorm.DB
}

// Open opens the detection database read-only. The table is owned by the
// vision pipeline and is never migrated from here.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=2000", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.WithMessagef(err, "Could not open detection database %s", path)
	}

	return &Store{db}, nil
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db}
}

// latestRow is scanned loosely: the vision pipeline may store timestamp as
// DATETIME, epoch seconds or text.
type latestRow struct {
	Count     int
	Timestamp sql.NullString
}

func (s *Store) Latest(ctx context.Context) (types.DetectionSample, bool, error) {
	var rows []latestRow
	err := s.db.WithContext(ctx).
		Model(&PersonCount{}).
		Select("count", "timestamp").
		Order("timestamp DESC").
		Limit(1).
		Scan(&rows).Error
	if err != nil {
		return types.DetectionSample{}, false, errors.WithMessage(err, "Could not query person_count")
	}
	if len(rows) == 0 {
		return types.DetectionSample{}, false, nil
	}

	return types.DetectionSample{Count: rows[0].Count, ObservedAt: parseTimestamp(rows[0].Timestamp.String)}, true, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// parseTimestamp returns the zero time when the value is not recognised.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		whole, frac := math.Modf(secs)
		return time.Unix(int64(whole), int64(frac*1e9)).UTC()
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
