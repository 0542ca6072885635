package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"backtest_go/internal/domain"
)

// CachedRange is one cached price-series artifact, keyed by
// (instrument, start, end, fidelity). Rows are immutable once written;
// overlapping fetches are merged into a new covering range.
type CachedRange struct {
	ID         uint   `gorm:"primaryKey"`
	Instrument string `gorm:"index:idx_cache_key,unique;not null"`
	StartUnix  int64  `gorm:"index:idx_cache_key,unique;not null"`
	EndUnix    int64  `gorm:"index:idx_cache_key,unique;not null"`
	Fidelity   int    `gorm:"index:idx_cache_key,unique;not null"`
	CreatedAt  time.Time
}

// CachedPoint is one bar of a cached range.
type CachedPoint struct {
	ID      uint  `gorm:"primaryKey"`
	RangeID uint  `gorm:"index;not null"`
	Ts      int64 `gorm:"not null"` // unix seconds
	Price   float64
	Volume  float64
}

// Cache is the on-disk price-series cache backed by SQLite (pure Go).
type Cache struct {
	db *gorm.DB
}

// NewCache opens (or creates) the cache database at the given path.
func NewCache(path string) (*Cache, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	// Auto Migration
	if err := db.AutoMigrate(&CachedRange{}, &CachedPoint{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get returns the cached series for the requested window. It checks the
// exact range key first, then falls back to any stored range that covers
// the window, slicing the covering series down to the request.
func (c *Cache) Get(instrument string, start, end time.Time, fidelity int) (domain.TimeSeries, bool, error) {
	var r CachedRange
	err := c.db.First(&r,
		"instrument = ? AND start_unix = ? AND end_unix = ? AND fidelity = ?",
		instrument, start.Unix(), end.Unix(), fidelity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Covering range: an earlier merge may have absorbed this window.
		err = c.db.First(&r,
			"instrument = ? AND start_unix <= ? AND end_unix >= ? AND fidelity = ?",
			instrument, start.Unix(), end.Unix(), fidelity).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.TimeSeries{}, false, nil
		}
	}
	if err != nil {
		return domain.TimeSeries{}, false, err
	}

	series, err := c.loadPoints(instrument, r.ID)
	if err != nil {
		return domain.TimeSeries{}, false, err
	}

	sliced := domain.NewTimeSeries(instrument, series.Between(start, end))
	return sliced, true, nil
}

// Put stores a fetched series under its range key. The write runs in a
// single transaction so a concurrent reader never observes a partial
// range. Overlapping cached ranges for the same instrument and fidelity
// are merged into one covering range rather than overwritten.
func (c *Cache) Put(instrument string, start, end time.Time, fidelity int, series domain.TimeSeries) error {
	return c.db.Transaction(func(tx *gorm.DB) error {
		startUnix, endUnix := start.Unix(), end.Unix()

		var overlapping []CachedRange
		if err := tx.Find(&overlapping,
			"instrument = ? AND fidelity = ? AND start_unix <= ? AND end_unix >= ?",
			instrument, fidelity, endUnix, startUnix).Error; err != nil {
			return err
		}

		merged := series
		for _, r := range overlapping {
			existing, err := c.loadPointsTx(tx, instrument, r.ID)
			if err != nil {
				return err
			}
			// Merge keeps the receiver's points only where the argument has
			// none, so the fresh series wins on overlapped timestamps.
			merged = existing.Merge(merged)

			if r.StartUnix < startUnix {
				startUnix = r.StartUnix
			}
			if r.EndUnix > endUnix {
				endUnix = r.EndUnix
			}

			if err := tx.Where("range_id = ?", r.ID).Delete(&CachedPoint{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&CachedRange{}, r.ID).Error; err != nil {
				return err
			}
		}

		newRange := CachedRange{
			Instrument: instrument,
			StartUnix:  startUnix,
			EndUnix:    endUnix,
			Fidelity:   fidelity,
		}
		if err := tx.Create(&newRange).Error; err != nil {
			return err
		}

		points := merged.Points()
		rows := make([]CachedPoint, len(points))
		for i, p := range points {
			rows[i] = CachedPoint{
				RangeID: newRange.ID,
				Ts:      p.Timestamp.Unix(),
				Price:   p.Price,
				Volume:  p.Volume,
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
}

func (c *Cache) loadPoints(instrument string, rangeID uint) (domain.TimeSeries, error) {
	return c.loadPointsTx(c.db, instrument, rangeID)
}

func (c *Cache) loadPointsTx(tx *gorm.DB, instrument string, rangeID uint) (domain.TimeSeries, error) {
	var rows []CachedPoint
	if err := tx.Order("ts asc").Find(&rows, "range_id = ?", rangeID).Error; err != nil {
		return domain.TimeSeries{}, err
	}

	points := make([]domain.PricePoint, len(rows))
	for i, row := range rows {
		points[i] = domain.PricePoint{
			Timestamp: time.Unix(row.Ts, 0).UTC(),
			Price:     row.Price,
			Volume:    row.Volume,
		}
	}
	return domain.NewTimeSeries(instrument, points), nil
}
