// Package catalog resolves health-test references into the snapshots shown on quote items.
package catalog

import (
	"context"
	"errors"
	"sync"

	"github.com/diewo77/occuhealth/internal/models"
	"gorm.io/gorm"
)

// ErrNotFound is returned when no health test has the requested id.
var ErrNotFound = errors.New("health test not found")

// Catalog resolves a health-test id to its snapshot.
type Catalog interface {
	Get(ctx context.Context, id uint) (models.HealthTestSnapshot, error)
}

// DBCatalog reads health tests from the database.
type DBCatalog struct {
	db *gorm.DB
}

func NewDBCatalog(db *gorm.DB) *DBCatalog {
	return &DBCatalog{db: db}
}

func (c *DBCatalog) Get(ctx context.Context, id uint) (models.HealthTestSnapshot, error) {
	var ht models.HealthTest
	err := c.db.WithContext(ctx).Select("id", "name", "code").First(&ht, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.HealthTestSnapshot{}, ErrNotFound
	}
	if err != nil {
		return models.HealthTestSnapshot{}, err
	}
	return ht.Snapshot(), nil
}

// StaticCatalog is an in-memory catalog, handy for tests and fixtures.
type StaticCatalog struct {
	mu    sync.RWMutex
	tests map[uint]models.HealthTestSnapshot
	calls int
}

func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{tests: make(map[uint]models.HealthTestSnapshot)}
}

// Set registers or replaces a snapshot.
func (c *StaticCatalog) Set(s models.HealthTestSnapshot) {
	c.mu.Lock()
	c.tests[s.ID] = s
	c.mu.Unlock()
}

// Calls reports how many lookups reached the catalog.
func (c *StaticCatalog) Calls() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calls
}

func (c *StaticCatalog) Get(_ context.Context, id uint) (models.HealthTestSnapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	s, ok := c.tests[id]
	if !ok {
		return models.HealthTestSnapshot{}, ErrNotFound
	}
	return s, nil
}
