package repository

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/desk-ticket-service/internal/domain"
)

// ServiceCatalog is the read-only view of request types the engine consumes.
type ServiceCatalog interface {
	// GetByKey returns domain.ErrServiceUnknown when no definition exists.
	GetByKey(ctx context.Context, hotelID, key string) (*domain.ServiceDefinition, error)
}

type serviceCatalogRepository struct {
	pool *pgxpool.Pool
}

// NewServiceCatalogRepository reads definitions from Postgres.
func NewServiceCatalogRepository(pool *pgxpool.Pool) ServiceCatalog {
	return &serviceCatalogRepository{pool: pool}
}

func (r *serviceCatalogRepository) GetByKey(ctx context.Context, hotelID, key string) (*domain.ServiceDefinition, error) {
	const q = `
        SELECT hotel_id, key, label, department, default_sla_minutes, active
        FROM service_definitions WHERE hotel_id=$1 AND key=$2`
	var def domain.ServiceDefinition
	err := queryRow(ctx, r.pool, q, hotelID, key).Scan(
		&def.HotelID,
		&def.Key,
		&def.Label,
		&def.Department,
		&def.DefaultSLAMinutes,
		&def.Active,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrServiceUnknown
		}
		return nil, storeError("get service definition", err)
	}
	return &def, nil
}

// MemoryServiceCatalog serves definitions registered with Put.
type MemoryServiceCatalog struct {
	mu   sync.RWMutex
	defs map[string]domain.ServiceDefinition
}

// NewMemoryServiceCatalog creates a catalog seeded with defs.
func NewMemoryServiceCatalog(defs ...domain.ServiceDefinition) *MemoryServiceCatalog {
	c := &MemoryServiceCatalog{defs: make(map[string]domain.ServiceDefinition)}
	for _, def := range defs {
		c.Put(def)
	}
	return c
}

// Put registers or replaces a definition.
func (c *MemoryServiceCatalog) Put(def domain.ServiceDefinition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs[catalogKey(def.HotelID, def.Key)] = def
}

func (c *MemoryServiceCatalog) GetByKey(ctx context.Context, hotelID, key string) (*domain.ServiceDefinition, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	def, ok := c.defs[catalogKey(hotelID, key)]
	if !ok {
		return nil, domain.ErrServiceUnknown
	}
	return &def, nil
}

func catalogKey(hotelID, key string) string {
	return hotelID + "\x00" + key
}
