package strategies

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory answers the single question the ledger asks of the strategy
// subsystem: does this strategy exist and belong to this owner.
type Directory interface {
	Owns(ctx context.Context, strategyID, ownerID string) (bool, error)
}

type PostgresDirectory struct {
	pool *pgxpool.Pool
}

func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

func (d *PostgresDirectory) Owns(ctx context.Context, strategyID, ownerID string) (bool, error) {
	var ok bool
	err := d.pool.QueryRow(ctx, "select exists(select 1 from strategies where id = $1 and owner_id = $2)", strategyID, ownerID).Scan(&ok)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// StaticDirectory is an in-memory ownership map for development setups and
// tests, where the strategy subsystem runs elsewhere.
type StaticDirectory struct {
	mu     sync.RWMutex
	owners map[string]string
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{owners: make(map[string]string)}
}

func (d *StaticDirectory) Add(strategyID, ownerID string) {
	d.mu.Lock()
	d.owners[strategyID] = ownerID
	d.mu.Unlock()
}

func (d *StaticDirectory) Owns(ctx context.Context, strategyID, ownerID string) (bool, error) {
	d.mu.RLock()
	owner, ok := d.owners[strategyID]
	d.mu.RUnlock()
	return ok && owner == ownerID, nil
}

// AllowAllDirectory accepts every strategy/owner pair. Useful when ownership
// is already enforced upstream of the ledger.
type AllowAllDirectory struct{}

func (AllowAllDirectory) Owns(ctx context.Context, strategyID, ownerID string) (bool, error) {
	return strategyID != "" && ownerID != "", nil
}
