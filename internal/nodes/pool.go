package nodes

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/relogd/relog/internal/recovery"
)

// Target describes one configured database node.
type Target struct {
	ID   int
	Name string
	DSN  string
}

// Pool holds one lazily opened database handle per configured node and
// applies statements against them. The statement payload is opaque: the
// pool stores and forwards it, it never parses or rewrites it.
type Pool struct {
	mu      sync.Mutex
	targets map[int]Target
	conns   map[int]*sql.DB
	logger  *zerolog.Logger
}

// NewPool creates a pool over the configured targets. Connections open on
// first use so an offline node at startup doesn't block the process.
func NewPool(targets []Target, logger *zerolog.Logger) *Pool {
	byID := make(map[int]Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}
	return &Pool{
		targets: byID,
		conns:   make(map[int]*sql.DB),
		logger:  logger,
	}
}

// conn returns the open handle for a node, opening it on first use.
func (p *Pool) conn(nodeID int) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if db, ok := p.conns[nodeID]; ok {
		return db, nil
	}

	target, ok := p.targets[nodeID]
	if !ok {
		return nil, fmt.Errorf("unknown node %d", nodeID)
	}

	db, err := sql.Open("sqlite3", target.DSN)
	if err != nil {
		return nil, fmt.Errorf("open node %d (%s): %w", nodeID, target.Name, err)
	}
	// One writer per node database, same as the recovery log itself.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	p.conns[nodeID] = db
	return db, nil
}

// Apply executes the statement against the node's database. Errors come
// back classified so the dispatcher and the replay engine can route them
// without re-inspecting driver details.
func (p *Pool) Apply(ctx context.Context, nodeID int, statement string) error {
	db, err := p.conn(nodeID)
	if err != nil {
		return recovery.Classify(nodeID, err)
	}

	if _, err := db.ExecContext(ctx, statement); err != nil {
		return recovery.Classify(nodeID, err)
	}
	return nil
}

// Ping runs the lightweight connectivity check (SELECT 1) against a node.
func (p *Pool) Ping(ctx context.Context, nodeID int) error {
	db, err := p.conn(nodeID)
	if err != nil {
		return recovery.Classify(nodeID, err)
	}

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return recovery.Classify(nodeID, err)
	}
	return nil
}

// Close closes every open node handle. Safe to call once at shutdown.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for id, db := range p.conns {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close node %d: %w", id, err)
		}
		delete(p.conns, id)
	}
	return firstErr
}
