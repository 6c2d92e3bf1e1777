// Package journal records executed trades in SQLite and keeps a small
// in-memory window of recent fills plus the open position for snapshots.
// It is the pipeline's implementation of the status trade source.
package journal

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"emastream/internal/model"
)

// recentCap bounds the in-memory fill window. Snapshots never ask for
// more than a handful.
const recentCap = 64

// Journal is a single-writer SQLite trade log.
type Journal struct {
	db  *sql.DB
	log *slog.Logger

	mu       sync.RWMutex
	recent   []model.Trade // oldest first
	position *model.Position
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Open creates the journal, initializing the database with WAL mode and
// schema, and warms the in-memory window from the newest stored fills.
func Open(path string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}

	// Single writer keeps SQLite happy under WAL.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	j := &Journal{db: db, log: log}
	if err := j.loadRecent(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("trade journal ready", "path", path, "recent", len(j.recent))
	return j, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			id    INTEGER PRIMARY KEY AUTOINCREMENT,
			ts    INTEGER NOT NULL,
			side  TEXT    NOT NULL,
			price REAL    NOT NULL,
			qty   REAL    NOT NULL,
			fee   REAL    NOT NULL DEFAULT 0,
			pnl   REAL
		);
		CREATE INDEX IF NOT EXISTS idx_trades_ts ON trades (ts);
	`)
	return err
}

// loadRecent fills the in-memory window from the newest stored trades.
func (j *Journal) loadRecent() error {
	rows, err := j.db.Query(`
		SELECT ts, side, price, qty, fee, pnl
		FROM trades ORDER BY id DESC LIMIT ?`, recentCap)
	if err != nil {
		return fmt.Errorf("journal load recent: %w", err)
	}
	defer rows.Close()

	var newestFirst []model.Trade
	for rows.Next() {
		var tr model.Trade
		var pnl sql.NullFloat64
		if err := rows.Scan(&tr.Time, &tr.Side, &tr.Price, &tr.Qty, &tr.Fee, &pnl); err != nil {
			return fmt.Errorf("journal scan trade: %w", err)
		}
		if pnl.Valid {
			v := pnl.Float64
			tr.PnL = &v
		}
		newestFirst = append(newestFirst, tr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("journal load recent: %w", err)
	}

	j.recent = make([]model.Trade, 0, len(newestFirst))
	for i := len(newestFirst) - 1; i >= 0; i-- {
		j.recent = append(j.recent, newestFirst[i])
	}
	return nil
}

// Record persists one fill and appends it to the recent window.
func (j *Journal) Record(tr model.Trade) error {
	var pnl interface{}
	if tr.PnL != nil {
		pnl = *tr.PnL
	}
	_, err := j.db.Exec(
		`INSERT INTO trades (ts, side, price, qty, fee, pnl) VALUES (?, ?, ?, ?, ?, ?)`,
		tr.Time, tr.Side, tr.Price, tr.Qty, tr.Fee, pnl,
	)
	if err != nil {
		return fmt.Errorf("journal insert trade: %w", err)
	}

	j.mu.Lock()
	if len(j.recent) == recentCap {
		copy(j.recent, j.recent[1:])
		j.recent = j.recent[:recentCap-1]
	}
	j.recent = append(j.recent, tr)
	j.mu.Unlock()
	return nil
}

// SetPosition replaces the open position. nil clears it.
func (j *Journal) SetPosition(p *model.Position) {
	j.mu.Lock()
	if p == nil {
		j.position = nil
	} else {
		cp := *p
		j.position = &cp
	}
	j.mu.Unlock()
}

// RecentTrades returns up to n newest fills, oldest first.
func (j *Journal) RecentTrades(n int) []model.Trade {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if n > len(j.recent) {
		n = len(j.recent)
	}
	out := make([]model.Trade, n)
	copy(out, j.recent[len(j.recent)-n:])
	return out
}

// Position returns a copy of the open position, or nil.
func (j *Journal) Position() *model.Position {
	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.position == nil {
		return nil
	}
	cp := *j.position
	return &cp
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}
