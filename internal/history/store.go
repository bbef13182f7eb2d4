// Package history persists per-snapshot traffic summaries to SQLite so
// the dashboard can chart activity beyond the live view.
package history

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flowdeck/flowdeck/internal/traffic"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot_log (
	id TEXT PRIMARY KEY,
	received_at TEXT NOT NULL,
	connections INTEGER NOT NULL,
	distinct_rules INTEGER NOT NULL,
	distinct_chains INTEGER NOT NULL,
	upload_total INTEGER NOT NULL,
	download_total INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshot_received ON snapshot_log(received_at);
`

// Summary is the persisted digest of one snapshot.
type Summary struct {
	ID             string `json:"id"`
	ReceivedAt     string `json:"received_at"`
	Connections    int    `json:"connections"`
	DistinctRules  int    `json:"distinct_rules"`
	DistinctChains int    `json:"distinct_chains"`
	UploadTotal    int64  `json:"upload_total"`
	DownloadTotal  int64  `json:"download_total"`
}

// Summarize digests a snapshot for persistence.
func Summarize(snap traffic.Snapshot) Summary {
	rules := make(map[string]struct{})
	chains := make(map[string]struct{})
	for _, c := range snap.Connections {
		rules[c.RuleLabel()] = struct{}{}
		for _, hop := range c.Chains {
			chains[hop] = struct{}{}
		}
	}
	return Summary{
		ID:             snap.ID,
		ReceivedAt:     snap.ReceivedAt.UTC().Format(time.RFC3339),
		Connections:    len(snap.Connections),
		DistinctRules:  len(rules),
		DistinctChains: len(chains),
		UploadTotal:    snap.UploadTotal,
		DownloadTotal:  snap.DownloadTotal,
	}
}

// Store manages the SQLite snapshot log.
type Store struct {
	db            *sql.DB
	retentionDays int
	writes        chan Summary
	quit          chan struct{}
	done          chan struct{}
	closeOnce     sync.Once
	logger        *slog.Logger
}

// NewStore opens (or creates) the SQLite history database.
// retentionDays of 0 keeps rows forever.
func NewStore(dbPath string, retentionDays int, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("setting WAL mode: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("creating schema: %w (also: close: %v)", err, cerr)
		}
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{
		db:            db,
		retentionDays: retentionDays,
		writes:        make(chan Summary, 256),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
		logger:        logger,
	}

	s.purge()
	go s.writeLoop()
	return s, nil
}

// Record enqueues a summary for async writing. Safe to call after
// Close: late summaries are dropped rather than racing shutdown.
func (s *Store) Record(sum Summary) {
	select {
	case <-s.quit:
		return
	default:
	}
	select {
	case s.writes <- sum:
	case <-s.quit:
	default:
		s.logger.Warn("history write buffer full, dropping summary", "id", sum.ID)
	}
}

// QueryOpts holds filters for history queries.
type QueryOpts struct {
	Since string // RFC3339 lower bound on received_at
	Limit int    // defaults to 50
}

// Query returns summaries matching the filters, newest first.
func (s *Store) Query(opts QueryOpts) ([]Summary, error) {
	query := "SELECT id, received_at, connections, distinct_rules, distinct_chains, upload_total, download_total FROM snapshot_log WHERE 1=1"
	var args []any

	if opts.Since != "" {
		query += " AND received_at >= ?"
		args = append(args, opts.Since)
	}

	query += " ORDER BY received_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	} else {
		query += " LIMIT 50"
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var sums []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.ID, &sum.ReceivedAt, &sum.Connections, &sum.DistinctRules,
			&sum.DistinctChains, &sum.UploadTotal, &sum.DownloadTotal); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		sums = append(sums, sum)
	}
	return sums, rows.Err()
}

// Close flushes pending writes and closes the database. Idempotent.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		close(s.quit)
		<-s.done
	})
	return s.db.Close()
}

func (s *Store) writeLoop() {
	defer close(s.done)

	purgeTick := time.NewTicker(time.Hour)
	defer purgeTick.Stop()

	for {
		select {
		case sum := <-s.writes:
			s.insert(sum)
		case <-purgeTick.C:
			s.purge()
		case <-s.quit:
			// Drain whatever was enqueued before shutdown.
			for {
				select {
				case sum := <-s.writes:
					s.insert(sum)
				default:
					return
				}
			}
		}
	}
}

func (s *Store) insert(sum Summary) {
	_, err := s.db.Exec(
		`INSERT INTO snapshot_log (id, received_at, connections, distinct_rules, distinct_chains, upload_total, download_total) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.ReceivedAt, sum.Connections, sum.DistinctRules,
		sum.DistinctChains, sum.UploadTotal, sum.DownloadTotal,
	)
	if err != nil {
		s.logger.Error("history write failed", "id", sum.ID, "error", err)
	}
}

// purge drops rows older than the retention window.
func (s *Store) purge() {
	if s.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays).UTC().Format(time.RFC3339)
	res, err := s.db.Exec("DELETE FROM snapshot_log WHERE received_at < ?", cutoff)
	if err != nil {
		s.logger.Error("history purge failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Info("purged expired history", "rows", n)
	}
}
