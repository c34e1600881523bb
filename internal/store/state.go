// Package store implements SQLite persistence for mend's learned state:
// bandit posteriors, failure index entries, and the episode learning log.
// State is loaded at process start and checkpointed after batches and at
// shutdown; the on-disk form round-trips alpha/beta and embedding vectors
// without loss beyond floating-point representation.
package store

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"mend/internal/learning"
	"mend/internal/logging"
	"mend/internal/retrieval"
)

// StateStore persists mend's learned state in a single SQLite database.
type StateStore struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// NewStateStore opens (or creates) the database at path and initializes the
// schema. Use ":memory:" for tests.
func NewStateStore(path string) (*StateStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewStateStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	s := &StateStore{db: db, dbPath: path}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("StateStore ready at %s", path)
	return s, nil
}

func (s *StateStore) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS bandit_arms (
		bandit TEXT NOT NULL,
		arm TEXT NOT NULL,
		alpha REAL NOT NULL,
		beta REAL NOT NULL,
		PRIMARY KEY (bandit, arm)
	);
	CREATE TABLE IF NOT EXISTS failure_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		repo TEXT NOT NULL,
		text TEXT NOT NULL,
		embedding BLOB NOT NULL,
		patch_summary TEXT DEFAULT '',
		passed INTEGER DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_failure_repo ON failure_entries(repo);
	CREATE TABLE IF NOT EXISTS episodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task_id TEXT NOT NULL,
		repo TEXT NOT NULL,
		bucket TEXT NOT NULL,
		planner TEXT NOT NULL,
		strategy TEXT NOT NULL,
		template TEXT NOT NULL,
		passed INTEGER NOT NULL,
		test_delta INTEGER DEFAULT 0,
		runtime_ms INTEGER DEFAULT 0,
		error_message TEXT DEFAULT '',
		critique_score REAL DEFAULT 0,
		reward REAL NOT NULL,
		attempts INTEGER DEFAULT 1,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_task ON episodes(task_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *StateStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// BANDIT CHECKPOINTS
// =============================================================================

// SaveBandit checkpoints every arm of a named bandit.
func (s *StateStore) SaveBandit(name string, b *learning.Bandit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin bandit checkpoint: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO bandit_arms (bandit, arm, alpha, beta) VALUES (?, ?, ?, ?)
		ON CONFLICT(bandit, arm) DO UPDATE SET alpha = excluded.alpha, beta = excluded.beta`)
	if err != nil {
		return fmt.Errorf("failed to prepare bandit upsert: %w", err)
	}
	defer stmt.Close()

	for arm, stats := range b.Statistics() {
		if _, err := stmt.Exec(name, arm, stats.Alpha, stats.Beta); err != nil {
			return fmt.Errorf("failed to save arm %q: %w", arm, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bandit checkpoint: %w", err)
	}

	logging.StoreDebug("Checkpointed bandit %q", name)
	return nil
}

// LoadBandit restores arms of a named bandit from the checkpoint. Arms not
// present on disk are untouched.
func (s *StateStore) LoadBandit(name string, b *learning.Bandit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT arm, alpha, beta FROM bandit_arms WHERE bandit = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to load bandit %q: %w", name, err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var arm string
		var alpha, beta float64
		if err := rows.Scan(&arm, &alpha, &beta); err != nil {
			return fmt.Errorf("failed to scan bandit arm: %w", err)
		}
		b.Restore(arm, alpha, beta)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logging.StoreDebug("Loaded %d arms for bandit %q", loaded, name)
	return nil
}

// =============================================================================
// FAILURE INDEX CHECKPOINTS
// =============================================================================

// SaveIndex rewrites the persisted failure entries from the index snapshot.
// Entries are immutable, so a full rewrite inside one transaction is safe.
func (s *StateStore) SaveIndex(fi *retrieval.FailureIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := fi.Snapshot()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin index checkpoint: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM failure_entries`); err != nil {
		return fmt.Errorf("failed to clear failure entries: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT INTO failure_entries (repo, text, embedding, patch_summary, passed)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare entry insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range snapshot {
		passed := 0
		if e.Passed {
			passed = 1
		}
		if _, err := stmt.Exec(e.Repo, e.Text, encodeVector(e.Vec), e.PatchSummary, passed); err != nil {
			return fmt.Errorf("failed to save failure entry: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit index checkpoint: %w", err)
	}

	logging.StoreDebug("Checkpointed %d failure entries", len(snapshot))
	return nil
}

// LoadIndex restores entries into the index in their original order.
func (s *StateStore) LoadIndex(fi *retrieval.FailureIndex) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT repo, text, embedding, patch_summary, passed
		FROM failure_entries ORDER BY id ASC`)
	if err != nil {
		return fmt.Errorf("failed to load failure entries: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var e retrieval.Entry
		var blob []byte
		var passed int
		if err := rows.Scan(&e.Repo, &e.Text, &blob, &e.PatchSummary, &passed); err != nil {
			return fmt.Errorf("failed to scan failure entry: %w", err)
		}
		e.Vec = decodeVector(blob)
		e.Passed = passed != 0
		fi.Restore(e)
		loaded++
	}
	if err := rows.Err(); err != nil {
		return err
	}

	logging.StoreDebug("Loaded %d failure entries", loaded)
	return nil
}

// encodeVector packs float64 bits little-endian, 8 bytes per component.
func encodeVector(v []float64) []byte {
	out := make([]byte, 8*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(x))
	}
	return out
}

func decodeVector(b []byte) []float64 {
	out := make([]float64, len(b)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out
}

// =============================================================================
// EPISODE LOG
// =============================================================================

// EpisodeRecord is one row of the persisted learning log.
type EpisodeRecord struct {
	TaskID   string
	Repo     string
	Bucket   string
	Planner  string
	Strategy string
	Template string
	Outcome  learning.Outcome
	Reward   float64
	Attempts int
}

// RecordEpisode appends one episode outcome to the learning log.
func (s *StateStore) RecordEpisode(rec EpisodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	passed := 0
	if rec.Outcome.Passed {
		passed = 1
	}
	_, err := s.db.Exec(`INSERT INTO episodes
		(task_id, repo, bucket, planner, strategy, template, passed, test_delta, runtime_ms, error_message, critique_score, reward, attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Repo, rec.Bucket, rec.Planner, rec.Strategy, rec.Template,
		passed, rec.Outcome.TestDelta, rec.Outcome.Runtime.Milliseconds(),
		rec.Outcome.ErrorMessage, rec.Outcome.CritiqueScore, rec.Reward, rec.Attempts)
	if err != nil {
		return fmt.Errorf("failed to record episode: %w", err)
	}
	return nil
}

// RankRow is one aggregate line of the learning summary.
type RankRow struct {
	Key        string  `json:"key"`
	MeanReward float64 `json:"mean_reward"`
	Successes  int     `json:"success"`
	N          int     `json:"n"`
}

// Summary aggregates the episode log for reporting.
type Summary struct {
	BucketRank   []RankRow `json:"bucket_rank"`
	StrategyRank []RankRow `json:"strategy_rank"`
	TemplateRank []RankRow `json:"template_rank"`
	Episodes     int       `json:"episodes"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// Summarize computes mean reward and success counts per bucket, strategy,
// and template, each ranked by mean reward descending.
func (s *StateStore) Summarize() (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Summary{GeneratedAt: time.Now().UTC()}

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&out.Episodes); err != nil {
		return out, fmt.Errorf("failed to count episodes: %w", err)
	}

	for _, agg := range []struct {
		column string
		dest   *[]RankRow
	}{
		{"bucket", &out.BucketRank},
		{"strategy", &out.StrategyRank},
		{"template", &out.TemplateRank},
	} {
		rows, err := s.db.Query(fmt.Sprintf(`SELECT %s, AVG(reward), SUM(passed), COUNT(*)
			FROM episodes GROUP BY %s ORDER BY AVG(reward) DESC`, agg.column, agg.column))
		if err != nil {
			return out, fmt.Errorf("failed to aggregate by %s: %w", agg.column, err)
		}
		for rows.Next() {
			var r RankRow
			if err := rows.Scan(&r.Key, &r.MeanReward, &r.Successes, &r.N); err != nil {
				rows.Close()
				return out, fmt.Errorf("failed to scan %s rank: %w", agg.column, err)
			}
			*agg.dest = append(*agg.dest, r)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return out, err
		}
		rows.Close()
	}

	return out, nil
}
