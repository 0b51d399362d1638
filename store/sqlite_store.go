package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/tnicklin/sysclock/instant"
	"github.com/tnicklin/sysclock/logger"
)

var _ Store = (*SQLiteStore)(nil)

//go:embed schema/migrations/*.sql
var migrations embed.FS

const defaultDebounce = 5 * time.Second

// snapshotPages is the number of database pages copied per backup step.
const snapshotPages = 256

// SQLiteStore keeps sync history in an in-memory SQLite database that is
// restored from and flushed to a snapshot file on disk.
type SQLiteStore struct {
	mu           sync.RWMutex
	db           *sql.DB
	memoryDSN    string
	snapshotPath string
	logger       logger.Logger

	// Debounced flush
	flushDebounce time.Duration
	flushTimer    *time.Timer
	flushMu       sync.Mutex
	dirty         bool
	ctx           context.Context
	cancel        context.CancelFunc
}

type Params struct {
	Path   string
	Logger logger.Logger
}

func NewSQLiteStore(p Params) *SQLiteStore {
	return &SQLiteStore{
		memoryDSN:     fmt.Sprintf("file:sysclock-%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString()),
		snapshotPath:  p.Path,
		flushDebounce: defaultDebounce,
		logger:        logger.OrNop(p.Logger),
	}
}

// SetFlushDebounce sets the debounce duration for disk flushes.
// Must be called before Open().
func (s *SQLiteStore) SetFlushDebounce(d time.Duration) {
	s.flushDebounce = d
}

func (s *SQLiteStore) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return nil
	}

	database, err := sql.Open("sqlite3", s.memoryDSN)
	if err != nil {
		return err
	}
	database.SetMaxOpenConns(1)
	database.SetMaxIdleConns(1)

	if err = database.PingContext(ctx); err != nil {
		_ = database.Close()
		return err
	}

	s.db = database
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s.applyMigrations(ctx)
}

// Close closes the database without flushing. Use Shutdown for graceful shutdown.
func (s *SQLiteStore) Close() error {
	s.flushMu.Lock()
	s.stopFlushTimer()
	s.flushMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Shutdown performs a final flush to disk and closes the database.
func (s *SQLiteStore) Shutdown(ctx context.Context) error {
	s.flushMu.Lock()
	s.stopFlushTimer()
	dirty := s.dirty
	s.flushMu.Unlock()

	if dirty && s.snapshotPath != "" {
		if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
			s.logger.ErrorW("shutdown flush failed", "path", s.snapshotPath, "error", err)
		}
	}

	return s.Close()
}

func (s *SQLiteStore) RestoreFromDisk(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return ErrNotOpen
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(path))
	if err != nil {
		return err
	}
	defer fileDB.Close()

	if err := copyDatabase(ctx, fileDB, s.db); err != nil {
		return err
	}

	return s.applyMigrations(ctx)
}

func (s *SQLiteStore) FlushToDisk(ctx context.Context, path string) error {
	if path == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.flushLocked(ctx, path)
}

func (s *SQLiteStore) scheduleFlush() {
	if s.snapshotPath == "" {
		return
	}

	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.dirty = true
	if s.flushTimer != nil {
		s.flushTimer.Stop()
	}

	s.flushTimer = time.AfterFunc(s.flushDebounce, s.performScheduledFlush)
}

func (s *SQLiteStore) performScheduledFlush() {
	s.flushMu.Lock()
	if !s.dirty {
		s.flushMu.Unlock()
		return
	}
	s.flushMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	if err := s.FlushToDisk(ctx, s.snapshotPath); err != nil {
		s.logger.ErrorW("scheduled flush failed", "path", s.snapshotPath, "error", err)
		return
	}

	s.flushMu.Lock()
	s.dirty = false
	s.flushMu.Unlock()
}

func (s *SQLiteStore) stopFlushTimer() {
	if s.flushTimer != nil {
		s.flushTimer.Stop()
		s.flushTimer = nil
	}
}

func (s *SQLiteStore) RecordSync(ctx context.Context, rec Record) error {
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return ErrNotOpen
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_history (
			id, server, status, error, stratum,
			t1_secs, t1_frac, t2_secs, t2_frac,
			t3_secs, t3_frac, t4_secs, t4_frac,
			offset_secs, offset_frac, updated_secs, updated_frac,
			recorded_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Server, rec.Status, rec.Error, int64(rec.Stratum),
		rec.T1.Seconds(), int64(rec.T1.Fraction()),
		rec.T2.Seconds(), int64(rec.T2.Fraction()),
		rec.T3.Seconds(), int64(rec.T3.Fraction()),
		rec.T4.Seconds(), int64(rec.T4.Fraction()),
		rec.Offset.Seconds(), int64(rec.Offset.Fraction()),
		rec.Updated.Seconds(), int64(rec.Updated.Fraction()),
		formatTime(rec.RecordedAt),
	)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("record sync %s: %w", rec.ID, err)
	}

	s.scheduleFlush()
	return nil
}

const selectRecord = `
	SELECT id, server, status, error, stratum,
		t1_secs, t1_frac, t2_secs, t2_frac,
		t3_secs, t3_frac, t4_secs, t4_frac,
		offset_secs, offset_frac, updated_secs, updated_frac,
		recorded_at
	FROM sync_history`

func (s *SQLiteStore) LastSuccess(ctx context.Context) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}

	row := s.db.QueryRowContext(ctx,
		selectRecord+` WHERE status = ? ORDER BY recorded_at DESC LIMIT 1`,
		"success")
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) ListSince(ctx context.Context, cutoff time.Time, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotOpen
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		selectRecord+` WHERE recorded_at >= ? ORDER BY recorded_at DESC LIMIT ?`,
		formatTime(cutoff), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	if s.db == nil {
		s.mu.Unlock()
		return 0, ErrNotOpen
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_history WHERE recorded_at < ?`, formatTime(cutoff))
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.InfoW("pruned sync history", "rows", n, "cutoff", cutoff)
		s.scheduleFlush()
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		rec        Record
		stratum    int64
		secs       [6]int64
		frac       [6]int64
		recordedAt string
	)
	err := sc.Scan(
		&rec.ID, &rec.Server, &rec.Status, &rec.Error, &stratum,
		&secs[0], &frac[0], &secs[1], &frac[1],
		&secs[2], &frac[2], &secs[3], &frac[3],
		&secs[4], &frac[4], &secs[5], &frac[5],
		&recordedAt,
	)
	if err != nil {
		return Record{}, err
	}

	rec.Stratum = uint8(stratum)
	fields := []*instant.Instant{&rec.T1, &rec.T2, &rec.T3, &rec.T4, &rec.Offset, &rec.Updated}
	for i, f := range fields {
		*f = instant.New(secs[i], uint32(frac[i]))
	}
	rec.RecordedAt, err = time.Parse(time.RFC3339Nano, recordedAt)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: recorded_at: %w", rec.ID, err)
	}
	return rec, nil
}

// formatTime renders t so that lexical order matches time order.
func formatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}

// flushLocked snapshots the in-memory database to a temporary file and
// renames it over path, so a failed flush leaves the previous snapshot.
// s.mu must be held.
func (s *SQLiteStore) flushLocked(ctx context.Context, path string) error {
	if s.db == nil {
		return ErrNotOpen
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	_ = os.Remove(tmp)
	fileDB, err := sql.Open("sqlite3", sqliteFileDSN(tmp))
	if err != nil {
		return err
	}
	err = copyDatabase(ctx, s.db, fileDB)
	if cerr := fileDB.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("snapshot to %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

// copyDatabase copies src into dst with the SQLite online backup API,
// snapshotPages at a time, stopping early if ctx is done.
func copyDatabase(ctx context.Context, src, dst *sql.DB) error {
	srcConn, err := src.Conn(ctx)
	if err != nil {
		return err
	}
	defer srcConn.Close()

	dstConn, err := dst.Conn(ctx)
	if err != nil {
		return err
	}
	defer dstConn.Close()

	return dstConn.Raw(func(dstDriver any) error {
		return srcConn.Raw(func(srcDriver any) error {
			to, toOK := dstDriver.(*sqlite3.SQLiteConn)
			from, fromOK := srcDriver.(*sqlite3.SQLiteConn)
			if !toOK || !fromOK {
				return fmt.Errorf("sqlite backup: unexpected drivers %T -> %T", srcDriver, dstDriver)
			}

			bk, err := to.Backup("main", from, "main")
			if err != nil {
				return err
			}
			for {
				if err := ctx.Err(); err != nil {
					_ = bk.Finish()
					return err
				}
				done, err := bk.Step(snapshotPages)
				if err != nil {
					_ = bk.Finish()
					return err
				}
				if done {
					return bk.Finish()
				}
			}
		})
	})
}

func (s *SQLiteStore) applyMigrations(ctx context.Context) error {
	if s.db == nil {
		return ErrNotOpen
	}

	files, err := fs.Glob(migrations, "schema/migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)

	for _, name := range files {
		content, err := migrations.ReadFile(name)
		if err != nil {
			return err
		}
		sqlText := strings.TrimSpace(string(content))
		if sqlText == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, sqlText); err != nil {
			return fmt.Errorf("migration %s: %w", filepath.Base(name), err)
		}
	}
	return nil
}

func sqliteFileDSN(path string) string {
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", path)
}
