package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/rcldesign/asset-manager-sub001/internal/schedule"
	logx "github.com/rcldesign/asset-manager-sub001/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- schedules ----

func (s *sqliteStore) CreateSchedule(ctx context.Context, rec *schedule.Schedule) error {
	params, err := schedule.EncodeParams(rec.Params)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules(id, org_id, asset_id, name, kind, params, active, start_date,
		                       last_occurrence, next_occurrence, task_template, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.OrgID, rec.AssetID, rec.Name, string(rec.Params.Kind()), string(params),
		rec.Active, fmtTime(rec.StartDate), fmtTimePtr(rec.LastOccurrence), fmtTimePtr(rec.NextOccurrence),
		nullStr(string(rec.TaskTemplate)), fmtTime(rec.CreatedAt), fmtTime(rec.UpdatedAt),
	)
	return err
}

const scheduleCols = `id, org_id, asset_id, name, kind, params, active, start_date,
	last_occurrence, next_occurrence, task_template, created_at, updated_at`

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (*schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	rec, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func (s *sqliteStore) SetNextOccurrence(ctx context.Context, id string, next *time.Time) error {
	return s.updateSchedule(ctx, id,
		`UPDATE schedules SET next_occurrence = ?, updated_at = ? WHERE id = ?`,
		fmtTimePtr(next), fmtTime(time.Now()), id)
}

func (s *sqliteStore) SetLastOccurrence(ctx context.Context, id string, last time.Time) error {
	return s.updateSchedule(ctx, id,
		`UPDATE schedules SET last_occurrence = ?, updated_at = ? WHERE id = ?`,
		fmtTime(last), fmtTime(time.Now()), id)
}

func (s *sqliteStore) SetScheduleActive(ctx context.Context, id string, active bool) error {
	return s.updateSchedule(ctx, id,
		`UPDATE schedules SET active = ?, updated_at = ? WHERE id = ?`,
		active, fmtTime(time.Now()), id)
}

func (s *sqliteStore) updateSchedule(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ListDueSchedules(ctx context.Context, orgID string, now time.Time) ([]*schedule.Schedule, error) {
	// RFC3339 UTC strings compare lexicographically, so the index does the work.
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+scheduleCols+` FROM schedules
		 WHERE org_id = ? AND active = 1 AND kind != ?
		   AND next_occurrence IS NOT NULL AND next_occurrence <= ?
		 ORDER BY next_occurrence`,
		orgID, string(schedule.KindUsageBased), fmtTime(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.Schedule
	for rows.Next() {
		rec, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*schedule.Schedule, error) {
	var (
		rec          schedule.Schedule
		kind         string
		params       string
		startDate    string
		last, next   sql.NullString
		taskTemplate sql.NullString
		created, upd string
	)
	err := row.Scan(&rec.ID, &rec.OrgID, &rec.AssetID, &rec.Name, &kind, &params, &rec.Active,
		&startDate, &last, &next, &taskTemplate, &created, &upd)
	if err != nil {
		return nil, err
	}
	if rec.Params, err = schedule.DecodeParams(schedule.Kind(kind), []byte(params)); err != nil {
		return nil, err
	}
	if rec.StartDate, err = parseTime(startDate); err != nil {
		return nil, err
	}
	if rec.LastOccurrence, err = parseTimePtr(last); err != nil {
		return nil, err
	}
	if rec.NextOccurrence, err = parseTimePtr(next); err != nil {
		return nil, err
	}
	if taskTemplate.Valid {
		rec.TaskTemplate = []byte(taskTemplate.String)
	}
	if rec.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ---- rules ----

func (s *sqliteStore) CreateRule(ctx context.Context, r *schedule.Rule) error {
	cfg, err := encodeJSON(r.Config)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rules(id, schedule_id, type, config, active, created_at) VALUES(?,?,?,?,?,?)`,
		r.ID, r.ScheduleID, string(r.Type), cfg, r.Active, fmtTime(r.CreatedAt))
	return err
}

func (s *sqliteStore) ListActiveRules(ctx context.Context, scheduleID string) ([]*schedule.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, type, config, active, created_at
		 FROM rules WHERE schedule_id = ? AND active = 1 ORDER BY created_at`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.Rule
	for rows.Next() {
		var (
			r       schedule.Rule
			typ     string
			cfg     string
			created string
		)
		if err := rows.Scan(&r.ID, &r.ScheduleID, &typ, &cfg, &r.Active, &created); err != nil {
			return nil, err
		}
		r.Type = schedule.RuleType(typ)
		if err := decodeJSON(cfg, &r.Config); err != nil {
			return nil, err
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// ---- dependencies ----

func (s *sqliteStore) CreateDependency(ctx context.Context, d *schedule.Dependency) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dependencies(id, schedule_id, depends_on_id, offset_days, created_at) VALUES(?,?,?,?,?)`,
		d.ID, d.ScheduleID, d.DependsOnID, d.OffsetDays, fmtTime(d.CreatedAt))
	return err
}

func (s *sqliteStore) ListDependencies(ctx context.Context, scheduleID string) ([]*schedule.Dependency, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, schedule_id, depends_on_id, offset_days, created_at
		 FROM dependencies WHERE schedule_id = ? ORDER BY created_at`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*schedule.Dependency
	for rows.Next() {
		var (
			d       schedule.Dependency
			created string
		)
		if err := rows.Scan(&d.ID, &d.ScheduleID, &d.DependsOnID, &d.OffsetDays, &created); err != nil {
			return nil, err
		}
		if d.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}

// ---- usage counters ----

func (s *sqliteStore) UpsertCounter(ctx context.Context, c *schedule.UsageCounter) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO usage_counters(asset_id, counter_type, schedule_id, value, notes, updated_at, last_reset_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(asset_id, counter_type) DO UPDATE SET
		   schedule_id = excluded.schedule_id,
		   updated_at  = excluded.updated_at`,
		c.AssetID, c.CounterType, c.ScheduleID, c.Value, c.Notes, fmtTime(c.UpdatedAt), fmtTimePtr(c.LastResetAt))
	return err
}

func (s *sqliteStore) GetCounter(ctx context.Context, assetID, counterType string) (*schedule.UsageCounter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT asset_id, counter_type, schedule_id, value, notes, updated_at, last_reset_at
		 FROM usage_counters WHERE asset_id = ? AND counter_type = ?`, assetID, counterType)
	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// MutateCounter runs fn inside a transaction on the single writer
// connection: the read, the callback's changes and the commit are one
// atomic unit, so concurrent increments on the same counter serialize
// instead of losing updates.
func (s *sqliteStore) MutateCounter(ctx context.Context, assetID, counterType string, fn func(*schedule.UsageCounter) error) (*schedule.UsageCounter, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT asset_id, counter_type, schedule_id, value, notes, updated_at, last_reset_at
		 FROM usage_counters WHERE asset_id = ? AND counter_type = ?`, assetID, counterType)
	c, err := scanCounter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := fn(c); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE usage_counters SET value = ?, notes = ?, updated_at = ?, last_reset_at = ?
		 WHERE asset_id = ? AND counter_type = ?`,
		c.Value, c.Notes, fmtTime(c.UpdatedAt), fmtTimePtr(c.LastResetAt), assetID, counterType)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

func scanCounter(row rowScanner) (*schedule.UsageCounter, error) {
	var (
		c         schedule.UsageCounter
		upd       string
		lastReset sql.NullString
	)
	err := row.Scan(&c.AssetID, &c.CounterType, &c.ScheduleID, &c.Value, &c.Notes, &upd, &lastReset)
	if err != nil {
		return nil, err
	}
	if c.UpdatedAt, err = parseTime(upd); err != nil {
		return nil, err
	}
	if c.LastResetAt, err = parseTimePtr(lastReset); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- completions ----

func (s *sqliteStore) RecordCompletion(ctx context.Context, c *schedule.CompletionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions(id, schedule_id, status, completed_at) VALUES(?,?,?,?)`,
		c.ID, c.ScheduleID, string(c.Status), fmtTime(c.CompletedAt))
	return err
}

func (s *sqliteStore) LastCompletion(ctx context.Context, scheduleID string) (*schedule.CompletionRecord, error) {
	var (
		c         schedule.CompletionRecord
		status    string
		completed string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, schedule_id, status, completed_at FROM completions
		 WHERE schedule_id = ? AND status = ? ORDER BY completed_at DESC LIMIT 1`,
		scheduleID, string(schedule.CompletionDone)).
		Scan(&c.ID, &c.ScheduleID, &status, &completed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	c.Status = schedule.CompletionStatus(status)
	if c.CompletedAt, err = parseTime(completed); err != nil {
		return nil, err
	}
	return &c, nil
}

// ---- helpers ----

// fmtTime stores timestamps as second-precision RFC3339 in UTC. Fixed width
// keeps string comparison consistent with time ordering.
func fmtTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	return json.Unmarshal([]byte(s), v)
}
