// Package migrate applies plain-SQL schema migrations from a directory
// of NNNN_name.up.sql / NNNN_name.down.sql pairs.
package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Migration is one up/down pair.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Manager loads and applies migrations against one database.
type Manager struct {
	db  *sql.DB
	dir string
}

// NewManager builds a manager reading migrations from dir.
func NewManager(db *sql.DB, dir string) *Manager {
	return &Manager{db: db, dir: dir}
}

func (m *Manager) load() ([]Migration, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	byVersion := map[int]*Migration{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		var up bool
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			up = true
		case strings.HasSuffix(name, ".down.sql"):
		default:
			continue
		}
		base := strings.TrimSuffix(strings.TrimSuffix(name, ".up.sql"), ".down.sql")
		idx := strings.Index(base, "_")
		if idx <= 0 {
			return nil, fmt.Errorf("malformed migration filename %q", name)
		}
		version, err := strconv.Atoi(base[:idx])
		if err != nil {
			return nil, fmt.Errorf("malformed migration version in %q", name)
		}
		body, err := os.ReadFile(filepath.Join(m.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}
		mig := byVersion[version]
		if mig == nil {
			mig = &Migration{Version: version, Name: base[idx+1:]}
			byVersion[version] = mig
		}
		if up {
			mig.UpSQL = string(body)
		} else {
			mig.DownSQL = string(body)
		}
	}
	out := make([]Migration, 0, len(byVersion))
	for _, mig := range byVersion {
		if mig.UpSQL == "" {
			return nil, fmt.Errorf("migration %04d has no up file", mig.Version)
		}
		out = append(out, *mig)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Manager) ensureTable(ctx context.Context) error {
	const q = `
		create table if not exists schema_migrations (
			version    integer primary key,
			name       text not null,
			applied_at timestamptz not null default now()
		)`
	_, err := m.db.ExecContext(ctx, q)
	return err
}

func (m *Manager) applied(ctx context.Context) (map[int]bool, error) {
	rows, err := m.db.QueryContext(ctx, `select version from schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]bool{}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out[v] = true
	}
	return out, rows.Err()
}

// Up applies every pending migration in version order, each in its own
// transaction.
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	migs, err := m.load()
	if err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, mig := range migs {
		if done[mig.Version] {
			continue
		}
		if err := m.run(ctx, mig.UpSQL, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`insert into schema_migrations (version, name) values ($1, $2)`,
				mig.Version, mig.Name)
			return err
		}); err != nil {
			return applied, fmt.Errorf("apply %04d_%s: %w", mig.Version, mig.Name, err)
		}
		applied++
	}
	return applied, nil
}

// Down rolls back the highest applied migration, if any.
func (m *Manager) Down(ctx context.Context) (bool, error) {
	if err := m.ensureTable(ctx); err != nil {
		return false, err
	}
	migs, err := m.load()
	if err != nil {
		return false, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return false, err
	}
	for i := len(migs) - 1; i >= 0; i-- {
		mig := migs[i]
		if !done[mig.Version] {
			continue
		}
		if mig.DownSQL == "" {
			return false, fmt.Errorf("migration %04d has no down file", mig.Version)
		}
		if err := m.run(ctx, mig.DownSQL, func(tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx,
				`delete from schema_migrations where version = $1`, mig.Version)
			return err
		}); err != nil {
			return false, fmt.Errorf("roll back %04d_%s: %w", mig.Version, mig.Name, err)
		}
		return true, nil
	}
	return false, nil
}

// Status lists every known migration and whether it is applied.
func (m *Manager) Status(ctx context.Context) ([]StatusEntry, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	migs, err := m.load()
	if err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]StatusEntry, 0, len(migs))
	for _, mig := range migs {
		out = append(out, StatusEntry{
			Version: mig.Version,
			Name:    mig.Name,
			Applied: done[mig.Version],
		})
	}
	return out, nil
}

// StatusEntry is one row of Status output.
type StatusEntry struct {
	Version int
	Name    string
	Applied bool
}

func (m *Manager) run(ctx context.Context, body string, record func(*sql.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, body); err != nil {
		tx.Rollback()
		return err
	}
	if err := record(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
