package database

import (
	"database/sql"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
)

// ErrSchemaTooNew is returned by Open when the file was migrated by a newer
// build than this one.
var ErrSchemaTooNew = errors.New("database schema is newer than this build")

func schemaVersion(q interface{ QueryRow(string, ...any) *sql.Row }) (int, error) {
	var version int
	if err := q.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// pending returns the migrations above version, in order.
func pending(version int) []Migration {
	var out []Migration
	for _, m := range migrations {
		if m.Version > version {
			out = append(out, m)
		}
	}
	return out
}

// migrate applies every pending migration. user_version is bumped after each
// commit; modernc/sqlite ignores it inside a transaction. The DDL is all
// IF NOT EXISTS, so a crash between the two re-runs the step harmlessly.
func migrate(conn *sql.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	if latest := latestVersion(); current > latest {
		return fmt.Errorf("%w: file is at version %d, build knows %d", ErrSchemaTooNew, current, latest)
	}

	steps := pending(current)
	if len(steps) == 0 {
		return nil
	}
	log.WithFields(log.Fields{"from": current, "to": steps[len(steps)-1].Version}).
		Infof("migrating schema (%d pending)", len(steps))

	for _, m := range steps {
		if err := apply(conn, m); err != nil {
			return err
		}
		log.WithFields(log.Fields{"version": m.Version}).Debugf("applied migration: %s", m.Description)
	}
	return nil
}

func apply(conn *sql.DB, m Migration) error {
	tx, err := conn.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback()
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
