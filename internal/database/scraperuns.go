package database

import (
	"database/sql"
	"encoding/json"
)

// InsertScrapeRun creates the audit row for a harvest that has started.
func (db *DB) InsertScrapeRun(run ScrapeRun) error {
	queries, err := encodeStrings(run.Queries)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(
		`INSERT INTO scrape_runs (id, status, started_at, queries) VALUES (?, ?, ?, ?)`,
		run.ID, run.Status, run.StartedAt, queries,
	)
	return err
}

// CompleteScrapeRun writes the final counters and errors for a harvest.
func (db *DB) CompleteScrapeRun(run ScrapeRun) error {
	var errorsJSON *string
	if len(run.Errors) > 0 {
		data, err := json.Marshal(run.Errors)
		if err != nil {
			return err
		}
		s := string(data)
		errorsJSON = &s
	}
	_, err := db.conn.Exec(
		`UPDATE scrape_runs SET status = ?, completed_at = ?, records_found = ?, records_ingested = ?,
			duplicates_skipped = ?, errors = ?
		WHERE id = ?`,
		run.Status, run.CompletedAt, run.RecordsFound, run.RecordsIngested,
		run.DuplicatesSkipped, errorsJSON, run.ID,
	)
	return err
}

// GetScrapeRun returns a scrape run by ID, or nil.
func (db *DB) GetScrapeRun(id string) (*ScrapeRun, error) {
	return db.scanScrapeRun(db.conn.QueryRow(
		`SELECT id, status, started_at, completed_at, queries, records_found, records_ingested,
			duplicates_skipped, errors
		FROM scrape_runs WHERE id = ?`, id,
	))
}

// GetLatestScrapeRun returns the most recently started scrape run, or nil.
func (db *DB) GetLatestScrapeRun() (*ScrapeRun, error) {
	return db.scanScrapeRun(db.conn.QueryRow(
		`SELECT id, status, started_at, completed_at, queries, records_found, records_ingested,
			duplicates_skipped, errors
		FROM scrape_runs ORDER BY started_at DESC LIMIT 1`,
	))
}

func (db *DB) scanScrapeRun(row *sql.Row) (*ScrapeRun, error) {
	var r ScrapeRun
	var queries, errorsJSON *string
	err := row.Scan(&r.ID, &r.Status, &r.StartedAt, &r.CompletedAt, &queries, &r.RecordsFound,
		&r.RecordsIngested, &r.DuplicatesSkipped, &errorsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.Queries = decodeStrings(queries)
	if errorsJSON != nil {
		if err := json.Unmarshal([]byte(*errorsJSON), &r.Errors); err != nil {
			r.Errors = nil
		}
	}
	return &r, nil
}
