package database

import (
	"database/sql"
	"time"
)

const brandColumns = `id, name, category, status, budget_tier, signal_platforms, created_at`

// UpsertBrand inserts a brand or updates the row with the same name. Returns the brand ID.
func (db *DB) UpsertBrand(b Brand) (int64, error) {
	platforms, err := encodeStrings(b.SignalPlatforms)
	if err != nil {
		return 0, err
	}
	status := b.Status
	if status == "" {
		status = "new"
	}

	var id int64
	err = db.conn.QueryRow(
		`INSERT INTO brands (name, category, status, budget_tier, signal_platforms)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			category = excluded.category,
			status = excluded.status,
			budget_tier = excluded.budget_tier,
			signal_platforms = excluded.signal_platforms
		RETURNING id`,
		b.Name, b.Category, status, b.BudgetTier, platforms,
	).Scan(&id)
	return id, err
}

// GetBrand returns a brand by ID, or nil if not found.
func (db *DB) GetBrand(id int64) (*Brand, error) {
	row := db.conn.QueryRow(`SELECT `+brandColumns+` FROM brands WHERE id = ?`, id)
	b, err := scanBrand(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBrandByName returns a brand by exact name, or nil.
func (db *DB) GetBrandByName(name string) (*Brand, error) {
	row := db.conn.QueryRow(`SELECT `+brandColumns+` FROM brands WHERE name = ?`, name)
	b, err := scanBrand(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetBrandsByIDs returns the brands with the given IDs, ordered by ID.
func (db *DB) GetBrandsByIDs(ids []int64) ([]Brand, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(
		`SELECT `+brandColumns+` FROM brands WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var brands []Brand
	for rows.Next() {
		b, err := scanBrand(rows)
		if err != nil {
			return nil, err
		}
		brands = append(brands, *b)
	}
	return brands, rows.Err()
}

// InsertBrandSignal records brand activity. An empty DetectedAt means now.
// When a signal with the same fingerprint exists it returns that signal's ID
// and false.
func (db *DB) InsertBrandSignal(s BrandSignal) (int64, bool, error) {
	detectedAt := s.DetectedAt
	if detectedAt == "" {
		detectedAt = FormatTime(time.Now())
	}
	result, err := db.conn.Exec(
		`INSERT INTO brand_signals (brand_id, athlete_id, source, source_url, raw_data, signal_fingerprint, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.BrandID, s.AthleteID, s.Source, s.SourceURL, s.RawData, s.Fingerprint, detectedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && s.Fingerprint != nil {
			existing, lookupErr := db.GetBrandSignalByFingerprint(*s.Fingerprint)
			if lookupErr != nil || existing == nil {
				return 0, false, lookupErr
			}
			return existing.ID, false, nil
		}
		return 0, false, err
	}
	id, err := result.LastInsertId()
	return id, true, err
}

// GetBrandSignalByFingerprint returns the signal with the given fingerprint, or nil.
func (db *DB) GetBrandSignalByFingerprint(fingerprint string) (*BrandSignal, error) {
	var s BrandSignal
	err := db.conn.QueryRow(
		`SELECT id, brand_id, athlete_id, source, source_url, raw_data, signal_fingerprint, detected_at
		FROM brand_signals WHERE signal_fingerprint = ?`, fingerprint,
	).Scan(&s.ID, &s.BrandID, &s.AthleteID, &s.Source, &s.SourceURL, &s.RawData, &s.Fingerprint, &s.DetectedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ResolveBrand returns the ID of the brand whose name matches
// case-insensitively, creating a brand with status 'new' when none does.
func (db *DB) ResolveBrand(name string) (id int64, created bool, err error) {
	lookup := func() (int64, error) {
		var id int64
		err := db.conn.QueryRow(
			`SELECT id FROM brands WHERE name = ? COLLATE NOCASE ORDER BY id LIMIT 1`, name,
		).Scan(&id)
		return id, err
	}

	id, err = lookup()
	if err == nil {
		return id, false, nil
	}
	if err != sql.ErrNoRows {
		return 0, false, err
	}

	result, err := db.conn.Exec(`INSERT INTO brands (name, status) VALUES (?, 'new')`, name)
	if err != nil {
		if isUniqueViolation(err) {
			id, err = lookup()
			return id, false, err
		}
		return 0, false, err
	}
	id, err = result.LastInsertId()
	return id, true, err
}

// GetSignaledBrandIDs returns distinct brand IDs with a signal at or after since.
func (db *DB) GetSignaledBrandIDs(since string, limit int) ([]int64, error) {
	return db.queryIDs(
		`SELECT DISTINCT brand_id FROM brand_signals WHERE detected_at >= ? ORDER BY brand_id LIMIT ?`,
		since, limit,
	)
}

// SetWatchlist adds a brand to the watchlist or toggles its active flag.
func (db *DB) SetWatchlist(brandID int64, active bool) error {
	_, err := db.conn.Exec(
		`INSERT INTO brand_watchlist (brand_id, active) VALUES (?, ?)
		ON CONFLICT(brand_id) DO UPDATE SET active = excluded.active`,
		brandID, active,
	)
	return err
}

// GetWatchlistBrandIDs returns brand IDs on the active watchlist.
func (db *DB) GetWatchlistBrandIDs(limit int) ([]int64, error) {
	return db.queryIDs(
		`SELECT brand_id FROM brand_watchlist WHERE active = 1 ORDER BY brand_id LIMIT ?`, limit,
	)
}

func (db *DB) queryIDs(query string, args ...any) ([]int64, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanBrand(row rowScanner) (*Brand, error) {
	var b Brand
	var platforms *string
	if err := row.Scan(&b.ID, &b.Name, &b.Category, &b.Status, &b.BudgetTier, &platforms, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.SignalPlatforms = decodeStrings(platforms)
	return &b, nil
}
