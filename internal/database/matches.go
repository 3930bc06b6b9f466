package database

import (
	"database/sql"
	"fmt"
)

const matchColumns = `id, athlete_id, brand_id, match_score, score_breakdown, status, expires_at, created_at, updated_at`

// GetMatchStatuses returns the status of every existing match between the
// given athletes and brands.
func (db *DB) GetMatchStatuses(athleteIDs, brandIDs []int64) (map[PairKey]string, error) {
	statuses := make(map[PairKey]string)
	if len(athleteIDs) == 0 || len(brandIDs) == 0 {
		return statuses, nil
	}

	args := append(int64Args(athleteIDs), int64Args(brandIDs)...)
	rows, err := db.conn.Query(
		`SELECT athlete_id, brand_id, status FROM matches
		WHERE athlete_id IN (`+placeholders(len(athleteIDs))+`)
		AND brand_id IN (`+placeholders(len(brandIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k PairKey
		var status string
		if err := rows.Scan(&k.AthleteID, &k.BrandID, &status); err != nil {
			return nil, err
		}
		statuses[k] = status
	}
	return statuses, rows.Err()
}

// UpsertMatches writes a chunk of matches in one transaction. Rows whose
// current status is in protected are left untouched. Returns the number of
// rows inserted or updated.
func (db *DB) UpsertMatches(matches []MatchUpsert, protected []string, now string) (int64, error) {
	if len(matches) == 0 {
		return 0, nil
	}

	query := `INSERT INTO matches (athlete_id, brand_id, match_score, score_breakdown, status, expires_at, updated_at)
		VALUES (?, ?, ?, ?, 'new', ?, ?)
		ON CONFLICT(athlete_id, brand_id) DO UPDATE SET
			match_score = excluded.match_score,
			score_breakdown = excluded.score_breakdown,
			status = 'new',
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`
	if len(protected) > 0 {
		query += ` WHERE matches.status NOT IN (` + placeholders(len(protected)) + `)`
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(query)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var affected int64
	for _, m := range matches {
		args := []any{m.AthleteID, m.BrandID, m.MatchScore, m.ScoreBreakdown, m.ExpiresAt, now}
		args = append(args, stringArgs(protected)...)
		result, err := stmt.Exec(args...)
		if err != nil {
			return 0, fmt.Errorf("upserting match %d/%d: %w", m.AthleteID, m.BrandID, err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		affected += n
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return affected, nil
}

// GetMatch returns the match for a pair, or nil.
func (db *DB) GetMatch(athleteID, brandID int64) (*Match, error) {
	row := db.conn.QueryRow(
		`SELECT `+matchColumns+` FROM matches WHERE athlete_id = ? AND brand_id = ?`, athleteID, brandID,
	)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetMatchByID returns a match by ID, or nil.
func (db *DB) GetMatchByID(id int64) (*Match, error) {
	row := db.conn.QueryRow(`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id)
	m, err := scanMatch(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMatchStatus moves a match from one status to another. It reports
// false when the match is no longer in the from status. Callers validate the
// transition.
func (db *DB) UpdateMatchStatus(id int64, from, to string) (bool, error) {
	result, err := db.conn.Exec(
		`UPDATE matches SET status = ?, updated_at = datetime('now') WHERE id = ? AND status = ?`, to, id, from,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

// ExpireMatches moves matches in one of the given statuses whose expires_at
// is before now to 'expired'. Returns the number of rows changed.
func (db *DB) ExpireMatches(now string, statuses []string) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := append([]any{now}, stringArgs(statuses)...)
	result, err := db.conn.Exec(
		`UPDATE matches SET status = 'expired', updated_at = datetime('now')
		WHERE expires_at IS NOT NULL AND expires_at < ? AND status IN (`+placeholders(len(statuses))+`)`,
		args...,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetTopMatches returns matches ordered by score, highest first.
func (db *DB) GetTopMatches(limit int) ([]Match, error) {
	rows, err := db.conn.Query(
		`SELECT `+matchColumns+` FROM matches ORDER BY match_score DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, *m)
	}
	return matches, rows.Err()
}

func scanMatch(row rowScanner) (*Match, error) {
	var m Match
	if err := row.Scan(&m.ID, &m.AthleteID, &m.BrandID, &m.MatchScore, &m.ScoreBreakdown,
		&m.Status, &m.ExpiresAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetOpenMatchSummaries returns matches still awaiting a decision (new or
// reviewed, not past expiry) with athlete and brand names, best first.
func (db *DB) GetOpenMatchSummaries(now string, limit int) ([]MatchSummary, error) {
	rows, err := db.conn.Query(
		`SELECT m.id, a.full_name, b.name, m.match_score, m.status, m.expires_at
		FROM matches m
		JOIN athletes a ON a.id = m.athlete_id
		JOIN brands b ON b.id = m.brand_id
		WHERE m.status IN ('new', 'reviewed') AND (m.expires_at IS NULL OR m.expires_at > ?)
		ORDER BY m.match_score DESC, m.id LIMIT ?`, now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var s MatchSummary
		if err := rows.Scan(&s.ID, &s.AthleteName, &s.BrandName, &s.MatchScore, &s.Status, &s.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
