package database

const dealIntelColumns = `id, source_type, source_url, source_title, source_snippet, fingerprint,
	brand_name, athlete_name, amount_low, amount_high, sport, platform, content_type,
	extraction_confidence, reviewed, created_at`

// DealIntelExists reports whether a record with this fingerprint or source URL is stored.
func (db *DB) DealIntelExists(fingerprint, sourceURL string) (bool, error) {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM deal_intel WHERE fingerprint = ? OR source_url = ?`,
		fingerprint, sourceURL,
	).Scan(&count)
	return count > 0, err
}

// InsertDealIntel stores a deal intel record. It returns false with a nil
// error when a record with the same fingerprint or URL already exists.
func (db *DB) InsertDealIntel(d DealIntel) (bool, error) {
	_, err := db.conn.Exec(
		`INSERT INTO deal_intel (source_type, source_url, source_title, source_snippet, fingerprint,
			brand_name, athlete_name, amount_low, amount_high, sport, platform, content_type,
			extraction_confidence, reviewed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.SourceType, d.SourceURL, d.SourceTitle, d.SourceSnippet, d.Fingerprint,
		d.BrandName, d.AthleteName, d.AmountLow, d.AmountHigh, d.Sport, d.Platform, d.ContentType,
		d.ExtractionConfidence, d.Reviewed,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetPricedDealIntelSince returns records with an amount created at or after since.
func (db *DB) GetPricedDealIntelSince(since string) ([]DealIntel, error) {
	return db.queryDealIntel(
		`SELECT `+dealIntelColumns+` FROM deal_intel
		WHERE amount_low IS NOT NULL AND created_at >= ?
		ORDER BY id`, since,
	)
}

// GetComparableDealIntel returns the newest priced records for a sport.
func (db *DB) GetComparableDealIntel(sport, since string, limit int) ([]DealIntel, error) {
	return db.queryDealIntel(
		`SELECT `+dealIntelColumns+` FROM deal_intel
		WHERE sport = ? AND amount_low IS NOT NULL AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, sport, since, limit,
	)
}

// GetRecentDealIntel returns the newest records first.
func (db *DB) GetRecentDealIntel(limit int) ([]DealIntel, error) {
	return db.queryDealIntel(
		`SELECT `+dealIntelColumns+` FROM deal_intel ORDER BY created_at DESC, id DESC LIMIT ?`, limit,
	)
}

// MarkDealIntelReviewed flags a record as triaged by a human. Returns false
// when no record has that ID.
func (db *DB) MarkDealIntelReviewed(id int64) (bool, error) {
	result, err := db.conn.Exec(`UPDATE deal_intel SET reviewed = 1 WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (db *DB) queryDealIntel(query string, args ...any) ([]DealIntel, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []DealIntel
	for rows.Next() {
		var d DealIntel
		if err := rows.Scan(&d.ID, &d.SourceType, &d.SourceURL, &d.SourceTitle, &d.SourceSnippet,
			&d.Fingerprint, &d.BrandName, &d.AthleteName, &d.AmountLow, &d.AmountHigh, &d.Sport,
			&d.Platform, &d.ContentType, &d.ExtractionConfidence, &d.Reviewed, &d.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, d)
	}
	return records, rows.Err()
}

// GetUnreviewedDealIntelSince returns records nobody has triaged yet, newest first.
func (db *DB) GetUnreviewedDealIntelSince(since string, limit int) ([]DealIntel, error) {
	return db.queryDealIntel(
		`SELECT `+dealIntelColumns+` FROM deal_intel
		WHERE reviewed = 0 AND created_at >= ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, since, limit,
	)
}
