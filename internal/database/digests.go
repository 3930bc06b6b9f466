package database

import "database/sql"

const digestColumns = `id, digest_date, tldr, body_markdown, top_matches, deal_intel, recent_deals, generated_at`

// UpsertDigest stores the digest for its date, replacing an earlier one.
func (db *DB) UpsertDigest(d Digest) error {
	_, err := db.conn.Exec(
		`INSERT INTO digests (digest_date, tldr, body_markdown, top_matches, deal_intel, recent_deals, generated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(digest_date) DO UPDATE SET
			tldr = excluded.tldr,
			body_markdown = excluded.body_markdown,
			top_matches = excluded.top_matches,
			deal_intel = excluded.deal_intel,
			recent_deals = excluded.recent_deals,
			generated_at = excluded.generated_at`,
		d.DigestDate, d.TLDR, d.BodyMarkdown, d.TopMatches, d.DealIntel, d.RecentDeals, d.GeneratedAt,
	)
	return err
}

// GetDigest returns the digest for a date, or nil.
func (db *DB) GetDigest(date string) (*Digest, error) {
	var d Digest
	err := db.conn.QueryRow(`SELECT `+digestColumns+` FROM digests WHERE digest_date = ?`, date).Scan(
		&d.ID, &d.DigestDate, &d.TLDR, &d.BodyMarkdown, &d.TopMatches, &d.DealIntel, &d.RecentDeals, &d.GeneratedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// GetAllDigests returns every digest, newest first.
func (db *DB) GetAllDigests() ([]Digest, error) {
	rows, err := db.conn.Query(`SELECT ` + digestColumns + ` FROM digests ORDER BY digest_date DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var digests []Digest
	for rows.Next() {
		var d Digest
		if err := rows.Scan(&d.ID, &d.DigestDate, &d.TLDR, &d.BodyMarkdown, &d.TopMatches,
			&d.DealIntel, &d.RecentDeals, &d.GeneratedAt); err != nil {
			return nil, err
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}
