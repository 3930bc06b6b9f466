package database

// UpsertRateCard writes one benchmark row keyed by its five grouping fields.
func (db *DB) UpsertRateCard(rc RateCard) error {
	_, err := db.conn.Exec(
		`INSERT INTO rate_cards
		(sport, platform, content_type, follower_tier, engagement_tier, rate_low, rate_median, rate_high, sample_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sport, platform, content_type, follower_tier, engagement_tier) DO UPDATE SET
			rate_low = excluded.rate_low,
			rate_median = excluded.rate_median,
			rate_high = excluded.rate_high,
			sample_size = excluded.sample_size,
			updated_at = datetime('now')`,
		rc.Sport, rc.Platform, rc.ContentType, rc.FollowerTier, rc.EngagementTier,
		rc.RateLow, rc.RateMedian, rc.RateHigh, rc.SampleSize,
	)
	return err
}

// GetRateCards returns rate cards for a sport, or all rate cards when sport is empty.
func (db *DB) GetRateCards(sport string) ([]RateCard, error) {
	query := `SELECT id, sport, platform, content_type, follower_tier, engagement_tier,
		rate_low, rate_median, rate_high, sample_size, updated_at
		FROM rate_cards`
	var args []any
	if sport != "" {
		query += " WHERE sport = ?"
		args = append(args, sport)
	}
	query += " ORDER BY sport, platform, content_type, follower_tier, engagement_tier"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cards []RateCard
	for rows.Next() {
		var rc RateCard
		if err := rows.Scan(&rc.ID, &rc.Sport, &rc.Platform, &rc.ContentType, &rc.FollowerTier,
			&rc.EngagementTier, &rc.RateLow, &rc.RateMedian, &rc.RateHigh, &rc.SampleSize, &rc.UpdatedAt); err != nil {
			return nil, err
		}
		cards = append(cards, rc)
	}
	return cards, rows.Err()
}
