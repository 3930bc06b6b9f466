package database

// InsertDeal records an internal deal. Returns the deal ID.
func (db *DB) InsertDeal(d Deal) (int64, error) {
	status := d.Status
	if status == "" {
		status = "pending"
	}
	result, err := db.conn.Exec(
		`INSERT INTO deals (athlete_id, brand_id, status, exclusivity, deal_value, sport, platform, content_type)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.AthleteID, d.BrandID, status, d.Exclusivity, d.DealValue, d.Sport, d.Platform, d.ContentType,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// GetOpenDealsForAthletes returns active or pending deals for the given athletes.
func (db *DB) GetOpenDealsForAthletes(athleteIDs []int64) ([]Deal, error) {
	if len(athleteIDs) == 0 {
		return nil, nil
	}
	rows, err := db.conn.Query(
		`SELECT id, athlete_id, brand_id, status, exclusivity, deal_value, sport, platform, content_type, created_at
		FROM deals
		WHERE status IN ('active', 'pending') AND athlete_id IN (`+placeholders(len(athleteIDs))+`)
		ORDER BY id`,
		int64Args(athleteIDs)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deals []Deal
	for rows.Next() {
		var d Deal
		if err := rows.Scan(&d.ID, &d.AthleteID, &d.BrandID, &d.Status, &d.Exclusivity, &d.DealValue,
			&d.Sport, &d.Platform, &d.ContentType, &d.CreatedAt); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

// GetValuedDealsSince returns deals with a positive value created at or after
// since, joined with the athlete's follower tier and engagement rate.
func (db *DB) GetValuedDealsSince(since string) ([]DealSample, error) {
	rows, err := db.conn.Query(
		`SELECT d.id, d.deal_value, d.sport, d.platform, d.content_type,
			a.follower_tier, a.engagement_rate, d.created_at
		FROM deals d JOIN athletes a ON a.id = d.athlete_id
		WHERE d.deal_value IS NOT NULL AND d.deal_value > 0 AND d.created_at >= ?
		ORDER BY d.id`, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []DealSample
	for rows.Next() {
		var s DealSample
		if err := rows.Scan(&s.DealID, &s.DealValue, &s.Sport, &s.Platform, &s.ContentType,
			&s.FollowerTier, &s.EngagementRate, &s.CreatedAt); err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// GetDealSummariesSince returns deals created at or after since with athlete
// and brand names, newest first.
func (db *DB) GetDealSummariesSince(since string, limit int) ([]DealSummary, error) {
	rows, err := db.conn.Query(
		`SELECT d.id, a.full_name, b.name, d.status, d.deal_value, d.created_at
		FROM deals d
		JOIN athletes a ON a.id = d.athlete_id
		JOIN brands b ON b.id = d.brand_id
		WHERE d.created_at >= ?
		ORDER BY d.created_at DESC, d.id DESC LIMIT ?`, since, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DealSummary
	for rows.Next() {
		var s DealSummary
		if err := rows.Scan(&s.ID, &s.AthleteName, &s.BrandName, &s.Status, &s.DealValue, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
