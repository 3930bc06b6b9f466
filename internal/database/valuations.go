package database

import "database/sql"

const valuationColumns = `id, athlete_id, as_of, annual_low, annual_high, follower_tier, percentile,
	confidence, comparable_count, valuation_data, created_at`

// UpsertValuation stores the snapshot for (athlete, as_of). A second run on
// the same date replaces that date's row; other dates are untouched.
func (db *DB) UpsertValuation(v AthleteValuation) error {
	_, err := db.conn.Exec(
		`INSERT INTO athlete_valuations
		(athlete_id, as_of, annual_low, annual_high, follower_tier, percentile, confidence, comparable_count, valuation_data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id, as_of) DO UPDATE SET
			annual_low = excluded.annual_low,
			annual_high = excluded.annual_high,
			follower_tier = excluded.follower_tier,
			percentile = excluded.percentile,
			confidence = excluded.confidence,
			comparable_count = excluded.comparable_count,
			valuation_data = excluded.valuation_data,
			created_at = datetime('now')`,
		v.AthleteID, v.AsOf, v.AnnualLow, v.AnnualHigh, v.FollowerTier, v.Percentile,
		v.Confidence, v.ComparableCount, v.ValuationData,
	)
	return err
}

// GetLatestValuation returns the newest snapshot for an athlete, or nil.
func (db *DB) GetLatestValuation(athleteID int64) (*AthleteValuation, error) {
	row := db.conn.QueryRow(
		`SELECT `+valuationColumns+` FROM athlete_valuations
		WHERE athlete_id = ? ORDER BY as_of DESC LIMIT 1`, athleteID,
	)
	var v AthleteValuation
	err := row.Scan(&v.ID, &v.AthleteID, &v.AsOf, &v.AnnualLow, &v.AnnualHigh, &v.FollowerTier,
		&v.Percentile, &v.Confidence, &v.ComparableCount, &v.ValuationData, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetValuationHistory returns every snapshot for an athlete, oldest first.
func (db *DB) GetValuationHistory(athleteID int64) ([]AthleteValuation, error) {
	rows, err := db.conn.Query(
		`SELECT `+valuationColumns+` FROM athlete_valuations WHERE athlete_id = ? ORDER BY as_of`, athleteID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []AthleteValuation
	for rows.Next() {
		var v AthleteValuation
		if err := rows.Scan(&v.ID, &v.AthleteID, &v.AsOf, &v.AnnualLow, &v.AnnualHigh, &v.FollowerTier,
			&v.Percentile, &v.Confidence, &v.ComparableCount, &v.ValuationData, &v.CreatedAt); err != nil {
			return nil, err
		}
		history = append(history, v)
	}
	return history, rows.Err()
}

// GetLatestValuationTiers returns the follower tier of each athlete's newest
// snapshot. Athletes without a snapshot are absent from the map.
func (db *DB) GetLatestValuationTiers(athleteIDs []int64) (map[int64]string, error) {
	tiers := make(map[int64]string)
	if len(athleteIDs) == 0 {
		return tiers, nil
	}
	rows, err := db.conn.Query(
		`SELECT v.athlete_id, v.follower_tier FROM athlete_valuations v
		JOIN (
			SELECT athlete_id, MAX(as_of) AS as_of FROM athlete_valuations
			WHERE athlete_id IN (`+placeholders(len(athleteIDs))+`)
			GROUP BY athlete_id
		) latest ON latest.athlete_id = v.athlete_id AND latest.as_of = v.as_of`,
		int64Args(athleteIDs)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var tier string
		if err := rows.Scan(&id, &tier); err != nil {
			return nil, err
		}
		tiers[id] = tier
	}
	return tiers, rows.Err()
}
