package database

// GetStats returns aggregate database statistics.
func (db *DB) GetStats() (*Stats, error) {
	var s Stats
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM athletes", &s.Athletes},
		{"SELECT COUNT(*) FROM athletes WHERE status = 'active'", &s.ActiveAthletes},
		{"SELECT COUNT(*) FROM brands", &s.Brands},
		{"SELECT COUNT(*) FROM deals", &s.Deals},
		{"SELECT COUNT(*) FROM brand_signals", &s.Signals},
		{"SELECT COUNT(*) FROM matches", &s.Matches},
		{"SELECT COUNT(*) FROM matches WHERE status IN ('approved', 'pursuing', 'converted', 'declined')", &s.ProtectedMatches},
		{"SELECT COUNT(*) FROM rate_cards", &s.RateCards},
		{"SELECT COUNT(*) FROM deal_intel", &s.DealIntel},
		{"SELECT COUNT(*) FROM deal_intel WHERE reviewed = 0", &s.UnreviewedIntel},
		{"SELECT COUNT(*) FROM athlete_valuations", &s.Valuations},
		{"SELECT COUNT(*) FROM digests", &s.Digests},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dest); err != nil {
			return nil, err
		}
	}

	var last *string
	if err := db.conn.QueryRow("SELECT MAX(started_at) FROM scrape_runs").Scan(&last); err != nil {
		return nil, err
	}
	s.LastScrapeRun = last
	return &s, nil
}
