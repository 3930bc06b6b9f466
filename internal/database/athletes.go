package database

import (
	"database/sql"
	"encoding/json"
)

const athleteColumns = `id, full_name, sport, skill_level, status, tags, engagement_rate,
	follower_tier, valuation_tier, created_at`

// UpsertAthlete inserts an athlete or updates the existing row with the same
// full name. Returns the athlete ID.
func (db *DB) UpsertAthlete(a Athlete) (int64, error) {
	tags, err := encodeStrings(a.Tags)
	if err != nil {
		return 0, err
	}
	status := a.Status
	if status == "" {
		status = "active"
	}

	var id int64
	err = db.conn.QueryRow(
		`INSERT INTO athletes (full_name, sport, skill_level, status, tags, engagement_rate, follower_tier, valuation_tier)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(full_name) DO UPDATE SET
			sport = excluded.sport,
			skill_level = excluded.skill_level,
			status = excluded.status,
			tags = excluded.tags,
			engagement_rate = excluded.engagement_rate,
			follower_tier = excluded.follower_tier,
			valuation_tier = excluded.valuation_tier
		RETURNING id`,
		a.FullName, a.Sport, a.SkillLevel, status, tags, a.EngagementRate, a.FollowerTier, a.ValuationTier,
	).Scan(&id)
	return id, err
}

// UpsertSocialProfile sets the handle for an athlete on a platform.
func (db *DB) UpsertSocialProfile(p SocialProfile) error {
	followers := p.Followers
	if followers < 0 {
		followers = 0
	}
	_, err := db.conn.Exec(
		`INSERT INTO athlete_social_profiles (athlete_id, platform, handle, followers, engagement_rate)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(athlete_id, platform) DO UPDATE SET
			handle = excluded.handle,
			followers = excluded.followers,
			engagement_rate = excluded.engagement_rate,
			updated_at = datetime('now')`,
		p.AthleteID, p.Platform, p.Handle, followers, p.EngagementRate,
	)
	return err
}

// GetAthlete returns a single athlete by ID, or nil if not found.
func (db *DB) GetAthlete(id int64) (*Athlete, error) {
	row := db.conn.QueryRow(`SELECT `+athleteColumns+` FROM athletes WHERE id = ?`, id)
	a, err := scanAthlete(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAthleteByName returns an athlete by exact full name, or nil.
func (db *DB) GetAthleteByName(name string) (*Athlete, error) {
	row := db.conn.QueryRow(`SELECT `+athleteColumns+` FROM athletes WHERE full_name = ?`, name)
	a, err := scanAthlete(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetActiveAthletes returns up to limit athletes with status 'active', ordered by ID.
func (db *DB) GetActiveAthletes(limit int) ([]Athlete, error) {
	rows, err := db.conn.Query(
		`SELECT `+athleteColumns+` FROM athletes WHERE status = 'active' ORDER BY id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var athletes []Athlete
	for rows.Next() {
		a, err := scanAthlete(rows)
		if err != nil {
			return nil, err
		}
		athletes = append(athletes, *a)
	}
	return athletes, rows.Err()
}

// GetSocialProfiles returns an athlete's handles ordered by platform.
func (db *DB) GetSocialProfiles(athleteID int64) ([]SocialProfile, error) {
	byAthlete, err := db.GetSocialProfilesForAthletes([]int64{athleteID})
	if err != nil {
		return nil, err
	}
	return byAthlete[athleteID], nil
}

// GetSocialProfilesForAthletes returns handles keyed by athlete ID.
func (db *DB) GetSocialProfilesForAthletes(athleteIDs []int64) (map[int64][]SocialProfile, error) {
	result := make(map[int64][]SocialProfile)
	if len(athleteIDs) == 0 {
		return result, nil
	}

	rows, err := db.conn.Query(
		`SELECT id, athlete_id, platform, handle, followers, engagement_rate, updated_at
		FROM athlete_social_profiles
		WHERE athlete_id IN (`+placeholders(len(athleteIDs))+`)
		ORDER BY athlete_id, platform`,
		int64Args(athleteIDs)...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var p SocialProfile
		if err := rows.Scan(&p.ID, &p.AthleteID, &p.Platform, &p.Handle, &p.Followers,
			&p.EngagementRate, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result[p.AthleteID] = append(result[p.AthleteID], p)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAthlete(row rowScanner) (*Athlete, error) {
	var a Athlete
	var tags *string
	if err := row.Scan(&a.ID, &a.FullName, &a.Sport, &a.SkillLevel, &a.Status, &tags,
		&a.EngagementRate, &a.FollowerTier, &a.ValuationTier, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Tags = decodeStrings(tags)
	return &a, nil
}

func encodeStrings(vals []string) (*string, error) {
	if vals == nil {
		return nil, nil
	}
	data, err := json.Marshal(vals)
	if err != nil {
		return nil, err
	}
	s := string(data)
	return &s, nil
}

func decodeStrings(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(*raw), &vals); err != nil {
		return nil
	}
	return vals
}
