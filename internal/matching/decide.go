package matching

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/TobiSchelling/nilintel/internal/database"
)

var (
	// ErrMatchNotFound is returned by SetStatus for an unknown match ID.
	ErrMatchNotFound = errors.New("match not found")
	// ErrInvalidTransition is returned when the state machine does not allow the move.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStatusChanged is returned when the match moved on between read and write.
	ErrStatusChanged = errors.New("match status changed concurrently")
)

// SetStatus records a human decision on a match. The move must be allowed
// from the match's current status.
func SetStatus(db *database.DB, id int64, to Status) (*database.Match, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	m, err := db.GetMatchByID(id)
	if err != nil {
		return nil, fmt.Errorf("loading match %d: %w", id, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: %d", ErrMatchNotFound, id)
	}

	from := Status(m.Status)
	if from.Terminal() {
		return nil, fmt.Errorf("%w: match %d is already %s", ErrInvalidTransition, id, from)
	}
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	ok, err := db.UpdateMatchStatus(id, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("updating match %d: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStatusChanged, id)
	}

	log.WithFields(log.Fields{"match_id": id, "from": from, "to": to}).Info("match status updated")
	m.Status = string(to)
	return m, nil
}
