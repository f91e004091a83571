package brackets

import (
	"errors"

	"github.com/snakearena/tournament-engine/models"
)

var (
	ErrNotEnoughParticipants = errors.New("not enough participants to generate a bracket (minimum 2)")
	ErrDuplicateSeed         = errors.New("duplicate seed in participant list")
)

// SeededParticipant is one bracket entrant. Seed 1 is the best seed.
type SeededParticipant struct {
	ParticipantID int
	Seed          int
}

// SlotRef addresses a match inside a generated bracket by coordinates,
// before database ids exist.
type SlotRef struct {
	Round    int
	Position int
}

// Slot is one side of a generated match.
type Slot struct {
	Number        int // 1 or 2
	ParticipantID *int
	Source        *SlotRef // upstream match feeding this slot, nil for seeded slots
	Type          models.ParticipantType
	SeedPosition  *int
}

// Match is one generated bracket node. The downstream match is implied
// positionally: (round, position) feeds (round+1, position/2).
type Match struct {
	Round    int
	Position int
	Slots    [2]Slot

	// Bye matches are born resolved: completed, winner set, no games.
	Bye                 bool
	WinnerParticipantID *int

	VisualColumn int
	VisualRow    int
}

// Bracket is the full generated structure, matches ordered by round then
// position. It is a pure value; persistence is the service layer's job.
type Bracket struct {
	Size    int // next power of two >= participant count
	Rounds  int
	Byes    int
	Matches []*Match
}

// MatchAt returns the generated match with the given coordinates, or nil.
func (b *Bracket) MatchAt(round, position int) *Match {
	for _, m := range b.Matches {
		if m.Round == round && m.Position == position {
			return m
		}
	}
	return nil
}

// Final returns the last-round match.
func (b *Bracket) Final() *Match {
	return b.MatchAt(b.Rounds, 0)
}
