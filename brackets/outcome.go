package brackets

import (
	"errors"
	"fmt"

	"github.com/snakearena/tournament-engine/models"
)

// ErrOutcomeInvariant signals an impossible game sequence: more games than
// the style allows, or the cap reached without a decision. It means a bug
// upstream, never a state a coin flip may resolve.
var ErrOutcomeInvariant = errors.New("match outcome invariant violation")

// Outcome is the incremental verdict over the games played so far.
type Outcome struct {
	Decided             bool
	WinnerParticipantID int
	GamesPlayed         int
}

// MaxGames is the hard cap of games a style may ever schedule.
func MaxGames(style models.MatchStyle) int {
	switch style {
	case models.StyleBestOf3:
		return 3
	case models.StyleFirstTo3:
		return 5
	default:
		return 1
	}
}

// WinsNeeded is the win count that decides a match of the given style.
func WinsNeeded(style models.MatchStyle) int {
	switch style {
	case models.StyleBestOf3:
		return 2
	case models.StyleFirstTo3:
		return 3
	default:
		return 1
	}
}

// Resolve evaluates the ordered per-game winners against the match style.
// It is evaluated after every game, and replaying the same sequence yields
// the same result: the decision point is the first game at which a
// participant reaches the required win count, regardless of trailing input.
func Resolve(style models.MatchStyle, winners []int) (Outcome, error) {
	if !style.Valid() {
		return Outcome{}, fmt.Errorf("%w: unknown match style %q", ErrOutcomeInvariant, style)
	}

	needed := WinsNeeded(style)
	limit := MaxGames(style)

	tally := make(map[int]int, 2)
	for i, w := range winners {
		if i >= limit {
			return Outcome{}, fmt.Errorf("%w: %d games recorded for style %q (cap %d)", ErrOutcomeInvariant, len(winners), style, limit)
		}
		tally[w]++
		if tally[w] == needed {
			return Outcome{Decided: true, WinnerParticipantID: w, GamesPlayed: i + 1}, nil
		}
	}

	if len(winners) >= limit {
		return Outcome{}, fmt.Errorf("%w: style %q undecided after %d games", ErrOutcomeInvariant, style, len(winners))
	}
	return Outcome{GamesPlayed: len(winners)}, nil
}

// WinCounts recomputes the per-participant win tally from persisted game
// winners. Executors resuming after a crash derive progress from this rather
// than trusting in-memory state.
func WinCounts(winners []int) map[int]int {
	counts := make(map[int]int, 2)
	for _, w := range winners {
		counts[w]++
	}
	return counts
}
