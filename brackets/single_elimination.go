package brackets

import (
	"fmt"
	"math"
	"sort"

	"github.com/snakearena/tournament-engine/models"
)

// seedOrder returns the canonical slot ordering for a full bracket of the
// given power-of-two size: seed 1 is paired with the last seed, then the
// halves are recursively interleaved so rematches of top seeds come as late
// as possible. For size 8 this yields 1,8,4,5,2,7,3,6.
func seedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		doubled := len(order) * 2
		next := make([]int, 0, doubled)
		for _, s := range order {
			next = append(next, s, doubled+1-s)
		}
		order = next
	}
	return order
}

// visualRow places match (round, position) so that a match's row is always
// the midpoint of its two feeder matches' rows.
func visualRow(round, position int) int {
	return position*(1<<uint(round)) + (1 << uint(round-1)) - 1
}

// BuildSingleElimination generates the full bracket for the given entrants.
// Participants are ranked by ascending seed; when the count is not a power
// of two the best ranks receive first-round byes. Bye matches come out
// already resolved with their winner carried into the next round's slot, so
// persisting the result of this function inside one transaction yields a
// bracket that is immediately runnable.
func BuildSingleElimination(participants []SeededParticipant) (*Bracket, error) {
	n := len(participants)
	if n < 2 {
		return nil, ErrNotEnoughParticipants
	}

	ranked := append([]SeededParticipant(nil), participants...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Seed < ranked[j].Seed })
	for i := 1; i < n; i++ {
		if ranked[i].Seed == ranked[i-1].Seed {
			return nil, ErrDuplicateSeed
		}
	}

	rounds := int(math.Ceil(math.Log2(float64(n))))
	size := 1 << uint(rounds)

	bracket := &Bracket{
		Size:    size,
		Rounds:  rounds,
		Byes:    size - n,
		Matches: make([]*Match, 0, size-1),
	}

	order := seedOrder(size)

	// Winners of bye matches are known at build time; prefill carries them
	// into the slot they advance to, keyed by (round, position, slot index).
	prefill := make(map[[3]int]int)

	for p := 0; p < size/2; p++ {
		rank1, rank2 := order[2*p], order[2*p+1]

		m := &Match{
			Round:        1,
			Position:     p,
			VisualColumn: 0,
			VisualRow:    visualRow(1, p),
		}
		m.Slots[0] = seededSlot(1, rank1, ranked)
		m.Slots[1] = seededSlot(2, rank2, ranked)

		present1 := m.Slots[0].ParticipantID != nil
		present2 := m.Slots[1].ParticipantID != nil
		switch {
		case present1 && present2:
			// playable match
		case present1 || present2:
			m.Bye = true
			winner := m.Slots[0].ParticipantID
			if winner == nil {
				winner = m.Slots[1].ParticipantID
			}
			m.WinnerParticipantID = winner
			if rounds > 1 {
				prefill[[3]int{2, p / 2, p % 2}] = *winner
			}
		default:
			return nil, fmt.Errorf("bracket of size %d for %d participants paired two byes at position %d", size, n, p)
		}

		bracket.Matches = append(bracket.Matches, m)
	}

	for r := 2; r <= rounds; r++ {
		matchesInRound := size >> uint(r)
		for p := 0; p < matchesInRound; p++ {
			m := &Match{
				Round:        r,
				Position:     p,
				VisualColumn: r - 1,
				VisualRow:    visualRow(r, p),
			}
			for s := 0; s < 2; s++ {
				slot := Slot{
					Number: s + 1,
					Type:   models.SlotWinner,
					Source: &SlotRef{Round: r - 1, Position: 2*p + s},
				}
				if id, ok := prefill[[3]int{r, p, s}]; ok {
					v := id
					slot.ParticipantID = &v
				}
				m.Slots[s] = slot
			}
			bracket.Matches = append(bracket.Matches, m)
		}
	}

	return bracket, nil
}

// seededSlot builds a round-1 slot for the canonical seed rank. Ranks beyond
// the participant count are byes and stay empty.
func seededSlot(number, rank int, ranked []SeededParticipant) Slot {
	if rank > len(ranked) {
		return Slot{Number: number, Type: models.SlotBye}
	}
	id := ranked[rank-1].ParticipantID
	seedPos := rank
	return Slot{
		Number:        number,
		ParticipantID: &id,
		Type:          models.SlotSeed,
		SeedPosition:  &seedPos,
	}
}
