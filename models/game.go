package models

// BoardSize is the arena board preset a tournament's games are played on.
type BoardSize string

const (
	BoardSmall  BoardSize = "7x7"
	BoardMedium BoardSize = "11x11"
	BoardLarge  BoardSize = "19x19"
)

func (b BoardSize) Valid() bool {
	switch b {
	case BoardSmall, BoardMedium, BoardLarge:
		return true
	}
	return false
}

func (b BoardSize) Dimensions() (width, height int) {
	switch b {
	case BoardSmall:
		return 7, 7
	case BoardLarge:
		return 19, 19
	default:
		return 11, 11
	}
}

// GameType selects the rule set the engine applies.
type GameType string

const (
	GameStandard    GameType = "Standard"
	GameRoyale      GameType = "Royale"
	GameConstrictor GameType = "Constrictor"
	GameSnailMode   GameType = "Snail Mode"
)

func (g GameType) Valid() bool {
	switch g {
	case GameStandard, GameRoyale, GameConstrictor, GameSnailMode:
		return true
	}
	return false
}
