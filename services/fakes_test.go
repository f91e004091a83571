package services

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/snakearena/tournament-engine/engine"
	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/repositories"
)

// memStore is a single in-memory backing store shared by the fake
// repositories, standing in for postgres. Status compare-and-set operations
// mirror the SQL WHERE clauses so the services' concurrency handling is
// exercised for real.
type memStore struct {
	mu            sync.Mutex
	nextID        int
	tournaments   map[int]*models.Tournament
	registrations map[int]*models.Registration
	matches       map[int]*models.Match
	slots         map[int]*models.MatchParticipant
	games         map[int]*models.MatchGame
}

func newMemStore() *memStore {
	return &memStore{
		tournaments:   make(map[int]*models.Tournament),
		registrations: make(map[int]*models.Registration),
		matches:       make(map[int]*models.Match),
		slots:         make(map[int]*models.MatchParticipant),
		games:         make(map[int]*models.MatchGame),
	}
}

func (s *memStore) id() int {
	s.nextID++
	return s.nextID
}

func copyTournament(t *models.Tournament) *models.Tournament { c := *t; return &c }
func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.Participants = nil
	c.Games = nil
	c.WinCounts = nil
	return &c
}

// --- tournament repository ---

type fakeTournamentRepo struct{ s *memStore }

func (r *fakeTournamentRepo) Create(ctx context.Context, t *models.Tournament) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.id()
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	r.s.tournaments[t.ID] = copyTournament(t)
	return nil
}

func (r *fakeTournamentRepo) GetByID(ctx context.Context, id int) (*models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	return copyTournament(t), nil
}

func (r *fakeTournamentRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeTournamentRepo) List(ctx context.Context, filter repositories.ListTournamentsFilter) ([]models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Tournament, 0)
	for _, t := range r.s.tournaments {
		if filter.OwnerID != nil && t.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != nil && t.Status != *filter.Status {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeTournamentRepo) CompareAndSetStatus(ctx context.Context, exec repositories.SQLExecutor, id int, from, to models.TournamentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok || t.Status != from {
		return repositories.ErrNoRowsUpdated
	}
	t.Status = to
	return nil
}

func (r *fakeTournamentRepo) AdvanceRound(ctx context.Context, exec repositories.SQLExecutor, id int, fromRound int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok || t.CurrentRound != fromRound || t.Status != models.StatusInProgress {
		return repositories.ErrNoRowsUpdated
	}
	t.CurrentRound++
	return nil
}

func (r *fakeTournamentRepo) CompleteWithWinner(ctx context.Context, exec repositories.SQLExecutor, id int, winnerParticipantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok || t.Status != models.StatusInProgress {
		return repositories.ErrNoRowsUpdated
	}
	t.Status = models.StatusCompleted
	t.WinnerParticipantID = &winnerParticipantID
	return nil
}

func (r *fakeTournamentRepo) ResetProgress(ctx context.Context, exec repositories.SQLExecutor, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok || t.Status != models.StatusInProgress {
		return repositories.ErrNoRowsUpdated
	}
	t.Status = models.StatusRegistration
	t.CurrentRound = 0
	t.WinnerParticipantID = nil
	return nil
}

func (r *fakeTournamentRepo) ListUnarchivedCompleted(ctx context.Context, limit int) ([]*models.Tournament, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Tournament, 0)
	for _, t := range r.s.tournaments {
		if t.Status == models.StatusCompleted && t.ArchivedAt == nil {
			out = append(out, copyTournament(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeTournamentRepo) MarkArchived(ctx context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tournaments[id]
	if !ok || t.ArchivedAt != nil {
		return repositories.ErrNoRowsUpdated
	}
	now := time.Now()
	t.ArchivedAt = &now
	return nil
}

func (r *fakeTournamentRepo) Delete(ctx context.Context, id int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.tournaments[id]; !ok {
		return repositories.ErrTournamentNotFound
	}
	delete(r.s.tournaments, id)
	return nil
}

// --- registration repository ---

type fakeRegistrationRepo struct{ s *memStore }

func (r *fakeRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.registrations {
		if existing.TournamentID == reg.TournamentID && existing.ParticipantID == reg.ParticipantID {
			return repositories.ErrRegistrationConflict
		}
	}
	reg.ID = r.s.id()
	reg.RegisteredAt = time.Now()
	c := *reg
	r.s.registrations[reg.ID] = &c
	return nil
}

func (r *fakeRegistrationRepo) Delete(ctx context.Context, tournamentID, participantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, reg := range r.s.registrations {
		if reg.TournamentID == tournamentID && reg.ParticipantID == participantID {
			delete(r.s.registrations, id)
			return nil
		}
	}
	return repositories.ErrRegistrationNotFound
}

func (r *fakeRegistrationRepo) ListByTournament(ctx context.Context, tournamentID int) ([]*models.Registration, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Registration, 0)
	for _, reg := range r.s.registrations {
		if reg.TournamentID == tournamentID {
			c := *reg
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRegistrationRepo) CountByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) (int, error) {
	regs, _ := r.ListByTournament(ctx, tournamentID)
	return len(regs), nil
}

func (r *fakeRegistrationRepo) CountByTournamentAndUser(ctx context.Context, tournamentID, userID int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, reg := range r.s.registrations {
		if reg.TournamentID == tournamentID && reg.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRegistrationRepo) AssignSeed(ctx context.Context, exec repositories.SQLExecutor, registrationID, seed int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	reg, ok := r.s.registrations[registrationID]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Seed = &seed
	return nil
}

// --- match repository ---

type fakeMatchRepo struct{ s *memStore }

func (r *fakeMatchRepo) Create(ctx context.Context, exec repositories.SQLExecutor, match *models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	match.ID = r.s.id()
	match.CreatedAt = time.Now()
	r.s.matches[match.ID] = copyMatch(match)
	return nil
}

func (r *fakeMatchRepo) GetByID(ctx context.Context, id int) (*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, repositories.ErrMatchNotFound
	}
	return copyMatch(m), nil
}

func (r *fakeMatchRepo) GetByIDForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeMatchRepo) ListByTournament(ctx context.Context, tournamentID int, round *int, status *models.MatchStatus) ([]*models.Match, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Match, 0)
	for _, m := range r.s.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		if round != nil && m.Round != *round {
			continue
		}
		if status != nil && m.Status != *status {
			continue
		}
		out = append(out, copyMatch(m))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Round != out[j].Round {
			return out[i].Round < out[j].Round
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (r *fakeMatchRepo) UpdateNextMatchID(ctx context.Context, exec repositories.SQLExecutor, matchID, nextMatchID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	id := nextMatchID
	m.NextMatchID = &id
	return nil
}

func (r *fakeMatchRepo) CompareAndSetStatus(ctx context.Context, exec repositories.SQLExecutor, matchID int, from, to models.MatchStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok || m.Status != from {
		return repositories.ErrNoRowsUpdated
	}
	m.Status = to
	return nil
}

func (r *fakeMatchRepo) CompleteWithWinner(ctx context.Context, exec repositories.SQLExecutor, matchID, winnerParticipantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok || m.Status == models.MatchCanceled {
		return repositories.ErrNoRowsUpdated
	}
	m.Status = models.MatchCompleted
	w := winnerParticipantID
	m.WinnerParticipantID = &w
	m.Blocked = false
	m.BlockedReason = nil
	return nil
}

func (r *fakeMatchRepo) SetBlocked(ctx context.Context, matchID int, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[matchID]
	if !ok {
		return repositories.ErrMatchNotFound
	}
	m.Blocked = true
	m.BlockedReason = &reason
	return nil
}

func (r *fakeMatchRepo) CountNonTerminalInRound(ctx context.Context, exec repositories.SQLExecutor, tournamentID, round int) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, m := range r.s.matches {
		if m.TournamentID == tournamentID && m.Round == round && !m.Status.Terminal() {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) CountByStatusInRound(ctx context.Context, tournamentID, round int, status models.MatchStatus) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	count := 0
	for _, m := range r.s.matches {
		if m.TournamentID == tournamentID && m.Round == round && m.Status == status {
			count++
		}
	}
	return count, nil
}

func (r *fakeMatchRepo) DeleteByTournament(ctx context.Context, exec repositories.SQLExecutor, tournamentID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, m := range r.s.matches {
		if m.TournamentID != tournamentID {
			continue
		}
		for slotID, slot := range r.s.slots {
			if slot.MatchID == id {
				delete(r.s.slots, slotID)
			}
		}
		for gameID, game := range r.s.games {
			if game.MatchID == id {
				delete(r.s.games, gameID)
			}
		}
		delete(r.s.matches, id)
	}
	return nil
}

// --- match participant repository ---

type fakeSlotRepo struct{ s *memStore }

func (r *fakeSlotRepo) Create(ctx context.Context, exec repositories.SQLExecutor, mp *models.MatchParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	mp.ID = r.s.id()
	c := *mp
	r.s.slots[mp.ID] = &c
	return nil
}

func (r *fakeSlotRepo) ListByMatch(ctx context.Context, matchID int) ([]models.MatchParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.MatchParticipant, 0, 2)
	for _, slot := range r.s.slots {
		if slot.MatchID == matchID {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out, nil
}

func (r *fakeSlotRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchParticipant, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.MatchParticipant, 0)
	for _, slot := range r.s.slots {
		m, ok := r.s.matches[slot.MatchID]
		if ok && m.TournamentID == tournamentID {
			out = append(out, *slot)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchID != out[j].MatchID {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].Slot < out[j].Slot
	})
	return out, nil
}

func (r *fakeSlotRepo) FillSlot(ctx context.Context, exec repositories.SQLExecutor, matchID, sourceMatchID, participantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, slot := range r.s.slots {
		if slot.MatchID == matchID && slot.SourceMatchID != nil && *slot.SourceMatchID == sourceMatchID && slot.ParticipantID == nil {
			id := participantID
			slot.ParticipantID = &id
			return nil
		}
	}
	return repositories.ErrNoRowsUpdated
}

func (r *fakeSlotRepo) ReassignSlot(ctx context.Context, exec repositories.SQLExecutor, matchID, sourceMatchID, participantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, slot := range r.s.slots {
		if slot.MatchID == matchID && slot.SourceMatchID != nil && *slot.SourceMatchID == sourceMatchID {
			id := participantID
			slot.ParticipantID = &id
			return nil
		}
	}
	return repositories.ErrMatchParticipantNotFound
}

func (r *fakeSlotRepo) UpdateSourceMatchID(ctx context.Context, exec repositories.SQLExecutor, id, sourceMatchID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	slot, ok := r.s.slots[id]
	if !ok {
		return repositories.ErrMatchParticipantNotFound
	}
	src := sourceMatchID
	slot.SourceMatchID = &src
	return nil
}

// --- match game repository ---

type fakeGameRepo struct{ s *memStore }

func (r *fakeGameRepo) Create(ctx context.Context, game *models.MatchGame) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.games {
		if existing.MatchID == game.MatchID && existing.GameNumber == game.GameNumber {
			return repositories.ErrMatchGameNumberConflict
		}
	}
	game.ID = r.s.id()
	game.CreatedAt = time.Now()
	c := *game
	r.s.games[game.ID] = &c
	return nil
}

func (r *fakeGameRepo) ListByMatch(ctx context.Context, matchID int) ([]models.MatchGame, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.MatchGame, 0)
	for _, game := range r.s.games {
		if game.MatchID == matchID {
			out = append(out, *game)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameNumber < out[j].GameNumber })
	return out, nil
}

func (r *fakeGameRepo) ListByTournament(ctx context.Context, tournamentID int) ([]models.MatchGame, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.MatchGame, 0)
	for _, game := range r.s.games {
		m, ok := r.s.matches[game.MatchID]
		if ok && m.TournamentID == tournamentID {
			out = append(out, *game)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MatchID != out[j].MatchID {
			return out[i].MatchID < out[j].MatchID
		}
		return out[i].GameNumber < out[j].GameNumber
	})
	return out, nil
}

func (r *fakeGameRepo) SetWinner(ctx context.Context, gameID, winnerParticipantID int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	game, ok := r.s.games[gameID]
	if !ok {
		return repositories.ErrMatchGameNotFound
	}
	w := winnerParticipantID
	game.WinnerParticipantID = &w
	return nil
}

// --- registry and engine fakes ---

type fakeRegistry struct {
	mu     sync.Mutex
	snakes map[int]*engine.ParticipantInfo
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{snakes: make(map[int]*engine.ParticipantInfo)}
}

func (r *fakeRegistry) addSnake(id, ownerUserID int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snakes[id] = &engine.ParticipantInfo{
		ID:          id,
		Name:        fmt.Sprintf("snake-%d", id),
		URL:         fmt.Sprintf("http://snakes.test/%d", id),
		OwnerUserID: ownerUserID,
		Public:      true,
	}
}

func (r *fakeRegistry) ResolveParticipant(ctx context.Context, id int) (*engine.ParticipantInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	info, ok := r.snakes[id]
	if !ok {
		return nil, engine.ErrParticipantNotFound
	}
	c := *info
	return &c, nil
}

// scriptedEngine answers PlayGame from a per-call script. The default picks
// the first participant as the winner.
type scriptedEngine struct {
	mu     sync.Mutex
	calls  int
	script func(call int, participants []engine.Participant) (*engine.GameResult, error)
}

func (e *scriptedEngine) PlayGame(ctx context.Context, participants []engine.Participant, config engine.BoardConfig) (*engine.GameResult, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	script := e.script
	e.mu.Unlock()

	if script != nil {
		return script(call, participants)
	}
	return &engine.GameResult{WinnerParticipantID: participants[0].ID}, nil
}

func (e *scriptedEngine) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// --- broadcaster fake ---

type recordedEvent struct {
	TournamentID int
	Type         string
	Payload      interface{}
}

type fakeHub struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (h *fakeHub) BroadcastTournament(tournamentID int, eventType string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, recordedEvent{TournamentID: tournamentID, Type: eventType, Payload: payload})
}

func (h *fakeHub) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	types := make([]string, 0, len(h.events))
	for _, e := range h.events {
		types = append(types, e.Type)
	}
	return types
}

// --- wiring ---

type testEnv struct {
	store    *memStore
	registry *fakeRegistry
	engine   *scriptedEngine
	hub      *fakeHub

	tournamentRepo *fakeTournamentRepo
	regRepo        *fakeRegistrationRepo
	matchRepo      *fakeMatchRepo
	slotRepo       *fakeSlotRepo
	gameRepo       *fakeGameRepo

	tournaments TournamentService
	brackets    BracketService
	rounds      RoundService
	executor    MatchExecutor
}

// passthroughTx skips real transaction management; fakes commit immediately.
func passthroughTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return fn(nil)
}

func newTestEnv() *testEnv {
	store := newMemStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		store:          store,
		registry:       newFakeRegistry(),
		engine:         &scriptedEngine{},
		hub:            &fakeHub{},
		tournamentRepo: &fakeTournamentRepo{s: store},
		regRepo:        &fakeRegistrationRepo{s: store},
		matchRepo:      &fakeMatchRepo{s: store},
		slotRepo:       &fakeSlotRepo{s: store},
		gameRepo:       &fakeGameRepo{s: store},
	}

	env.brackets = NewBracketService(env.tournamentRepo, env.matchRepo, env.slotRepo, env.gameRepo, logger)

	env.executor = &matchExecutor{
		runTx:          passthroughTx,
		tournamentRepo: env.tournamentRepo,
		matchRepo:      env.matchRepo,
		slotRepo:       env.slotRepo,
		gameRepo:       env.gameRepo,
		registry:       env.registry,
		gameEngine:     env.engine,
		hub:            env.hub,
		cfg:            ExecutorConfig{MaxAttempts: 2, RetryBackoff: time.Millisecond},
		logger:         logger,
	}

	env.tournaments = &tournamentService{
		runTx:          passthroughTx,
		tournamentRepo: env.tournamentRepo,
		regRepo:        env.regRepo,
		matchRepo:      env.matchRepo,
		slotRepo:       env.slotRepo,
		bracketService: env.brackets,
		registry:       env.registry,
		hub:            env.hub,
		logger:         logger,
	}

	env.rounds = &roundService{
		runTx:          passthroughTx,
		tournamentRepo: env.tournamentRepo,
		matchRepo:      env.matchRepo,
		executor:       env.executor,
		hub:            env.hub,
		logger:         logger,
	}

	return env
}

const ownerUserID = 1

// newStartedTournament creates a tournament, registers n snakes owned by
// distinct users (snake id 100+i owned by user 10+i) and starts it.
func (env *testEnv) newStartedTournament(ctx context.Context, n int, style models.MatchStyle) (*models.Tournament, error) {
	t, err := env.newRegisteredTournament(ctx, n, style)
	if err != nil {
		return nil, err
	}
	return env.tournaments.StartTournament(ctx, t.ID, ownerUserID)
}

func (env *testEnv) newRegisteredTournament(ctx context.Context, n int, style models.MatchStyle) (*models.Tournament, error) {
	t, err := env.tournaments.CreateTournament(ctx, ownerUserID, CreateTournamentInput{
		Name:                 "arena cup",
		BoardSize:            models.BoardMedium,
		GameType:             models.GameStandard,
		MatchStyle:           style,
		MaxSnakesPerUser:     1,
		RequiredParticipants: 2,
	})
	if err != nil {
		return nil, err
	}
	if _, err := env.tournaments.OpenRegistration(ctx, t.ID, ownerUserID); err != nil {
		return nil, err
	}
	for i := 1; i <= n; i++ {
		snakeID := 100 + i
		userID := 10 + i
		env.registry.addSnake(snakeID, userID)
		if _, err := env.tournaments.Register(ctx, t.ID, userID, snakeID); err != nil {
			return nil, err
		}
	}
	return env.tournaments.GetTournament(ctx, t.ID)
}
