package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/snakearena/tournament-engine/middleware"
	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/repositories"
	"github.com/snakearena/tournament-engine/services"
)

type TournamentHandler struct {
	tournamentService services.TournamentService
	bracketService    services.BracketService
	roundService      services.RoundService
}

func NewTournamentHandler(
	ts services.TournamentService,
	bs services.BracketService,
	rs services.RoundService,
) *TournamentHandler {
	return &TournamentHandler{
		tournamentService: ts,
		bracketService:    bs,
		roundService:      rs,
	}
}

// CreateHandler handles POST /tournaments
func (h *TournamentHandler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "authentication required to create a tournament")
		return
	}

	var input services.CreateTournamentInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.CreateTournament(r.Context(), userID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// GetByIDHandler handles GET /tournaments/{tournamentID}
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	tournament, err := h.tournamentService.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// ListHandler handles GET /tournaments
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	var filter repositories.ListTournamentsFilter
	query := r.URL.Query()

	if ownerIDStr := query.Get("owner_id"); ownerIDStr != "" {
		id, err := strconv.Atoi(ownerIDStr)
		if err != nil || id < 1 {
			badRequestResponse(w, errors.New("invalid owner_id query parameter"))
			return
		}
		filter.OwnerID = &id
	}
	if statusStr := query.Get("status"); statusStr != "" {
		status := models.TournamentStatus(statusStr)
		if !status.Valid() {
			badRequestResponse(w, errors.New("invalid status query parameter"))
			return
		}
		filter.Status = &status
	}
	if limitStr := query.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			badRequestResponse(w, errors.New("invalid limit query parameter"))
			return
		}
		filter.Limit = limit
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil || offset < 0 {
			badRequestResponse(w, errors.New("invalid offset query parameter"))
			return
		}
		filter.Offset = offset
	}

	tournaments, err := h.tournamentService.ListTournaments(r.Context(), filter)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// OpenRegistrationHandler handles POST /tournaments/{tournamentID}/open
func (h *TournamentHandler) OpenRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	tournament, err := h.tournamentService.OpenRegistration(r.Context(), id, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type registrationInput struct {
	ParticipantID int `json:"participant_id"`
}

// RegisterHandler handles POST /tournaments/{tournamentID}/registrations
func (h *TournamentHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	var input registrationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.ParticipantID < 1 {
		badRequestResponse(w, errors.New("participant_id is required"))
		return
	}

	registration, err := h.tournamentService.Register(r.Context(), id, userID, input.ParticipantID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"registration": registration}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// UnregisterHandler handles DELETE /tournaments/{tournamentID}/registrations/{participantID}
func (h *TournamentHandler) UnregisterHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}
	participantID, err := getIDFromURL(r, "participantID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	if err := h.tournamentService.Unregister(r.Context(), id, userID, participantID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartHandler handles POST /tournaments/{tournamentID}/start
func (h *TournamentHandler) StartHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	tournament, err := h.tournamentService.StartTournament(r.Context(), id, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// RunRoundHandler handles POST /tournaments/{tournamentID}/rounds/run
func (h *TournamentHandler) RunRoundHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	report, err := h.roundService.RunRound(r.Context(), id, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"round": report}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

// ResetHandler handles POST /tournaments/{tournamentID}/reset
func (h *TournamentHandler) ResetHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	if err := h.tournamentService.ResetTournament(r.Context(), id, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelHandler handles POST /tournaments/{tournamentID}/cancel
func (h *TournamentHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	id, userID, ok := h.idAndUser(w, r)
	if !ok {
		return
	}

	if err := h.tournamentService.CancelTournament(r.Context(), id, userID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetBracketHandler handles GET /tournaments/{tournamentID}/bracket
func (h *TournamentHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	view, err := h.bracketService.GetBracket(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"bracket": view}, nil); err != nil {
		serverErrorResponse(w, err)
	}
}

type overrideWinnerInput struct {
	WinnerParticipantID int `json:"winner_participant_id"`
}

// OverrideWinnerHandler handles POST /matches/{matchID}/override. Admin only;
// enforced by the Authorize middleware on the route.
func (h *TournamentHandler) OverrideWinnerHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, err)
		return
	}

	var input overrideWinnerInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, err)
		return
	}
	if input.WinnerParticipantID < 1 {
		badRequestResponse(w, errors.New("winner_participant_id is required"))
		return
	}

	if err := h.tournamentService.OverrideMatchWinner(r.Context(), matchID, input.WinnerParticipantID); err != nil {
		mapServiceErrorToHTTP(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TournamentHandler) idAndUser(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, err)
		return 0, 0, false
	}
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, "authentication required")
		return 0, 0, false
	}
	return id, userID, true
}
