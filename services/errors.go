package services

import "errors"

// Error kinds shared across services and the HTTP error mapping.
var (
	ErrNotFound = errors.New("requested resource not found")

	// State machine and validation failures, surfaced to callers as 4xx.
	ErrInvalidStateTransition     = errors.New("invalid tournament state transition")
	ErrPrerequisiteNotMet         = errors.New("not enough registered participants to start")
	ErrRegistrationLimitExceeded  = errors.New("per-user snake registration limit exceeded")
	ErrRegistrationClosed         = errors.New("tournament registration is not open")
	ErrRoundAlreadyRunning        = errors.New("round is already running")
	ErrForbiddenOperation         = errors.New("operation not allowed for the current user")
	ErrValidationFailed           = errors.New("validation failed")
	ErrWinnerNotInMatch           = errors.New("winner is not a participant of this match")
	ErrOverrideAfterDownstreamRun = errors.New("cannot override winner: downstream match already started")

	// Orchestration failures. GameEngineUnavailable is retried inside the
	// match executor and only escalates as a blocked match; it is never
	// returned to an API caller directly.
	ErrGameEngineUnavailable = errors.New("game engine unavailable after retries")

	// Internal bug signal from the outcome resolver; fatal to one match.
	ErrResolverInvariant = errors.New("match outcome resolver invariant violated")
)
