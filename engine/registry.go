package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var ErrParticipantNotFound = errors.New("participant not found in registry")

// ParticipantInfo is the registry's view of a snake: who owns it, where it
// is hosted and whether other users may see it.
type ParticipantInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	OwnerUserID int    `json:"owner_user_id"`
	Public      bool   `json:"public"`
}

// Registry resolves snake ids against the battlesnake metadata store, which
// lives outside this service.
type Registry interface {
	ResolveParticipant(ctx context.Context, id int) (*ParticipantInfo, error)
}

type httpRegistry struct {
	baseURL string
	client  *http.Client
}

func NewHTTPRegistry(baseURL string, timeout time.Duration) Registry {
	return &httpRegistry{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *httpRegistry) ResolveParticipant(ctx context.Context, id int) (*ParticipantInfo, error) {
	url := fmt.Sprintf("%s/snakes/%d", r.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("registry lookup for participant %d failed: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrParticipantNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned status %d for participant %d", resp.StatusCode, id)
	}

	var info ParticipantInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode participant %d: %w", id, err)
	}
	return &info, nil
}
