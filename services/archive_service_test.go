package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snakearena/tournament-engine/models"
	"github.com/snakearena/tournament-engine/storage"
)

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string]string // key -> content type
	failKey string
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string]string)}
}

func (u *fakeUploader) Upload(ctx context.Context, key string, contentType string, reader io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if key == u.failKey {
		return nil, errors.New("bucket unavailable")
	}
	if _, err := io.ReadAll(reader); err != nil {
		return nil, err
	}
	u.uploads[key] = contentType
	return &storage.UploadResult{Key: key, Location: "https://replays.test/" + key}, nil
}

func (u *fakeUploader) Delete(ctx context.Context, key string) error { return nil }

func (u *fakeUploader) GetPublicURL(key string) string { return "https://replays.test/" + key }

func (u *fakeUploader) contentType(key string) (string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	ct, ok := u.uploads[key]
	return ct, ok
}

func (env *testEnv) finishTournament(ctx context.Context, t *testing.T) *models.Tournament {
	t.Helper()
	started, err := env.newStartedTournament(ctx, 2, models.StyleSingleGame)
	require.NoError(t, err)
	report, err := env.rounds.RunRound(ctx, started.ID, ownerUserID)
	require.NoError(t, err)
	require.True(t, report.TournamentCompleted)
	return started
}

func TestArchiveCompletedSweep(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first := env.finishTournament(ctx, t)
	second := env.finishTournament(ctx, t)

	uploader := newFakeUploader()
	archiver := NewArchiveService(env.tournamentRepo, env.brackets, uploader,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, archiver.ArchiveCompleted(ctx))

	for _, tournament := range []*models.Tournament{first, second} {
		key := fmt.Sprintf("archives/tournament_%d.json", tournament.ID)
		ct, ok := uploader.contentType(key)
		require.True(t, ok, "tournament %d was not exported", tournament.ID)
		assert.Equal(t, "application/json", ct)
	}

	pending, err := env.tournamentRepo.ListUnarchivedCompleted(ctx, archiveBatchSize)
	require.NoError(t, err)
	assert.Empty(t, pending, "archived tournaments must leave the sweep queue")
}

func TestArchiveKeepsGoingOnUploadFailure(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	first := env.finishTournament(ctx, t)
	second := env.finishTournament(ctx, t)

	uploader := newFakeUploader()
	uploader.failKey = fmt.Sprintf("archives/tournament_%d.json", first.ID)
	archiver := NewArchiveService(env.tournamentRepo, env.brackets, uploader,
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	// a failed upload is logged, not fatal; the rest of the batch proceeds
	require.NoError(t, archiver.ArchiveCompleted(ctx))

	_, ok := uploader.contentType(fmt.Sprintf("archives/tournament_%d.json", second.ID))
	assert.True(t, ok, "failure on one tournament must not stop the others")

	pending, err := env.tournamentRepo.ListUnarchivedCompleted(ctx, archiveBatchSize)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first.ID, pending[0].ID, "the failed one stays queued for retry")
}
