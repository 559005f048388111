package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/aristath/papertrader/internal/identity"
	"github.com/aristath/papertrader/internal/modules/snapshots"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	result *snapshots.BackfillResult
	err    error
	users  []string
}

func (f *fakeEngine) RunBackfill(ctx context.Context, userID string) (*snapshots.BackfillResult, error) {
	f.users = append(f.users, userID)
	return f.result, f.err
}

type fakeStore struct {
	snaps []domain.Snapshot
}

func (f *fakeStore) Latest(ctx context.Context, userID string) (*domain.Snapshot, error) {
	if len(f.snaps) == 0 {
		return nil, nil
	}
	s := f.snaps[len(f.snaps)-1]
	return &s, nil
}

func (f *fakeStore) ListSince(ctx context.Context, userID string, since time.Time) ([]domain.Snapshot, error) {
	return f.snaps, nil
}

func serve(engine Engine, store Store, method, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.Use(identity.RequireUser(nil))
	NewHandler(engine, store, zerolog.Nop()).RegisterRoutes(r)

	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(identity.HeaderUserID, "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleBackfill(t *testing.T) {
	engine := &fakeEngine{result: &snapshots.BackfillResult{Created: 3, Skipped: 65}}

	w := serve(engine, &fakeStore{}, http.MethodPost, "/snapshots/backfill")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1"}, engine.users)

	var response struct {
		Data snapshots.BackfillResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 3, response.Data.Created)
}

// deadlineEngine writes hours until its context expires
type deadlineEngine struct{}

func (deadlineEngine) RunBackfill(ctx context.Context, userID string) (*snapshots.BackfillResult, error) {
	<-ctx.Done()
	return &snapshots.BackfillResult{Created: 22, Interrupted: true}, nil
}

func TestHandleBackfill_BudgetReturnsPartialProgress(t *testing.T) {
	h := NewHandler(deadlineEngine{}, &fakeStore{}, zerolog.Nop())
	h.budget = 20 * time.Millisecond

	r := chi.NewRouter()
	r.Use(identity.RequireUser(nil))
	h.RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/snapshots/backfill", nil)
	req.Header.Set(identity.HeaderUserID, "user-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Data snapshots.BackfillResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, 22, response.Data.Created)
	assert.True(t, response.Data.Interrupted)
}

func TestHandleBackfill_CalendarUnavailable(t *testing.T) {
	w := serve(&fakeEngine{err: domain.ErrCalendarUnavailable}, &fakeStore{}, http.MethodPost, "/snapshots/backfill")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleGetLatest(t *testing.T) {
	w := serve(&fakeEngine{}, &fakeStore{}, http.MethodGet, "/snapshots/latest")
	assert.Equal(t, http.StatusNotFound, w.Code)

	store := &fakeStore{snaps: []domain.Snapshot{{UserID: "user-1", EOHValue: decimal.NewFromInt(1000), Timestamp: time.Now()}}}
	w = serve(&fakeEngine{}, store, http.MethodGet, "/snapshots/latest")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleListSnapshots_BadSince(t *testing.T) {
	w := serve(&fakeEngine{}, &fakeStore{}, http.MethodGet, "/snapshots/?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
