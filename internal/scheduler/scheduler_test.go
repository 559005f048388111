package scheduler

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string { return j.name }

func (j *countingJob) Run() error {
	atomic.AddInt32(&j.runs, 1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(zerolog.Nop())

	require.NoError(t, s.AddJob("@hourly", &countingJob{name: "a"}))
	require.NoError(t, s.AddJob("0 */5 * * * *", &countingJob{name: "b"}))
	assert.ElementsMatch(t, []string{"a", "b"}, s.JobNames())

	err := s.AddJob("not a schedule", &countingJob{name: "c"})
	assert.Error(t, err)
	assert.NotContains(t, s.JobNames(), "c")
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(zerolog.Nop())
	ok := &countingJob{name: "ok"}
	failing := &countingJob{name: "failing", err: errors.New("boom")}
	require.NoError(t, s.AddJob("@daily", ok))
	require.NoError(t, s.AddJob("@daily", failing))

	assert.NoError(t, s.RunNow("ok"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&ok.runs))

	assert.EqualError(t, s.RunNow("failing"), "boom")
	assert.Error(t, s.RunNow("missing"))
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(zerolog.Nop())
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob("@daily", job))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.RunNow("slow")
	}()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) == 1 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, s.RunNow("slow"))
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.runs))

	close(job.block)
	wg.Wait()
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(zerolog.Nop())
	require.NoError(t, s.AddJob("@every 1h", &countingJob{name: "idle"}))

	s.Start()
	s.Stop()
}

func newFileDB(t *testing.T, name string) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func TestWALCheckpointJob(t *testing.T) {
	history := newFileDB(t, database.NameHistory)

	job := NewWALCheckpointJob(zerolog.Nop(), history, nil)
	assert.Equal(t, "wal_checkpoint", job.Name())
	assert.NoError(t, job.Run())
}

func TestWALCheckpointJob_NoDatabases(t *testing.T) {
	job := NewWALCheckpointJob(zerolog.Nop(), nil, nil)
	assert.NoError(t, job.Run()) // Should handle nil databases gracefully
}

func TestIntegrityCheckJob(t *testing.T) {
	ledger := newFileDB(t, database.NameLedger)

	job := NewIntegrityCheckJob(zerolog.Nop(), ledger, nil)
	assert.Equal(t, "integrity_check", job.Name())
	assert.NoError(t, job.Run())
}
