package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/papertrader/internal/database"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failUp  error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(ctx context.Context, key string, body io.Reader) error {
	if m.failUp != nil {
		return m.failUp
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, SizeBytes: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func newFileDB(t *testing.T, dir, name string, profile database.DatabaseProfile) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { db.Close() })
	return db
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}
	return files
}

func TestCreateAndUploadBackup(t *testing.T) {
	dir := t.TempDir()
	ledger := newFileDB(t, dir, database.NameLedger, database.ProfileLedger)
	history := newFileDB(t, dir, database.NameHistory, database.ProfileStandard)

	store := newMemoryStore()
	svc := NewBackupService(store, dir, zerolog.Nop(), ledger, history, nil)
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC) }

	info, err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "papertrader-backup-2026-03-02-030000.tar.gz", info.Filename)
	require.Equal(t, []string{info.Filename}, store.keys())

	files := readArchive(t, store.objects[info.Filename])
	require.Contains(t, files, "ledger.db")
	require.Contains(t, files, "history.db")
	require.Contains(t, files, metadataFilename)

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFilename], &metadata))
	require.Len(t, metadata.Databases, 2)

	for _, dbMeta := range metadata.Databases {
		content := files[dbMeta.Filename]
		assert.Equal(t, int64(len(content)), dbMeta.SizeBytes)

		path := filepath.Join(t.TempDir(), dbMeta.Filename)
		require.NoError(t, writeFile(path, content))
		sum, err := fileChecksum(path)
		require.NoError(t, err)
		assert.Equal(t, dbMeta.Checksum, sum, dbMeta.Name)
	}

	staging, _ := filepath.Glob(filepath.Join(dir, "backup-staging-*"))
	assert.Empty(t, staging, "staging directory is removed")
}

func TestCreateAndUploadBackup_UploadFails(t *testing.T) {
	dir := t.TempDir()
	ledger := newFileDB(t, dir, database.NameLedger, database.ProfileLedger)

	store := newMemoryStore()
	store.failUp = errors.New("403")
	svc := NewBackupService(store, dir, zerolog.Nop(), ledger)

	_, err := svc.CreateAndUploadBackup(context.Background())
	assert.Error(t, err)
}

func TestRotateOldBackups(t *testing.T) {
	now := time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	for _, daysAgo := range []int{0, 1, 2, 40, 50, 10} {
		key := backupPrefix + now.AddDate(0, 0, -daysAgo).Format(backupTimeLayout) + backupSuffix
		store.objects[key] = []byte("x")
	}
	store.objects["unrelated.txt"] = []byte("y")

	svc := NewBackupService(store, t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return now }

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 6)
	assert.True(t, backups[0].Timestamp.Equal(now), "newest first")
	assert.Equal(t, int64(24), backups[1].AgeHours)

	deleted, err := svc.RotateOldBackups(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)
	assert.Len(t, store.keys(), 5)

	deleted, err = svc.RotateOldBackups(context.Background(), 0)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestRotateOldBackups_KeepsMinimum(t *testing.T) {
	now := time.Date(2026, 3, 30, 12, 0, 0, 0, time.UTC)
	store := newMemoryStore()
	for i := 0; i < 3; i++ {
		key := fmt.Sprintf("%s%s%s", backupPrefix, now.AddDate(-1, 0, -i).Format(backupTimeLayout), backupSuffix)
		store.objects[key] = []byte("x")
	}

	svc := NewBackupService(store, t.TempDir(), zerolog.Nop())
	svc.now = func() time.Time { return now }

	deleted, err := svc.RotateOldBackups(context.Background(), 7)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, store.keys(), 3)
}
