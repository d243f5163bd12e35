package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	held     bool
	err      error
	released int
}

func (f *fakeLocker) AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLocker) ReleaseLock(ctx context.Context, resource string) error {
	f.held = false
	f.released++
	return nil
}

func touch(t *testing.T, path string, dir bool, age time.Duration) {
	t.Helper()
	if dir {
		require.NoError(t, os.MkdirAll(path, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(path, "input.mp4"), []byte("x"), 0o644))
	} else {
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}
	mod := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestRunCleanupRemovesStaleEntries(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "smashers-trim-old"), true, 3*time.Hour)
	touch(t, filepath.Join(dir, "smashers-clip-old.mp4"), false, 3*time.Hour)
	touch(t, filepath.Join(dir, "smashers-trim-fresh"), true, time.Minute)
	touch(t, filepath.Join(dir, "unrelated-old"), true, 3*time.Hour)

	locker := &fakeLocker{}
	s := New(Config{TempDir: dir, MaxAge: time.Hour}, locker, nil)

	removed, err := s.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, locker.released)

	left, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range left {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"smashers-trim-fresh", "unrelated-old"}, names)
}

func TestRunCleanupSkipsWhenLocked(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "smashers-trim-old"), true, 3*time.Hour)

	s := New(Config{TempDir: dir, MaxAge: time.Hour}, &fakeLocker{held: true}, nil)
	removed, err := s.RunCleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = os.Stat(filepath.Join(dir, "smashers-trim-old"))
	assert.NoError(t, err)
}

func TestRunCleanupLockError(t *testing.T) {
	s := New(Config{TempDir: t.TempDir()}, &fakeLocker{err: errors.New("redis down")}, nil)
	_, err := s.RunCleanup(context.Background())
	assert.Error(t, err)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(Config{Schedule: "not a schedule", TempDir: t.TempDir()}, nil, nil)
	err := s.Start(context.Background())
	assert.Error(t, err)
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(Config{TempDir: t.TempDir()}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
