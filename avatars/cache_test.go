package avatars

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/sigweb/signal-web/internal/mockrpc"
	"github.com/sigweb/signal-web/kvstore"
	"github.com/sigweb/signal-web/rpcclient"
	"github.com/sirupsen/logrus"
	nullLog "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const placeholder = "placeholder.png"

type fakeFetcher struct {
	avatars map[string]string
	calls   int
	err     error
}

func (f *fakeFetcher) GetAvatar(_ context.Context, profileID string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	if ref, ok := f.avatars[profileID]; ok {
		return ref, nil
	}
	return placeholder, nil
}

func (f *fakeFetcher) IsPlaceholder(ref string) bool { return ref == placeholder }

func newCache(t *testing.T, dir string, f Fetcher) (*Cache, *nullLog.Hook) {
	t.Helper()
	logger, hook := nullLog.NewNullLogger()
	entry := logrus.NewEntry(logger)
	store, err := OpenStore(dir, "", entry, nil)
	require.NoError(t, err)
	c := New(f, store, entry)
	t.Cleanup(func() { _ = c.Close() })
	return c, hook
}

func TestGetCachesAvatars(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	f := &fakeFetcher{avatars: map[string]string{"+1555": "data:image/png;base64,aGk="}}
	c, _ := newCache(t, dir, f)
	ctx := context.Background()

	for range 3 {
		ref, err := c.Get(ctx, "+1555")
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,aGk=", ref)
	}
	assert.Equal(t, 1, f.calls)

	profiles, err := c.Profiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"+1555"}, profiles)

	require.NoError(t, c.Forget(ctx, "+1555"))
	_, err = c.Get(ctx, "+1555")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestLargeAvatarsAreCompressed(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	ctx := context.Background()
	ref := "data:image/png;base64," + strings.Repeat("iVBORw0KGgo", 1000)

	for _, compression := range []kvstore.Compression{kvstore.CompressionLZ4, kvstore.CompressionZstd} {
		logger, _ := nullLog.NewNullLogger()
		entry := logrus.NewEntry(logger)
		store, err := OpenStore(filepath.Join(dir, string(compression)), compression, entry, nil)
		require.NoError(t, err)
		f := &fakeFetcher{avatars: map[string]string{"+1555": ref}}
		c := New(f, store, entry)

		for range 2 {
			got, err := c.Get(ctx, "+1555")
			require.NoError(t, err)
			assert.Equal(t, ref, got)
		}
		assert.Equal(t, 1, f.calls, "second lookup is served from the %s store", compression)
		require.NoError(t, c.Close())
	}
}

func TestPlaceholdersAreNotCached(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	f := &fakeFetcher{avatars: map[string]string{}}
	c, _ := newCache(t, dir, f)
	ctx := context.Background()

	for range 2 {
		ref, err := c.Get(ctx, "+1777")
		require.NoError(t, err)
		assert.Equal(t, placeholder, ref)
	}
	assert.Equal(t, 2, f.calls)
	profiles, err := c.Profiles(ctx)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestExpiredEntriesAreRefetched(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	f := &fakeFetcher{avatars: map[string]string{"p": "ref"}}
	c, _ := newCache(t, dir, f)
	c.TTL = time.Hour
	now := time.Unix(1700000000, 0)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := c.Get(ctx, "p")
	require.NoError(t, err)
	now = now.Add(30 * time.Minute)
	_, err = c.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 1, f.calls)

	now = now.Add(time.Hour)
	_, err = c.Get(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, 2, f.calls)
}

func TestBrokenCacheFallsBackToBackend(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	// a regular file where the cache directory should be
	notADir := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(notADir, []byte("x"), 0o600))

	f := &fakeFetcher{avatars: map[string]string{"p": "ref"}}
	c, hook := newCache(t, notADir, f)
	ref, err := c.Get(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ref", ref)
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, logrus.WarnLevel, hook.AllEntries()[0].Level)
}

func TestBackendErrorIsReturned(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	f := &fakeFetcher{err: errors.New("connection refused")}
	c, _ := newCache(t, dir, f)
	_, err := c.Get(context.Background(), "p")
	assert.EqualError(t, err, "connection refused")
}

func TestWithoutStore(t *testing.T) {
	f := &fakeFetcher{avatars: map[string]string{"p": "ref"}}
	c := New(f, nil, nil)
	ref, err := c.Get(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ref", ref)
	assert.NoError(t, c.Clear(context.Background()))
	assert.NoError(t, c.Close())
}

func TestCacheInFrontOfClient(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	backend := mockrpc.NewBackend()
	backend.Avatars["+1555"] = "aGk="
	srv := mockrpc.NewServer(t, mockrpc.NewProvider(backend))
	logger, _ := nullLog.NewNullLogger()
	client := rpcclient.NewUpstream(srv.URL, rpcclient.WithLogger(logrus.NewEntry(logger)))

	c, _ := newCache(t, dir, client)
	ctx := context.Background()
	for range 2 {
		ref, err := c.Get(ctx, "+1555")
		require.NoError(t, err)
		assert.Equal(t, "data:image/png;base64,aGk=", ref)
	}
	assert.Equal(t, []string{"getAvatar"}, backend.Received())

	ref, err := c.Get(ctx, "+1999")
	require.NoError(t, err)
	assert.Equal(t, rpcclient.DefaultAvatarPlaceholder, ref)
}

func TestCacheUpgradeEvictsOldHandle(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	invalidated := make(chan kvstore.VersionChangeEvent, 1)
	logger, _ := nullLog.NewNullLogger()
	store, err := OpenStore(dir, kvstore.CompressionNone, logrus.NewEntry(logger), func(ev kvstore.VersionChangeEvent) { invalidated <- ev })
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Init(context.Background()))

	newer, err := kvstore.New[Entry](kvstore.Options{Dir: dir, Database: Database, Store: Store, Version: SchemaVersion + 1, Logger: logrus.NewEntry(logger)})
	require.NoError(t, err)
	defer newer.Close()
	require.NoError(t, newer.Init(context.Background()))

	ev := <-invalidated
	assert.Equal(t, SchemaVersion+1, ev.NewVersion)
}
