// Package avatars caches profile avatar references in a local kvstore so
// repeated lookups do not hit the backend.
package avatars

import (
	"context"
	"time"

	"github.com/sigweb/signal-web/kvstore"
	"github.com/sirupsen/logrus"
)

const (
	// Database and Store name the kvstore holding cached avatars.
	Database = "signal-web"
	Store    = "avatars"
	// SchemaVersion is bumped whenever Entry changes incompatibly; opening
	// a newer version drops the old cache.
	SchemaVersion = 1
)

// Fetcher looks avatars up on the backend. *rpcclient.Client implements it.
type Fetcher interface {
	GetAvatar(ctx context.Context, profileID string) (string, error)
	IsPlaceholder(ref string) bool
}

// Entry is the cached value for one profile.
type Entry struct {
	Ref       string `cbor:"1,keyasint"`
	FetchedAt int64  `cbor:"2,keyasint"`
}

// Cache returns avatar references, from the store when possible. A failing
// store never fails a lookup: the cache is skipped and the backend asked.
type Cache struct {
	fetcher Fetcher
	store   *kvstore.Store[Entry]
	log     *logrus.Entry
	// TTL bounds the age of cached entries; zero keeps them forever.
	TTL time.Duration
	now func() time.Time
}

// OpenStore returns the avatar store under dir. The store is opened lazily
// by its first operation. An empty compression selects the store default.
func OpenStore(dir string, compression kvstore.Compression, logger *logrus.Entry, onVersionChange func(kvstore.VersionChangeEvent)) (*kvstore.Store[Entry], error) {
	return kvstore.New[Entry](kvstore.Options{
		Dir:             dir,
		Database:        Database,
		Store:           Store,
		Version:         SchemaVersion,
		Compression:     compression,
		Logger:          logger,
		OnVersionChange: onVersionChange,
	})
}

func New(fetcher Fetcher, store *kvstore.Store[Entry], logger *logrus.Entry) *Cache {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Cache{
		fetcher: fetcher,
		store:   store,
		log:     logger.WithField("component", "avatars"),
		now:     time.Now,
	}
}

// Get returns the avatar reference of a profile. Placeholders are returned
// but not cached, so a profile that gains an avatar shows it on the next
// lookup.
func (c *Cache) Get(ctx context.Context, profileID string) (string, error) {
	if c.store != nil {
		entry, found, err := c.store.GetItem(ctx, profileID)
		switch {
		case err != nil:
			c.log.WithError(err).WithField("profile", profileID).Warn("avatar cache unavailable, asking backend")
		case found && !c.expired(entry):
			return entry.Ref, nil
		}
	}

	ref, err := c.fetcher.GetAvatar(ctx, profileID)
	if err != nil {
		return "", err
	}
	if c.store != nil && !c.fetcher.IsPlaceholder(ref) {
		entry := Entry{Ref: ref, FetchedAt: c.now().Unix()}
		if err := c.store.SetItem(ctx, profileID, entry); err != nil {
			c.log.WithError(err).WithField("profile", profileID).Warn("could not cache avatar")
		}
	}
	return ref, nil
}

func (c *Cache) expired(e Entry) bool {
	if c.TTL <= 0 {
		return false
	}
	return c.now().Sub(time.Unix(e.FetchedAt, 0)) > c.TTL
}

// Forget drops the cached avatar of a profile.
func (c *Cache) Forget(ctx context.Context, profileID string) error {
	if c.store == nil {
		return nil
	}
	return c.store.RemoveItem(ctx, profileID)
}

// Profiles lists the profiles with a cached avatar, in order.
func (c *Cache) Profiles(ctx context.Context) ([]string, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.GetAllKeys(ctx)
}

// Clear empties the cache.
func (c *Cache) Clear(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	return c.store.Clear(ctx)
}

func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}
