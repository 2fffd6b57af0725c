package store

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"github.com/chazu/bcsnap/snapshot"
)

// DefaultCacheSize is the number of decoded images an ImageCache keeps.
const DefaultCacheSize = 64

// ImageCache opens snapshots from a Store and keeps the decoded images so
// that repeated restores of the same snapshot share one read-only image.
type ImageCache struct {
	src    Store
	engine snapshot.Engine
	cache  *lru.Cache
}

// NewImageCache wraps src. Images are validated against eng when first
// loaded.
func NewImageCache(src Store, eng snapshot.Engine, size int) (*ImageCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("store: creating cache: %w", err)
	}
	return &ImageCache{src: src, engine: eng, cache: c}, nil
}

// Image returns the decoded image for h, loading it on a miss.
func (c *ImageCache) Image(ctx context.Context, h Hash) (*snapshot.Image, error) {
	if v, ok := c.cache.Get(h); ok {
		return v.(*snapshot.Image), nil
	}
	data, err := c.src.Get(ctx, h)
	if err != nil {
		return nil, err
	}
	img, err := snapshot.Open(data, c.engine)
	if err != nil {
		return nil, fmt.Errorf("store: snapshot %s: %w", FormatHash(h), err)
	}
	c.cache.Add(h, img)
	log.Debugf("cached image %s (%d bytes)", FormatHash(h)[:16], len(img.Bytes()))
	return img, nil
}

// Len returns the number of cached images.
func (c *ImageCache) Len() int { return c.cache.Len() }

// Purge drops every cached image.
func (c *ImageCache) Purge() { c.cache.Purge() }
