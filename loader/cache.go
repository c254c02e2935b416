package loader

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// LoaderCache remembers parsed headers by image digest.
type LoaderCache struct {
	mu sync.RWMutex

	cache *lru.ARCCache
}

func NewLoaderCache() *LoaderCache {
	cache, err := lru.NewARC(100)
	if err != nil {
		panic(err)
	}

	return &LoaderCache{cache: cache}
}

func (l *LoaderCache) Lookup(key string) (*Header, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	val, ok := l.cache.Get(key)
	if !ok {
		return nil, false
	}

	return val.(*Header), true
}

func (l *LoaderCache) Set(key string, hdr *Header) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache.Add(key, hdr)
}

func (l *LoaderCache) Len() int {
	return l.cache.Len()
}
