package txscript

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/kaspanet/go-secp256k1"
	"github.com/pkg/errors"
)

const (
	// sigCacheEntrySize is the size of a cache key: the signature hash,
	// the signature and the public key.
	sigCacheEntrySize = 32 + 64 + 32

	sigCacheShards = 64

	// sigCacheLifeWindow is long enough that entries are only ever
	// evicted for space.
	sigCacheLifeWindow = 24 * time.Hour
)

var sigCacheValid = []byte{1}

// SigCache remembers signature triples (sighash, signature, public key)
// that already passed verification, so that a signature seen once, for
// example while validating the block's transactions on another branch, is
// not verified again. Only valid signatures are stored.
//
// A SigCache is safe for concurrent access.
type SigCache struct {
	cache *bigcache.BigCache
}

// NewSigCache creates a signature cache holding about maxEntries entries.
func NewSigCache(maxEntries uint) (*SigCache, error) {
	config := bigcache.DefaultConfig(sigCacheLifeWindow)
	config.Shards = sigCacheShards
	config.MaxEntriesInWindow = int(maxEntries)
	config.MaxEntrySize = sigCacheEntrySize
	config.CleanWindow = 0
	config.Verbose = false
	config.HardMaxCacheSize = int((uint64(maxEntries)*2*sigCacheEntrySize)>>20) + 1

	cache, err := bigcache.New(context.Background(), config)
	if err != nil {
		return nil, errors.Wrap(err, "failed creating the signature cache")
	}
	return &SigCache{cache: cache}, nil
}

func sigCacheKey(sigHash *secp256k1.Hash, signature *secp256k1.SchnorrSignature,
	pubKey *secp256k1.SchnorrPublicKey) (string, bool) {

	serializedPubKey, err := pubKey.Serialize()
	if err != nil {
		return "", false
	}
	key := make([]byte, 0, sigCacheEntrySize)
	key = append(key, sigHash[:]...)
	key = append(key, signature.Serialize()[:]...)
	key = append(key, serializedPubKey[:]...)
	return string(key), true
}

// Exists returns whether the triple was added to the cache.
func (s *SigCache) Exists(sigHash secp256k1.Hash, signature *secp256k1.SchnorrSignature,
	pubKey *secp256k1.SchnorrPublicKey) bool {

	key, ok := sigCacheKey(&sigHash, signature, pubKey)
	if !ok {
		return false
	}
	_, err := s.cache.Get(key)
	return err == nil
}

// Add records a triple whose signature was verified.
func (s *SigCache) Add(sigHash secp256k1.Hash, signature *secp256k1.SchnorrSignature,
	pubKey *secp256k1.SchnorrPublicKey) {

	key, ok := sigCacheKey(&sigHash, signature, pubKey)
	if !ok {
		return
	}
	err := s.cache.Set(key, sigCacheValid)
	if err != nil {
		log.Debugf("Failed caching a verified signature: %s", err)
	}
}

// Len returns the number of cached signatures.
func (s *SigCache) Len() int {
	return s.cache.Len()
}

// Close releases the cache.
func (s *SigCache) Close() error {
	return s.cache.Close()
}
