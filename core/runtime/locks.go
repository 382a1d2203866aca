package runtime

import (
	"bytes"
	"sort"
	"sync"

	"github.com/gagliardetto/solana-go"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedLocks serialises operations that touch a common account. Keys are
// always acquired in ascending byte order so overlapping sets cannot
// deadlock.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[solana.PublicKey]*keyLock
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[solana.PublicKey]*keyLock)}
}

func sortedUnique(keys []solana.PublicKey) []solana.PublicKey {
	out := make([]solana.PublicKey, 0, len(keys))
	seen := make(map[solana.PublicKey]struct{}, len(keys))
	for _, key := range keys {
		if key.IsZero() {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// acquire locks every key and returns the matching release function.
func (k *keyedLocks) acquire(keys ...solana.PublicKey) func() {
	ordered := sortedUnique(keys)
	held := make([]*keyLock, 0, len(ordered))
	for _, key := range ordered {
		k.mu.Lock()
		lock, ok := k.locks[key]
		if !ok {
			lock = &keyLock{}
			k.locks[key] = lock
		}
		lock.refs++
		k.mu.Unlock()

		lock.mu.Lock()
		held = append(held, lock)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
		}
		k.mu.Lock()
		for i, key := range ordered {
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, key)
			}
		}
		k.mu.Unlock()
	}
}

// size reports the number of keys currently tracked.
func (k *keyedLocks) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
