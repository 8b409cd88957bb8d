package store

import (
	"hash/fnv"
	"sync"
)

// KeyLock serializes work per key using a fixed set of striped mutexes.
// Two keys may share a stripe; a key never maps to two stripes.
type KeyLock struct {
	stripes []sync.Mutex
}

func NewKeyLock(stripes int) *KeyLock {
	if stripes <= 0 {
		stripes = 256
	}
	return &KeyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock blocks until key's stripe is held and returns its unlock func.
func (k *KeyLock) Lock(key string) func() {
	h := fnv.New32a()
	h.Write([]byte(key))
	mu := &k.stripes[h.Sum32()%uint32(len(k.stripes))]
	mu.Lock()
	return mu.Unlock
}

func conversationKey(tenantID, contactPhone string) string {
	return tenantID + "|" + contactPhone
}
