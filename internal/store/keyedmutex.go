package store

import "sync"

// KeyedMutex provides mutual exclusion per string key. It backs the
// at-most-one-in-flight-mutation-per-conversation guarantee: appends to the
// same conversation id serialize, appends to different conversations run in
// parallel. Entries are reference counted and removed when the last holder
// releases, so the map does not grow with the number of conversations ever
// touched.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Lock acquires the mutex for key, blocking until it is available.
func (km *KeyedMutex) Lock(key string) {
	km.mu.Lock()
	if km.locks == nil {
		km.locks = make(map[string]*keyLock)
	}
	kl, ok := km.locks[key]
	if !ok {
		kl = &keyLock{}
		km.locks[key] = kl
	}
	kl.refs++
	km.mu.Unlock()

	kl.mu.Lock()
}

// Unlock releases the mutex for key. Unlocking a key that is not held panics,
// matching sync.Mutex semantics.
func (km *KeyedMutex) Unlock(key string) {
	km.mu.Lock()
	kl, ok := km.locks[key]
	if !ok {
		km.mu.Unlock()
		panic("store: unlock of unlocked key " + key)
	}
	kl.refs--
	if kl.refs == 0 {
		delete(km.locks, key)
	}
	km.mu.Unlock()

	kl.mu.Unlock()
}
