package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// KeyedMutex serialises signer use per account so that at most one signing or
// transaction request is outstanding against a wallet at a time.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[common.Address]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewKeyedMutex constructs an empty KeyedMutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[common.Address]*slot)}
}

// Lock blocks until the account slot is free or ctx is done. The returned
// function releases the slot.
func (k *KeyedMutex) Lock(ctx context.Context, address common.Address) (func(), error) {
	k.mu.Lock()
	s, ok := k.slots[address]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		k.slots[address] = s
	}
	s.refs++
	k.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		k.drop(address, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			k.drop(address, s)
		})
	}, nil
}

func (k *KeyedMutex) drop(address common.Address, s *slot) {
	k.mu.Lock()
	defer k.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(k.slots, address)
	}
}
