package transactions

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type UnlockNonceFunc func(inc bool, n uint64)

// Nonce serializes nonce allocation per account and remembers the last nonce
// used locally, so concurrent submissions from one account do not collide
// before the node reflects them in its pending state.
type Nonce struct {
	addrLocks sync.Map // common.Address -> *sync.Mutex

	mu         sync.Mutex
	localNonce map[uint64]map[common.Address]uint64
}

func NewNonce() *Nonce {
	return &Nonce{
		localNonce: make(map[uint64]map[common.Address]uint64),
	}
}

func (n *Nonce) lock(from common.Address) *sync.Mutex {
	l, _ := n.addrLocks.LoadOrStore(from, &sync.Mutex{})
	mu := l.(*sync.Mutex)
	mu.Lock()
	return mu
}

// Hold locks the account without looking up a nonce, for callers that
// already know which nonce they send with. The returned unlock must be
// called once; inc records n as used.
func (n *Nonce) Hold(chainID uint64, from common.Address) UnlockNonceFunc {
	addrLock := n.lock(from)
	return func(inc bool, nonce uint64) {
		if inc {
			n.mu.Lock()
			if _, ok := n.localNonce[chainID]; !ok {
				n.localNonce[chainID] = make(map[common.Address]uint64)
			}
			if nonce+1 > n.localNonce[chainID][from] {
				n.localNonce[chainID][from] = nonce + 1
			}
			n.mu.Unlock()
		}
		addrLock.Unlock()
	}
}

// Next locks the account and returns the nonce to use, with the same unlock
// contract as Hold.
func (n *Nonce) Next(ctx context.Context, provider Provider, chainID uint64, from common.Address) (uint64, UnlockNonceFunc, error) {
	unlock := n.Hold(chainID, from)
	current, err := n.GetCurrent(ctx, provider, chainID, from)
	if err != nil {
		unlock(false, 0)
		return 0, nil, err
	}
	return current, unlock, nil
}

func (n *Nonce) GetCurrent(ctx context.Context, provider Provider, chainID uint64, from common.Address) (uint64, error) {
	n.mu.Lock()
	localNonce := n.localNonce[chainID][from]
	n.mu.Unlock()

	remoteNonce, err := provider.PendingNonceAt(ctx, from)
	if err != nil {
		return 0, err
	}

	// if upstream node returned nonce higher than ours we will use it, as it probably means
	// that another client was used for sending transactions
	if remoteNonce > localNonce {
		return remoteNonce, nil
	}
	return localNonce, nil
}
