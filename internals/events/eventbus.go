package events

import (
	"sync"

	"wsb.com/wledger/internals/helpers"
)

const (
	blockBuffer = 16
	txBuffer    = 64
)

// EventBus fans sealed blocks and submitted transactions out to
// subscribers. A full subscriber channel drops the event.
type EventBus struct {
	mu        sync.RWMutex
	blockSubs []chan helpers.Block
	txSubs    []chan helpers.Transaction
}

func NewEventBus() *EventBus {
	return &EventBus{
		blockSubs: make([]chan helpers.Block, 0),
		txSubs:    make([]chan helpers.Transaction, 0),
	}
}

func (b *EventBus) SubscribeBlocks() <-chan helpers.Block {
	ch := make(chan helpers.Block, blockBuffer)

	b.mu.Lock()
	b.blockSubs = append(b.blockSubs, ch)
	b.mu.Unlock()

	return ch
}

// PublishBlock sends each subscriber its own copy of block.
func (b *EventBus) PublishBlock(block helpers.Block) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.blockSubs {
		select {
		case ch <- block.Clone():
		default:
		}
	}
}

func (b *EventBus) SubscribeTxs() <-chan helpers.Transaction {
	ch := make(chan helpers.Transaction, txBuffer)

	b.mu.Lock()
	b.txSubs = append(b.txSubs, ch)
	b.mu.Unlock()

	return ch
}

func (b *EventBus) PublishTx(tx helpers.Transaction) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.txSubs {
		select {
		case ch <- tx:
		default:
		}
	}
}

// Close closes every subscriber channel. Publishing after Close is a no-op.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.blockSubs {
		close(ch)
	}
	for _, ch := range b.txSubs {
		close(ch)
	}
	b.blockSubs = nil
	b.txSubs = nil
}
