// Package miner hosts a chain for concurrent callers. Every chain call goes
// through one mutex, and blocks are mined on an interval in the background.
package miner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"wsb.com/wledger/internals/chain"
	"wsb.com/wledger/internals/events"
	"wsb.com/wledger/internals/helpers"
)

type Worker struct {
	mu    sync.Mutex
	chain *chain.Chain

	bus       *events.EventBus
	log       *logrus.Entry
	interval  time.Duration
	maxBlocks int

	// cmu guards cancel only, so Stop never waits behind a search.
	cmu       sync.Mutex
	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWorker mines a block every interval once started. maxBlocks of zero
// mines until the worker is stopped.
func NewWorker(c *chain.Chain, bus *events.EventBus, log *logrus.Entry, interval time.Duration, maxBlocks int) *Worker {
	return &Worker{
		chain:     c,
		bus:       bus,
		log:       log,
		interval:  interval,
		maxBlocks: maxBlocks,
		cancel:    func() {},
		done:      make(chan struct{}),
	}
}

func (w *Worker) Submit(sender, receiver string, amount float64) error {
	w.mu.Lock()
	err := w.chain.SubmitTransaction(sender, receiver, amount)
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if w.bus != nil {
		w.bus.PublishTx(helpers.Transaction{Sender: sender, Receiver: receiver, Amount: amount})
	}
	return nil
}

// MineNow mines one block immediately, holding the chain for the search.
func (w *Worker) MineNow(ctx context.Context) (helpers.Block, error) {
	w.mu.Lock()
	block, err := w.chain.MineBlockContext(ctx)
	w.mu.Unlock()
	if err != nil {
		return helpers.Block{}, err
	}

	if w.bus != nil {
		w.bus.PublishBlock(block)
	}
	return block, nil
}

func (w *Worker) SetDifficulty(difficulty uint32) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain.UpdateDifficulty(difficulty)
}

func (w *Worker) SetReward(reward float64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain.UpdateReward(reward)
}

func (w *Worker) Snapshot() []helpers.Block {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain.Blocks()
}

func (w *Worker) Verify() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.chain.Verify()
}

// Start runs the mining loop until ctx is done, Stop is called or maxBlocks
// blocks have been mined. Calls after the first are ignored.
func (w *Worker) Start(ctx context.Context) {
	w.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		w.cmu.Lock()
		w.cancel = cancel
		w.cmu.Unlock()

		w.log.WithField("interval", w.interval).Info("starting miner")
		go w.loop(ctx)
	})
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	mined := 0
	for {
		select {
		case <-ticker.C:
			block, err := w.MineNow(ctx)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return
			}
			if err != nil {
				w.log.WithError(err).Error("mining failed")
				continue
			}
			mined++
			w.log.WithFields(logrus.Fields{
				"nonce":        block.Header.Nonce,
				"transactions": block.Count,
				"mined":        mined,
			}).Debug("worker sealed block")
			if w.maxBlocks > 0 && mined >= w.maxBlocks {
				w.log.WithField("mined", mined).Info("block target reached")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels an in-flight search and waits for the loop to exit.
func (w *Worker) Stop() {
	// a worker that never started has no loop to close done
	w.startOnce.Do(func() { close(w.done) })
	w.stopOnce.Do(func() {
		w.log.Info("stopping miner")
		w.cmu.Lock()
		cancel := w.cancel
		w.cmu.Unlock()
		cancel()
	})
	<-w.done
}

// Done is closed once the mining loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
