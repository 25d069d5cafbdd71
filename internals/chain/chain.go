// Package chain holds the append-only ledger: the pending pool, the sealed
// blocks and the mining parameters applied to the next block.
//
// A Chain has no internal locking. Callers that share one across goroutines
// must serialize every call, see the miner package.
package chain

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"wsb.com/wledger/internals/helpers"
	"wsb.com/wledger/internals/pow"
)

const (
	// RootSender pays the block reward.
	RootSender    = "Root"
	DefaultReward = 100.0
)

var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidAmount     = errors.New("invalid amount")
)

type Chain struct {
	blocks       []*helpers.Block
	pending      []*helpers.Transaction
	difficulty   uint32
	minerAddress string
	reward       float64

	log *logrus.Entry
	now func() time.Time
}

type Option func(*Chain)

func WithLogger(log *logrus.Entry) Option {
	return func(c *Chain) { c.log = log }
}

// WithClock replaces time.Now for header timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

func WithReward(reward float64) Option {
	return func(c *Chain) { c.reward = reward }
}

func discardLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// New creates a chain and mines its genesis block before returning.
func New(minerAddress string, difficulty uint32, opts ...Option) (*Chain, error) {
	if err := checkDifficulty(difficulty); err != nil {
		return nil, err
	}
	c := &Chain{
		blocks:       make([]*helpers.Block, 0),
		pending:      make([]*helpers.Transaction, 0),
		difficulty:   difficulty,
		minerAddress: minerAddress,
		reward:       DefaultReward,
		log:          discardLogger(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := checkAmount(c.reward); err != nil {
		return nil, err
	}

	if _, err := c.MineBlock(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}
	return c, nil
}

func checkDifficulty(difficulty uint32) error {
	if err := pow.CheckDifficulty(difficulty); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDifficulty, err)
	}
	return nil
}

// NaN and infinities have no canonical encoding and could never be hashed.
func checkAmount(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

// SubmitTransaction queues a transfer for the next block. No balance or
// signature checks are made.
func (c *Chain) SubmitTransaction(sender, receiver string, amount float64) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	c.pending = append(c.pending, &helpers.Transaction{
		Sender:   sender,
		Receiver: receiver,
		Amount:   amount,
	})
	c.log.WithFields(logrus.Fields{
		"sender":   sender,
		"receiver": receiver,
		"amount":   amount,
		"pending":  len(c.pending),
	}).Debug("transaction submitted")
	return nil
}

// LastHash is the digest of the newest header, or ZeroHash on an empty chain.
func (c *Chain) LastHash() string {
	if len(c.blocks) == 0 {
		return helpers.ZeroHash
	}
	return helpers.HashHeader(&c.blocks[len(c.blocks)-1].Header)
}

// MineBlock seals the pending pool into a new block. It blocks for the whole
// nonce search.
func (c *Chain) MineBlock() (helpers.Block, error) {
	return c.MineBlockContext(context.Background())
}

// MineBlockContext is MineBlock with a cancellable search. A cancelled search
// appends nothing and leaves the pending pool as it was.
func (c *Chain) MineBlockContext(ctx context.Context) (helpers.Block, error) {
	block := &helpers.Block{
		Header: helpers.Header{
			Timestamp:    c.now().Unix(),
			Nonce:        0,
			PreviousHash: c.LastHash(),
			Difficulty:   c.difficulty,
		},
	}

	reward := &helpers.Transaction{
		Sender:   RootSender,
		Receiver: c.minerAddress,
		Amount:   c.reward,
	}
	block.Transactions = make([]*helpers.Transaction, 0, len(c.pending)+1)
	block.Transactions = append(block.Transactions, reward)
	block.Transactions = append(block.Transactions, c.pending...)
	block.Count = uint32(len(block.Transactions))

	merkle, err := helpers.GenerateMerkleRoot(block.Transactions)
	if err != nil {
		return helpers.Block{}, fmt.Errorf("merkle root: %w", err)
	}
	block.Header.MerkleHash = merkle

	res, err := pow.SearchContext(ctx, &block.Header)
	if err != nil {
		return helpers.Block{}, fmt.Errorf("proof of work: %w", err)
	}

	c.blocks = append(c.blocks, block)
	c.pending = make([]*helpers.Transaction, 0)

	c.log.WithFields(logrus.Fields{
		"height":       len(c.blocks) - 1,
		"hash":         res.Hash,
		"nonce":        block.Header.Nonce,
		"difficulty":   block.Header.Difficulty,
		"transactions": block.Count,
		"attempts":     res.Attempts,
		"hashrate":     helpers.FormatHashrate(res.Attempts, res.Elapsed),
	}).Info("block mined")

	return block.Clone(), nil
}

// UpdateDifficulty applies to blocks mined after the call.
func (c *Chain) UpdateDifficulty(difficulty uint32) error {
	if err := checkDifficulty(difficulty); err != nil {
		return err
	}
	c.difficulty = difficulty
	c.log.WithField("difficulty", difficulty).Info("difficulty updated")
	return nil
}

// UpdateReward applies to blocks mined after the call.
func (c *Chain) UpdateReward(reward float64) error {
	if err := checkAmount(reward); err != nil {
		return err
	}
	c.reward = reward
	c.log.WithField("reward", reward).Info("reward updated")
	return nil
}

// Blocks returns a deep copy of the sealed history, genesis first.
func (c *Chain) Blocks() []helpers.Block {
	out := make([]helpers.Block, len(c.blocks))
	for i, b := range c.blocks {
		out[i] = b.Clone()
	}
	return out
}

// Height is the number of sealed blocks, genesis included.
func (c *Chain) Height() int { return len(c.blocks) }

func (c *Chain) PendingCount() int { return len(c.pending) }

func (c *Chain) Difficulty() uint32 { return c.difficulty }

func (c *Chain) Reward() float64 { return c.reward }

func (c *Chain) MinerAddress() string { return c.minerAddress }
