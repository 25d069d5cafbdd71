package chain

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"wsb.com/wledger/internals/helpers"
	"wsb.com/wledger/internals/pow"
)

func fixedClock() func() time.Time {
	ts := time.Unix(1700000000, 0)
	return func() time.Time {
		ts = ts.Add(time.Second)
		return ts
	}
}

func newTestChain(t *testing.T, miner string, difficulty uint32, opts ...Option) *Chain {
	t.Helper()
	opts = append([]Option{WithClock(fixedClock())}, opts...)
	c, err := New(miner, difficulty, opts...)
	if err != nil {
		t.Fatalf("New(%q, %d) failed: %v", miner, difficulty, err)
	}
	return c
}

func TestGenesis(t *testing.T) {
	tests := []struct {
		miner      string
		difficulty uint32
	}{
		{"m", 2},
		{"", 0},
		{"another-miner", 1},
	}

	for _, tt := range tests {
		t.Run(tt.miner, func(t *testing.T) {
			c := newTestChain(t, tt.miner, tt.difficulty)
			blocks := c.Blocks()
			if len(blocks) != 1 {
				t.Fatalf("height = %d, want 1", len(blocks))
			}
			g := blocks[0]
			if g.Header.PreviousHash != strings.Repeat("0", 64) {
				t.Errorf("genesis previous hash = %q, want 64 zeros", g.Header.PreviousHash)
			}
			if g.Count != 1 || len(g.Transactions) != 1 {
				t.Fatalf("genesis carries %d/%d transactions, want 1", g.Count, len(g.Transactions))
			}
			reward := g.Transactions[0]
			if reward.Sender != RootSender || reward.Receiver != tt.miner || reward.Amount != DefaultReward {
				t.Errorf("genesis reward = %+v", reward)
			}
			if c.PendingCount() != 0 {
				t.Errorf("pending = %d, want 0", c.PendingCount())
			}
		})
	}
}

func TestNewRejectsDifficulty(t *testing.T) {
	if _, err := New("m", 65); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("New(m, 65) error = %v, want ErrInvalidDifficulty", err)
	}
	if _, err := New("m", 1, WithReward(math.Inf(1))); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("New with infinite reward error = %v, want ErrInvalidAmount", err)
	}
}

func TestMineBlockWithTransactions(t *testing.T) {
	c := newTestChain(t, "m", 2)

	if err := c.SubmitTransaction("a", "b", 10.0); err != nil {
		t.Fatalf("SubmitTransaction() failed: %v", err)
	}
	if err := c.SubmitTransaction("b", "c", 5.0); err != nil {
		t.Fatalf("SubmitTransaction() failed: %v", err)
	}
	if c.PendingCount() != 2 {
		t.Fatalf("pending = %d, want 2", c.PendingCount())
	}

	block, err := c.MineBlock()
	if err != nil {
		t.Fatalf("MineBlock() failed: %v", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending after mine = %d, want 0", c.PendingCount())
	}

	want := []helpers.Transaction{
		{Sender: RootSender, Receiver: "m", Amount: 100},
		{Sender: "a", Receiver: "b", Amount: 10},
		{Sender: "b", Receiver: "c", Amount: 5},
	}
	if block.Count != 3 || len(block.Transactions) != 3 {
		t.Fatalf("block carries %d/%d transactions, want 3", block.Count, len(block.Transactions))
	}
	for i, tx := range block.Transactions {
		if *tx != want[i] {
			t.Errorf("transaction %d = %+v, want %+v", i, *tx, want[i])
		}
	}

	blocks := c.Blocks()
	if block.Header.PreviousHash != helpers.HashHeader(&blocks[0].Header) {
		t.Error("mined block does not link to genesis")
	}
	if !strings.HasPrefix(helpers.HashHeader(&block.Header), "00") {
		t.Errorf("block hash %s does not meet difficulty 2", helpers.HashHeader(&block.Header))
	}
}

func TestPendingGrowsByOne(t *testing.T) {
	c := newTestChain(t, "m", 0)
	for i := 1; i <= 5; i++ {
		if err := c.SubmitTransaction("a", "b", float64(i)); err != nil {
			t.Fatalf("SubmitTransaction() failed: %v", err)
		}
		if c.PendingCount() != i {
			t.Fatalf("pending = %d, want %d", c.PendingCount(), i)
		}
	}
	if _, err := c.MineBlock(); err != nil {
		t.Fatal(err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", c.PendingCount())
	}
}

func TestSubmitTransactionRejectsNaN(t *testing.T) {
	c := newTestChain(t, "m", 0)
	if err := c.SubmitTransaction("a", "b", math.NaN()); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("SubmitTransaction(NaN) error = %v, want ErrInvalidAmount", err)
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", c.PendingCount())
	}
}

func TestZeroDifficultyFirstNonce(t *testing.T) {
	c := newTestChain(t, "m", 3)
	if err := c.UpdateDifficulty(0); err != nil {
		t.Fatalf("UpdateDifficulty(0) failed: %v", err)
	}
	block, err := c.MineBlock()
	if err != nil {
		t.Fatal(err)
	}
	if block.Header.Nonce != 0 || block.Header.Difficulty != 0 {
		t.Errorf("nonce = %d difficulty = %d, want 0 and 0", block.Header.Nonce, block.Header.Difficulty)
	}
}

func TestUpdateDifficulty(t *testing.T) {
	c := newTestChain(t, "m", 1)

	err := c.UpdateDifficulty(65)
	if !errors.Is(err, ErrInvalidDifficulty) {
		t.Fatalf("UpdateDifficulty(65) error = %v, want ErrInvalidDifficulty", err)
	}
	if c.Difficulty() != 1 {
		t.Errorf("difficulty = %d after rejected update, want 1", c.Difficulty())
	}
	if err := c.UpdateDifficulty(64); err != nil {
		t.Errorf("UpdateDifficulty(64) unexpected error = %v", err)
	}
}

func TestSettersAreNotRetroactive(t *testing.T) {
	c := newTestChain(t, "m", 1)
	if err := c.UpdateReward(12.5); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateDifficulty(2); err != nil {
		t.Fatal(err)
	}
	if _, err := c.MineBlock(); err != nil {
		t.Fatal(err)
	}

	blocks := c.Blocks()
	if blocks[0].Header.Difficulty != 1 || blocks[0].Transactions[0].Amount != DefaultReward {
		t.Errorf("genesis changed: difficulty %d reward %v", blocks[0].Header.Difficulty, blocks[0].Transactions[0].Amount)
	}
	if blocks[1].Header.Difficulty != 2 || blocks[1].Transactions[0].Amount != 12.5 {
		t.Errorf("block 1: difficulty %d reward %v, want 2 and 12.5", blocks[1].Header.Difficulty, blocks[1].Transactions[0].Amount)
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestChainInvariants(t *testing.T) {
	c := newTestChain(t, "m", 1)
	for i := 0; i < 6; i++ {
		for j := 0; j < i; j++ {
			if err := c.SubmitTransaction("a", "b", float64(j)+0.25); err != nil {
				t.Fatal(err)
			}
		}
		if _, err := c.MineBlock(); err != nil {
			t.Fatal(err)
		}
	}

	blocks := c.Blocks()
	if len(blocks) != 7 || c.Height() != 7 {
		t.Fatalf("height = %d, want 7", len(blocks))
	}
	for i := 1; i < len(blocks); i++ {
		if blocks[i].Header.PreviousHash != helpers.HashHeader(&blocks[i-1].Header) {
			t.Errorf("block %d does not link to block %d", i, i-1)
		}
	}
	for i, b := range blocks {
		merkle, err := helpers.GenerateMerkleRoot(b.Transactions)
		if err != nil {
			t.Fatal(err)
		}
		if merkle != b.Header.MerkleHash {
			t.Errorf("block %d merkle hash not reproducible", i)
		}
		if !pow.MeetsDifficulty(helpers.HashHeader(&b.Header), b.Header.Difficulty) {
			t.Errorf("block %d fails its difficulty", i)
		}
	}
	if c.LastHash() != helpers.HashHeader(&blocks[6].Header) {
		t.Error("LastHash() is not the newest header hash")
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestBlocksSnapshotIsolated(t *testing.T) {
	c := newTestChain(t, "m", 0)
	snap := c.Blocks()
	snap[0].Transactions[0].Amount = 1e9
	snap[0].Header.Nonce = 42

	if c.Blocks()[0].Transactions[0].Amount != DefaultReward {
		t.Error("mutating a snapshot changed sealed history")
	}
	if err := c.Verify(); err != nil {
		t.Errorf("Verify() failed: %v", err)
	}
}

func TestVerifyBlocksDetectsTampering(t *testing.T) {
	c := newTestChain(t, "m", 1)
	if err := c.SubmitTransaction("a", "b", 1); err != nil {
		t.Fatal(err)
	}
	if _, err := c.MineBlock(); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		tamper func([]helpers.Block)
		index  int
	}{
		{"transaction amount", func(b []helpers.Block) { b[1].Transactions[1].Amount = 1000 }, 1},
		{"count", func(b []helpers.Block) { b[1].Count = 5 }, 1},
		{"previous hash", func(b []helpers.Block) { b[1].Header.PreviousHash = helpers.ZeroHash }, 1},
		{"genesis sentinel", func(b []helpers.Block) { b[0].Header.PreviousHash = strings.Repeat("1", 64) }, 0},
		{"reward position", func(b []helpers.Block) {
			b[1].Transactions[0], b[1].Transactions[1] = b[1].Transactions[1], b[1].Transactions[0]
		}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks := c.Blocks()
			tt.tamper(blocks)
			err := VerifyBlocks(blocks)
			if !errors.Is(err, ErrChainBroken) {
				t.Fatalf("VerifyBlocks() error = %v, want ErrChainBroken", err)
			}
			var be *BlockError
			if !errors.As(err, &be) || be.Index != tt.index {
				t.Errorf("VerifyBlocks() error = %v, want block %d", err, tt.index)
			}
		})
	}
}

func TestMineBlockContextCancelled(t *testing.T) {
	c := newTestChain(t, "m", 0)
	if err := c.SubmitTransaction("a", "b", 3); err != nil {
		t.Fatal(err)
	}
	if err := c.UpdateDifficulty(64); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.MineBlockContext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("MineBlockContext() error = %v, want context.Canceled", err)
	}
	if c.Height() != 1 || c.PendingCount() != 1 {
		t.Errorf("height = %d pending = %d, want 1 and 1", c.Height(), c.PendingCount())
	}
}

func TestLastHashEmptyChain(t *testing.T) {
	c := &Chain{}
	if got := c.LastHash(); got != helpers.ZeroHash {
		t.Errorf("LastHash() on empty chain = %s, want ZeroHash", got)
	}
}
