package chain

import (
	"errors"
	"fmt"

	"wsb.com/wledger/internals/helpers"
	"wsb.com/wledger/internals/pow"
)

var ErrChainBroken = errors.New("chain broken")

// BlockError reports the first block that failed verification.
type BlockError struct {
	Index  int
	Reason string
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("block %d: %s", e.Index, e.Reason)
}

func (e *BlockError) Unwrap() error { return ErrChainBroken }

// Verify rechecks linkage, commitment and proof of work over all history.
func (c *Chain) Verify() error {
	return VerifyBlocks(c.Blocks())
}

func VerifyBlocks(blocks []helpers.Block) error {
	prev := helpers.ZeroHash
	for i := range blocks {
		if err := verifyBlock(&blocks[i], prev); err != nil {
			return &BlockError{Index: i, Reason: err.Error()}
		}
		prev = helpers.HashHeader(&blocks[i].Header)
	}
	return nil
}

func verifyBlock(b *helpers.Block, prevHash string) error {
	if b.Header.PreviousHash != prevHash {
		return fmt.Errorf("previous hash %s, want %s", b.Header.PreviousHash, prevHash)
	}
	if int(b.Count) != len(b.Transactions) {
		return fmt.Errorf("count %d, carries %d transactions", b.Count, len(b.Transactions))
	}
	if len(b.Transactions) == 0 || b.Transactions[0].Sender != RootSender {
		return errors.New("first transaction is not the reward")
	}

	merkle, err := helpers.GenerateMerkleRoot(b.Transactions)
	if err != nil {
		return err
	}
	if merkle != b.Header.MerkleHash {
		return fmt.Errorf("merkle hash %s, recomputed %s", b.Header.MerkleHash, merkle)
	}

	hash := helpers.HashHeader(&b.Header)
	if !pow.MeetsDifficulty(hash, b.Header.Difficulty) {
		return fmt.Errorf("hash %s does not meet difficulty %d", hash, b.Header.Difficulty)
	}
	return nil
}
