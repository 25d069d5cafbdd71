// Package pow searches for a header nonce whose digest starts with
// difficulty '0' hex characters.
package pow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wsb.com/wledger/internals/helpers"
)

// MaxDifficulty is the largest satisfiable difficulty: every digest character.
const MaxDifficulty = helpers.HashLength

// SearchContext polls for cancellation once per this many attempts.
const checkInterval = 1 << 14

var ErrDifficultyOutOfRange = errors.New("difficulty out of range")

type Result struct {
	Hash     string
	Attempts uint64
	Elapsed  time.Duration
}

func MeetsDifficulty(hash string, difficulty uint32) bool {
	if int(difficulty) > len(hash) {
		return false
	}
	for i := 0; i < int(difficulty); i++ {
		if hash[i] != '0' {
			return false
		}
	}
	return true
}

func CheckDifficulty(difficulty uint32) error {
	if difficulty > MaxDifficulty {
		return fmt.Errorf("%w: %d exceeds %d", ErrDifficultyOutOfRange, difficulty, MaxDifficulty)
	}
	return nil
}

// Search increments header.Nonce from its current value until the header
// digest meets header.Difficulty. It blocks until a nonce is found; the
// counter wraps at the uint32 limit.
func Search(header *helpers.Header) (Result, error) {
	return SearchContext(context.Background(), header)
}

// SearchContext is Search with cancellation. On cancel the header keeps the
// last nonce tried and ctx.Err() is returned.
func SearchContext(ctx context.Context, header *helpers.Header) (Result, error) {
	if err := CheckDifficulty(header.Difficulty); err != nil {
		return Result{}, err
	}

	start := time.Now()
	var attempts uint64
	done := ctx.Done()
	for {
		hash := helpers.HashHeader(header)
		attempts++
		if MeetsDifficulty(hash, header.Difficulty) {
			return Result{Hash: hash, Attempts: attempts, Elapsed: time.Since(start)}, nil
		}
		header.Nonce++

		if done != nil && attempts%checkInterval == 0 {
			select {
			case <-done:
				return Result{Attempts: attempts, Elapsed: time.Since(start)}, ctx.Err()
			default:
			}
		}
	}
}
