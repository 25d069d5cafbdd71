package helpers

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	sha256 "github.com/minio/sha256-simd"
)

// HashLength is the hex width of every digest produced by this package.
const HashLength = sha256.Size * 2

// ZeroHash is the previous hash of a genesis block.
var ZeroHash = strings.Repeat("0", HashLength)

var ErrNoTransactions = errors.New("merkle root of empty transaction list")

func SerializeSHA256(txt string) string {
	return acceleratedSha256([]byte(txt))
}

func acceleratedSha256(data []byte) string {
	shaWriter := sha256.New()
	shaWriter.Write(data)
	return hex.EncodeToString(shaWriter.Sum(nil))
}

// Hash digests the JSON encoding of v. Struct fields encode in declaration
// order, so equal records always produce the same 64 character string.
func Hash(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical encoding: %w", err)
	}
	return acceleratedSha256(data), nil
}

// HashHeader never fails: a header carries no floating point fields.
func HashHeader(h *Header) string {
	hash, err := Hash(h)
	if err != nil {
		panic(err)
	}
	return hash
}

func MerkleLeaves(txs []*Transaction) ([]string, error) {
	hashes := make([]string, 0, len(txs)+1)
	for i, tx := range txs {
		h, err := Hash(tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		hashes = append(hashes, h)
	}
	return hashes, nil
}

// MerkleRootFromHashes folds one level at a time, duplicating the last hash
// whenever a level has odd length. A single hash is paired with itself.
func MerkleRootFromHashes(level []string) (string, error) {
	if len(level) == 0 {
		return "", ErrNoTransactions
	}
	hashes := append([]string(nil), level...)
	for {
		if len(hashes)%2 == 1 {
			hashes = append(hashes, hashes[len(hashes)-1])
		}
		parents := make([]string, 0, len(hashes)/2)
		for i := 0; i < len(hashes); i += 2 {
			p, err := Hash(hashes[i] + hashes[i+1])
			if err != nil {
				return "", err
			}
			parents = append(parents, p)
		}
		if len(parents) == 1 {
			return parents[0], nil
		}
		hashes = parents
	}
}

func GenerateMerkleRoot(txs []*Transaction) (string, error) {
	if len(txs) == 0 {
		return "", ErrNoTransactions
	}
	leaves, err := MerkleLeaves(txs)
	if err != nil {
		return "", err
	}
	return MerkleRootFromHashes(leaves)
}

func FormatHashrate(hashes uint64, elapsed time.Duration) string {
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	round := func(n float64) float64 {
		return math.Floor(n*100) / 100
	}

	hashrate := float64(hashes) / seconds
	switch {
	case hashrate < 1000:
		return fmt.Sprintf("%.2f h/s", round(hashrate))
	case hashrate < 1000*1000:
		return fmt.Sprintf("%.2f Kh/s", round(hashrate/1000))
	case hashrate < 1000*1000*1000:
		return fmt.Sprintf("%.2f Mh/s", round(hashrate/1000/1000))
	default:
		return fmt.Sprintf("%.2f Gh/s", round(hashrate/1000/1000/1000))
	}
}
