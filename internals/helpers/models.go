package helpers

// Field order is the canonical serialization order; do not reorder.

type Transaction struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

type Header struct {
	Timestamp    int64  `json:"timestamp"`
	Nonce        uint32 `json:"nonce"`
	PreviousHash string `json:"previous_hash"`
	MerkleHash   string `json:"merkle_hash"`
	Difficulty   uint32 `json:"difficulty"`
}

type Block struct {
	Header       Header         `json:"header"`
	Count        uint32         `json:"count"`
	Transactions []*Transaction `json:"transactions"`
}

// Clone returns a deep copy so callers cannot reach sealed transactions.
func (b *Block) Clone() Block {
	txs := make([]*Transaction, len(b.Transactions))
	for i, tx := range b.Transactions {
		c := *tx
		txs[i] = &c
	}
	return Block{
		Header:       b.Header,
		Count:        b.Count,
		Transactions: txs,
	}
}
