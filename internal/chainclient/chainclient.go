package chainclient

import (
	"context"
	"errors"
	"math/big"
	"time"

	"github.com/ava-labs/libevm/common"
)

var (
	// ErrNetwork marks transport failures, non-2xx responses and JSON-RPC errors.
	// It is never retried inside the client.
	ErrNetwork       = errors.New("network error")
	ErrBlockNotFound = errors.New("block not found")
)

// ChainClient fetches blocks together with their receipts from a node.
type ChainClient interface {
	FetchBlock(ctx context.Context, number uint64) (*BlockPayload, error)
	Close()
}

// BlockPayload is a block body joined with the receipts of its transactions.
type BlockPayload struct {
	Number       uint64
	Time         time.Time
	Transactions []Transaction
	Receipts     []Receipt
}

type Transaction struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address // nil for contract creation
	Value *big.Int
}

type Receipt struct {
	TxHash common.Hash
	Logs   []Log
}

type Log struct {
	Address common.Address
	Topics  []common.Hash
	Data    []byte
	Index   uint
	TxHash  common.Hash
}

// ReceiptsByTx indexes the payload's receipts by transaction hash.
func (p *BlockPayload) ReceiptsByTx() map[common.Hash]*Receipt {
	out := make(map[common.Hash]*Receipt, len(p.Receipts))
	for i := range p.Receipts {
		out[p.Receipts[i].TxHash] = &p.Receipts[i]
	}
	return out
}
