package ethereum

import (
	"time"

	"github.com/ava-labs/libevm/common"
	"github.com/ava-labs/libevm/common/hexutil"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
)

// rpcBlock is the subset of eth_getBlockByNumber (full transactions) the indexer reads.
type rpcBlock struct {
	Number       hexutil.Uint64 `json:"number"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Transactions []rpcTx        `json:"transactions"`
}

type rpcTx struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value"`
}

// rpcReceipt is the subset of an eth_getBlockReceipts entry the indexer reads.
type rpcReceipt struct {
	TransactionHash common.Hash `json:"transactionHash"`
	Logs            []rpcLog    `json:"logs"`
}

type rpcLog struct {
	Address         common.Address `json:"address"`
	Topics          []common.Hash  `json:"topics"`
	Data            hexutil.Bytes  `json:"data"`
	LogIndex        hexutil.Uint   `json:"logIndex"`
	TransactionHash common.Hash    `json:"transactionHash"`
}

func mapToPayload(block *rpcBlock, receipts []rpcReceipt) *chainclient.BlockPayload {
	return &chainclient.BlockPayload{
		Number:       uint64(block.Number),
		Time:         time.Unix(int64(block.Timestamp), 0).UTC(), //nolint:gosec // block timestamps fit in int64
		Transactions: mapToTxs(block.Transactions),
		Receipts:     mapToReceipts(receipts),
	}
}

func mapToTxs(txs []rpcTx) []chainclient.Transaction {
	out := make([]chainclient.Transaction, 0, len(txs))
	for _, tx := range txs {
		t := chainclient.Transaction{
			Hash: tx.Hash,
			From: tx.From,
			To:   tx.To,
		}
		if tx.Value != nil {
			t.Value = tx.Value.ToInt()
		}
		out = append(out, t)
	}
	return out
}

func mapToReceipts(receipts []rpcReceipt) []chainclient.Receipt {
	out := make([]chainclient.Receipt, 0, len(receipts))
	for _, r := range receipts {
		logs := make([]chainclient.Log, 0, len(r.Logs))
		for _, l := range r.Logs {
			logs = append(logs, chainclient.Log{
				Address: l.Address,
				Topics:  l.Topics,
				Data:    l.Data,
				Index:   uint(l.LogIndex),
				TxHash:  l.TransactionHash,
			})
		}
		out = append(out, chainclient.Receipt{TxHash: r.TransactionHash, Logs: logs})
	}
	return out
}
