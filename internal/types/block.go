package types

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidBlock = errors.New("invalid block")

// Block is a ledger block with its transfers nested in (hash, log index) order.
type Block struct {
	Number    uint64     `json:"number"`
	Time      time.Time  `json:"timestamp"`
	Transfers []Transfer `json:"transfers"`
}

// NewBlock validates the block header and that every transfer belongs to it.
func NewBlock(number uint64, t time.Time, transfers []Transfer) (*Block, error) {
	if t.IsZero() {
		return nil, fmt.Errorf("%w: block %d has no timestamp", ErrInvalidBlock, number)
	}
	for i := range transfers {
		if transfers[i].BlockNumber != number {
			return nil, fmt.Errorf(
				"%w: transfer %s/%d references block %d, want %d",
				ErrInvalidBlock, transfers[i].Hash.Hex(), transfers[i].LogIndex, transfers[i].BlockNumber, number,
			)
		}
	}
	return &Block{Number: number, Time: t.UTC(), Transfers: transfers}, nil
}

// WithoutSwaps returns a shallow copy of the block without DEX-swap transfers.
func (b *Block) WithoutSwaps() *Block {
	return b.filter(func(t *Transfer) bool { return !t.IsDEXSwap })
}

// Valued returns a shallow copy of the block keeping only transfers that carry a USD value.
func (b *Block) Valued() *Block {
	return b.filter(func(t *Transfer) bool { return t.USDValue != nil })
}

func (b *Block) filter(keep func(*Transfer) bool) *Block {
	out := &Block{Number: b.Number, Time: b.Time, Transfers: make([]Transfer, 0, len(b.Transfers))}
	for i := range b.Transfers {
		if keep(&b.Transfers[i]) {
			out.Transfers = append(out.Transfers, b.Transfers[i])
		}
	}
	return out
}
