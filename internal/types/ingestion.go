package types

// IngestionMark records that every transfer of Coin in BlockNumber is durably stored.
type IngestionMark struct {
	BlockNumber uint64
	Coin        string
}

// MissingBlock lists the active coins that still lack an ingestion mark for a block.
type MissingBlock struct {
	Number uint64
	Coins  []string
}
