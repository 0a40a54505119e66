// Package slidingwindow implements incremental aggregates over a trailing window of chain
// time. Every metric consumes blocks in non-decreasing timestamp order and keeps a running
// total that is valid for the window (ts-W, ts], where ts is the timestamp of the block most
// recently admitted.
//
// Admission
//   - Compute cutoff = ts - W. While the oldest admitted block has timestamp <= cutoff, pop
//     it and roll its contribution back: the running total loses the cached contribution,
//     and any auxiliary state is restored by applying the inverse of the update that
//     admitted it. History is never rescanned.
//   - Compute the new block's contribution, apply it to the auxiliary state, push the block
//     summary (with the cached contribution) onto the queue and add it to the total.
//   - Return the total.
//
// Metrics
//   - WealthGain: keeps a signed running balance per address. A transfer of v from a to b
//     adds v to a and removes v from b, and contributes the change in the sum of the
//     non-negative parts of both balances. Eviction replays the block's transfers in the same
//     order with the two sides swapped, which restores every balance.
//   - TransactionCounting: the contribution of a block is the sum of its transfer USD
//     values.
//   - DeFiTransactions: transfers are grouped by transaction hash and every group is
//     evaluated by a fresh WealthGain over DeFiSubWindow. The contribution is the sum of the
//     group gains, which isolates value shuffled inside a single transaction.
//
// Input contract
//   - Blocks must be admitted in non-decreasing timestamp order. This is not checked.
//   - Every transfer must carry a USD value; callers filter with types.Block.Valued. A
//     transfer without one panics. DeFiTransactions skips such transfers instead.
//   - Metrics are not safe for concurrent use.
//
// Queue storage is a ring buffer; popped slots are zeroed so evicted transfer slices can be
// collected.
package slidingwindow
