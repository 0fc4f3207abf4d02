package llm

import (
	"sync/atomic"

	"github.com/ahrav/go-triage/internal/domain"
	"github.com/ahrav/go-triage/internal/ports"
)

var _ ports.UsageSource = (*UsageCounters)(nil)

// UsageCounters accumulates token usage across every successful call in
// the process. Mutation is lock-free; reads are get-and-clear so each
// completed run observes exactly the usage it caused since the previous
// snapshot.
type UsageCounters struct {
	tokensIn  atomic.Int64
	tokensOut atomic.Int64
}

// NewUsageCounters creates zeroed counters.
func NewUsageCounters() *UsageCounters { return &UsageCounters{} }

// Add records the usage reported by one successful call.
func (u *UsageCounters) Add(tokensIn, tokensOut int) {
	u.tokensIn.Add(int64(tokensIn))
	u.tokensOut.Add(int64(tokensOut))
}

// SnapshotAndReset atomically reads and clears both counters.
func (u *UsageCounters) SnapshotAndReset() domain.Usage {
	return domain.Usage{
		TokensIn:  u.tokensIn.Swap(0),
		TokensOut: u.tokensOut.Swap(0),
	}
}
