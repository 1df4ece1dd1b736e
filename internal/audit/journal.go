package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terminal-bench/assetdao/pkg/address"
)

// Kind names an audited operation
type Kind string

const (
	KindUnitsTransferred     Kind = "units.transferred"
	KindAllowanceApproved    Kind = "units.approved"
	KindUnitsIssued          Kind = "units.issued"
	KindUnitsPurchased       Kind = "units.purchased"
	KindUnitPriceSet         Kind = "units.price_set"
	KindTreasuryWithdrawn    Kind = "treasury.withdrawn"
	KindTreasuryGranted      Kind = "treasury.granted"
	KindReporterAuthorized   Kind = "reporter.authorized"
	KindReporterRevoked      Kind = "reporter.revoked"
	KindReportSubmitted      Kind = "report.submitted"
	KindReportApproved       Kind = "report.approved"
	KindDistributionOpened   Kind = "distribution.opened"
	KindDividendClaimed      Kind = "dividend.claimed"
	KindDividendsClaimedAll  Kind = "dividend.claimed_all"
	KindDustWithdrawn        Kind = "dividend.dust_withdrawn"
	KindAssetUpdated         Kind = "asset.updated"
	KindAssetVerified        Kind = "asset.verified"
	KindPaused               Kind = "admin.paused"
	KindUnpaused             Kind = "admin.unpaused"
	KindOwnershipTransferred Kind = "admin.ownership_transferred"
	KindParamsUpdated        Kind = "governance.params_updated"
	KindDelegated            Kind = "delegation.set"
	KindUndelegated          Kind = "delegation.cleared"
	KindProposalCreated      Kind = "proposal.created"
	KindVoteCast             Kind = "proposal.voted"
	KindProposalExecuted     Kind = "proposal.executed"
	KindProposalCancelled    Kind = "proposal.cancelled"
)

// Entry is one audited, committed operation
type Entry struct {
	Seq   int64             `json:"seq"`
	ID    uuid.UUID         `json:"id"`
	Kind  Kind              `json:"kind"`
	Actor address.Address   `json:"actor"`
	At    time.Time         `json:"at"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

// DefaultRetention is how many entries a journal keeps in memory
const DefaultRetention = 10000

// Journal is an append-only, sequence-numbered log of entries with
// in-memory retention and live subscribers.
type Journal struct {
	mu        sync.Mutex
	entries   []Entry
	lastSeq   int64
	retention int
	subs      map[int]chan Entry
	nextSub   int
	dropped   int64
}

// NewJournal creates a journal keeping up to retention entries
func NewJournal(retention int) *Journal {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Journal{
		entries:   make([]Entry, 0, 2*retention),
		retention: retention,
		subs:      make(map[int]chan Entry),
	}
}

// Append assigns the next sequence number and an id to an entry built
// from its arguments, stores it and fans it out.
func (j *Journal) Append(kind Kind, actor address.Address, at time.Time, attrs map[string]string) Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.lastSeq++
	e := Entry{
		Seq:   j.lastSeq,
		ID:    uuid.New(),
		Kind:  kind,
		Actor: actor,
		At:    at,
		Attrs: attrs,
	}
	// The backing slice grows to twice the retention before the tail is
	// shifted down, so trimming costs one copy per retention appends.
	if len(j.entries) >= 2*j.retention {
		n := copy(j.entries, j.entries[len(j.entries)-j.retention+1:])
		clear(j.entries[n:])
		j.entries = j.entries[:n]
	}
	j.entries = append(j.entries, e)

	for _, ch := range j.subs {
		select {
		case ch <- e:
		default:
			j.dropped++
		}
	}
	return e
}

// Since returns retained entries with a sequence number above seq
func (j *Journal) Since(seq int64) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]Entry, 0)
	for _, e := range j.retained() {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) retained() []Entry {
	if over := len(j.entries) - j.retention; over > 0 {
		return j.entries[over:]
	}
	return j.entries
}

// LastSeq returns the sequence number of the newest entry
func (j *Journal) LastSeq() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

// Resume continues numbering after seq, used when state is restored.
func (j *Journal) Resume(seq int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if seq > j.lastSeq {
		j.lastSeq = seq
	}
}

// Dropped counts entries a slow subscriber missed
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Subscribe returns a channel receiving every new entry and a function
// that ends the subscription. Sends never block; a full channel misses entries.
func (j *Journal) Subscribe(buffer int) (<-chan Entry, func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.nextSub
	j.nextSub++
	ch := make(chan Entry, buffer)
	j.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			j.mu.Lock()
			defer j.mu.Unlock()
			delete(j.subs, id)
			close(ch)
		})
	}
}
