// Package punishment implements the petition workflow for levying extra
// turns against a rotation member. Submission is open to anyone; only an
// admin may decide a request, and decisions are terminal.
package punishment

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
)

var (
	// ErrRequestNotFound is returned for an unknown request id.
	ErrRequestNotFound = errors.New("punishment request not found")

	// ErrAlreadyDecided is returned when deciding a request that is no
	// longer pending.
	ErrAlreadyDecided = errors.New("punishment request already decided")

	// ErrInvalidTurnCount is returned when the requested turn count is
	// below 1.
	ErrInvalidTurnCount = errors.New("turn count must be at least 1")

	// ErrReasonRequired is returned when the deployment requires a reason
	// and none was given.
	ErrReasonRequired = errors.New("a reason is required")
)

// Status of a punishment request. Pending is the only non-terminal state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Request is one punishment petition. DecidedBy and DecidedAt stay zero
// until a terminal transition.
type Request struct {
	ID                int        `json:"id"`
	SubmitterID       string     `json:"submitter_id"`
	TargetID          string     `json:"target_id"`
	TargetDisplayName string     `json:"target_display_name"`
	Turns             int        `json:"turns"`
	Reason            string     `json:"reason"`
	Status            Status     `json:"status"`
	SubmittedAt       time.Time  `json:"submitted_at"`
	DecidedBy         string     `json:"decided_by,omitempty"`
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
}

// Stats aggregates the ledger without mutating it.
type Stats struct {
	Total      int
	Pending    int
	Approved   int
	Rejected   int
	AdminCount int
}

// Ledger owns the punishment requests and their monotonic ids. Requests
// stay in history after a decision until purged. Not safe for concurrent
// use; the engine serializes access.
type Ledger struct {
	gate          *authz.Gate
	requests      []*Request
	nextID        int
	requireReason bool
	now           func() time.Time
}

// NewLedger creates an empty ledger. When requireReason is set, submissions
// without a reason are refused.
func NewLedger(gate *authz.Gate, requireReason bool) *Ledger {
	return &Ledger{
		gate:          gate,
		nextID:        1,
		requireReason: requireReason,
		now:           time.Now,
	}
}

// Submit records a new pending request. Submission is deliberately open:
// any caller may petition, only the decision is privileged.
func (l *Ledger) Submit(submitterID, targetID, targetName string, turns int, reason string) (Request, error) {
	if turns < 1 {
		return Request{}, fmt.Errorf("got %d: %w", turns, ErrInvalidTurnCount)
	}
	if l.requireReason && reason == "" {
		return Request{}, ErrReasonRequired
	}

	req := &Request{
		ID:                l.nextID,
		SubmitterID:       submitterID,
		TargetID:          targetID,
		TargetDisplayName: targetName,
		Turns:             turns,
		Reason:            reason,
		Status:            StatusPending,
		SubmittedAt:       l.now(),
	}
	l.nextID++
	l.requests = append(l.requests, req)
	return *req, nil
}

// Approve marks a pending request approved. The returned request carries
// the target id and turn count so the caller can levy the owed turns.
func (l *Ledger) Approve(requestID int, adminID string) (Request, error) {
	return l.decide(requestID, adminID, StatusApproved)
}

// Reject marks a pending request rejected.
func (l *Ledger) Reject(requestID int, adminID string) (Request, error) {
	return l.decide(requestID, adminID, StatusRejected)
}

func (l *Ledger) decide(requestID int, adminID string, to Status) (Request, error) {
	if !l.gate.IsAdmin(adminID) {
		return Request{}, fmt.Errorf("decision by %q: %w", adminID, authz.ErrNotAdmin)
	}
	req := l.find(requestID)
	if req == nil {
		return Request{}, fmt.Errorf("punishment %d: %w", requestID, ErrRequestNotFound)
	}
	if req.Status != StatusPending {
		return Request{}, fmt.Errorf("punishment %d is %s: %w", requestID, req.Status, ErrAlreadyDecided)
	}

	decidedAt := l.now()
	req.Status = to
	req.DecidedBy = adminID
	req.DecidedAt = &decidedAt
	return *req, nil
}

// History returns requests most-recent-first by submission time, bounded by
// limit. A non-positive limit returns everything.
func (l *Ledger) History(limit int) []Request {
	out := make([]Request, 0, len(l.requests))
	for _, req := range l.requests {
		out = append(out, *req)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Stats aggregates request counts and the current admin head count.
func (l *Ledger) Stats() Stats {
	stats := Stats{
		Total:      len(l.requests),
		AdminCount: l.gate.AdminCount(),
	}
	for _, req := range l.requests {
		switch req.Status {
		case StatusPending:
			stats.Pending++
		case StatusApproved:
			stats.Approved++
		case StatusRejected:
			stats.Rejected++
		}
	}
	return stats
}

// PurgeOld removes terminal requests decided more than daysOld days ago.
// Pending requests are never purged regardless of age. Returns the number
// removed.
func (l *Ledger) PurgeOld(daysOld int) int {
	cutoff := l.now().AddDate(0, 0, -daysOld)
	kept := l.requests[:0]
	removed := 0
	for _, req := range l.requests {
		if req.Status != StatusPending && req.DecidedAt != nil && req.DecidedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, req)
	}
	l.requests = kept
	return removed
}

// Requests returns every request in submission order, for serialization.
func (l *Ledger) Requests() []Request {
	out := make([]Request, 0, len(l.requests))
	for _, req := range l.requests {
		out = append(out, *req)
	}
	return out
}

// NextID returns the next id the ledger will allocate.
func (l *Ledger) NextID() int {
	return l.nextID
}

// Restore replaces the ledger state from a snapshot.
func (l *Ledger) Restore(requests []Request, nextID int) {
	l.requests = make([]*Request, 0, len(requests))
	for _, req := range requests {
		r := req
		l.requests = append(l.requests, &r)
	}
	if nextID < 1 {
		nextID = 1
	}
	l.nextID = nextID
}

func (l *Ledger) find(requestID int) *Request {
	for _, req := range l.requests {
		if req.ID == requestID {
			return req
		}
	}
	return nil
}
