// Package swap implements the propose/approve/reject exchange that lets two
// rotation members trade positions. A proposal mutates nothing until the
// invited counterparty approves it.
package swap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
)

var (
	// ErrSelfSwap is returned when requester and target resolve to the
	// same member.
	ErrSelfSwap = errors.New("cannot swap with yourself")

	// ErrRequestNotFound is returned for an unknown or already-settled
	// request id.
	ErrRequestNotFound = errors.New("swap request not found")

	// ErrNotTargetUser is returned when anyone other than the invited
	// counterparty tries to approve or reject a request.
	ErrNotTargetUser = errors.New("only the invited member may decide this swap")
)

// Request is a pending proposal to exchange two members' positions.
type Request struct {
	ID        int             `json:"id"`
	Requester rotation.Member `json:"requester"`
	Target    rotation.Member `json:"target"`
	CreatedAt time.Time       `json:"created_at"`
}

// Board holds the pending swap requests and allocates their monotonic ids.
// Not safe for concurrent use; the engine serializes access.
type Board struct {
	gate    authz.Authorizer
	ids     authz.Resolver
	pending map[int]Request
	nextID  int
	now     func() time.Time
}

// NewBoard creates an empty board. Ids start at 1.
func NewBoard(gate authz.Authorizer, ids authz.Resolver) *Board {
	return &Board{
		gate:    gate,
		ids:     ids,
		pending: make(map[int]Request),
		nextID:  1,
		now:     time.Now,
	}
}

// Propose records a swap request from the requester against the target.
// Both references must resolve to current rotation members. The rotation is
// not mutated until the target approves.
func (b *Board) Propose(tracker *rotation.Tracker, requesterID, targetRef string) (Request, error) {
	if !b.gate.IsAuthorized(requesterID) {
		return Request{}, fmt.Errorf("swap proposal by %q: %w", requesterID, authz.ErrNotAuthorized)
	}
	requester, ok := tracker.FindMember(requesterID)
	if !ok {
		return Request{}, fmt.Errorf("requester %q: %w", requesterID, rotation.ErrMemberNotFound)
	}
	target, ok := tracker.FindMember(targetRef)
	if !ok {
		return Request{}, fmt.Errorf("target %q: %w", targetRef, rotation.ErrMemberNotFound)
	}
	if requester.ID == target.ID {
		return Request{}, fmt.Errorf("%s proposed a swap with themselves: %w", requester.DisplayName, ErrSelfSwap)
	}

	req := Request{
		ID:        b.nextID,
		Requester: requester,
		Target:    target,
		CreatedAt: b.now(),
	}
	b.nextID++
	b.pending[req.ID] = req
	return req, nil
}

// Approve applies a pending request: only the stored target may approve, and
// on success the two members exchange positions and the request is removed.
func (b *Board) Approve(tracker *rotation.Tracker, requestID int, approverID string) (Request, error) {
	req, err := b.settle(requestID, approverID)
	if err != nil {
		return Request{}, err
	}
	if err := tracker.SwapPositions(req.Requester.ID, req.Target.ID); err != nil {
		return Request{}, fmt.Errorf("apply swap %d: %w", requestID, err)
	}
	delete(b.pending, requestID)
	return req, nil
}

// Reject removes a pending request without touching the rotation. The same
// authorization applies: only the stored target may reject.
func (b *Board) Reject(requestID int, rejectorID string) (Request, error) {
	req, err := b.settle(requestID, rejectorID)
	if err != nil {
		return Request{}, err
	}
	delete(b.pending, requestID)
	return req, nil
}

// settle looks up a pending request and checks that the deciding caller
// resolves to its stored target. Nothing is mutated here so an authorization
// failure can never leave partial state behind.
func (b *Board) settle(requestID int, deciderID string) (Request, error) {
	req, ok := b.pending[requestID]
	if !ok {
		return Request{}, fmt.Errorf("swap %d: %w", requestID, ErrRequestNotFound)
	}
	if !b.callerIsTarget(deciderID, req.Target) {
		return Request{}, fmt.Errorf("swap %d is waiting on %s: %w", requestID, req.Target.DisplayName, ErrNotTargetUser)
	}
	return req, nil
}

// Invalidate drops every pending request that references the given member.
// Called eagerly when a member leaves the rotation so stale requests cannot
// linger unresolvable. Returns the dropped requests.
func (b *Board) Invalidate(memberID string) []Request {
	var dropped []Request
	for id, req := range b.pending {
		if req.Requester.ID == memberID || req.Target.ID == memberID {
			dropped = append(dropped, req)
			delete(b.pending, id)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].ID < dropped[j].ID })
	return dropped
}

// Pending returns the open requests ordered by id.
func (b *Board) Pending() []Request {
	reqs := make([]Request, 0, len(b.pending))
	for _, req := range b.pending {
		reqs = append(reqs, req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID < reqs[j].ID })
	return reqs
}

// NextID returns the next id the board will allocate.
func (b *Board) NextID() int {
	return b.nextID
}

// Restore replaces the board state from a snapshot.
func (b *Board) Restore(requests []Request, nextID int) {
	b.pending = make(map[int]Request, len(requests))
	for _, req := range requests {
		b.pending[req.ID] = req
	}
	if nextID < 1 {
		nextID = 1
	}
	b.nextID = nextID
}

func (b *Board) callerIsTarget(callerID string, target rotation.Member) bool {
	if callerID == target.ID {
		return true
	}
	name, _ := b.ids.Resolve(callerID)
	return strings.EqualFold(name, target.DisplayName)
}
