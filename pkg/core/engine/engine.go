// Package engine composes the authorization gate, rotation tracker, swap
// board, and punishment ledger into the single authoritative in-memory
// instance. One mutex serializes commands: each operation fully executes
// before the next begins, and no partial state is observable externally.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teambition/rrule-go"
	"go.uber.org/zap"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
	"github.com/jakechorley/chorewheel/pkg/core/punishment"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
	"github.com/jakechorley/chorewheel/pkg/core/swap"
	"github.com/jakechorley/chorewheel/pkg/db"
)

// Options configures a new engine.
type Options struct {
	Members           []rotation.Member
	AuthorizedCallers []string
	Admins            []string
	MaxAuthorized     int
	MaxAdmins         int

	// Aliases maps alternate caller ids (phone numbers, short handles) to
	// member display names.
	Aliases map[string]string

	RequirePunishmentReason bool

	// ReminderRule is an optional RFC 5545 recurrence rule for nudging the
	// current member, e.g. "FREQ=DAILY;BYHOUR=9;BYMINUTE=0".
	ReminderRule string

	// Store receives a snapshot after every successful mutation. Optional;
	// store failures are logged and never affect in-memory state.
	Store  db.SnapshotStore
	Logger *zap.Logger
}

// View is a read-only copy of the engine state for rendering.
type View struct {
	Members      []rotation.Member
	CurrentIndex int
	Owed         map[string]int
	Skips        []rotation.Skip
	PendingSwaps []swap.Request
}

// Engine is the exclusive owner of all rotation, swap, and punishment
// state.
type Engine struct {
	mu          sync.Mutex
	gate        *authz.Gate
	ids         authz.Resolver
	tracker     *rotation.Tracker
	swaps       *swap.Board
	punishments *punishment.Ledger
	store       db.SnapshotStore
	logger      *zap.Logger
	reminder    *rrule.RRule
	now         func() time.Time
}

// New builds an engine from the given options. Seed callers beyond the
// configured capacities are rejected.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	gate := authz.NewGate(opts.MaxAuthorized, opts.MaxAdmins)
	for _, id := range opts.AuthorizedCallers {
		if err := gate.AddAuthorized(id); err != nil {
			return nil, fmt.Errorf("seed authorized caller %q: %w", id, err)
		}
	}
	for _, id := range opts.Admins {
		if err := gate.AddAdmin(id); err != nil {
			return nil, fmt.Errorf("seed admin %q: %w", id, err)
		}
	}

	ids := authz.NewMapResolver(opts.Aliases)
	tracker, err := rotation.NewTracker(gate, ids, opts.Members)
	if err != nil {
		return nil, fmt.Errorf("build rotation: %w", err)
	}

	var reminder *rrule.RRule
	if opts.ReminderRule != "" {
		reminder, err = rrule.StrToRRule(opts.ReminderRule)
		if err != nil {
			return nil, fmt.Errorf("invalid reminder rule: %w", err)
		}
	}

	return &Engine{
		gate:        gate,
		ids:         ids,
		tracker:     tracker,
		swaps:       swap.NewBoard(gate, ids),
		punishments: punishment.NewLedger(gate, opts.RequirePunishmentReason),
		store:       opts.Store,
		logger:      logger,
		reminder:    reminder,
		now:         time.Now,
	}, nil
}

// CurrentTurn returns the member whose turn it is.
func (e *Engine) CurrentTurn() (rotation.Member, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.CurrentTurn()
}

// View returns a copy of the rotation and swap state for rendering.
func (e *Engine) View() View {
	e.mu.Lock()
	defer e.mu.Unlock()
	return View{
		Members:      e.tracker.Members(),
		CurrentIndex: e.tracker.CurrentIndex(),
		Owed:         e.tracker.Owed(),
		Skips:        e.tracker.Skips(),
		PendingSwaps: e.swaps.Pending(),
	}
}

// Done marks the caller's turn complete.
func (e *Engine) Done(ctx context.Context, callerID string) (rotation.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.tracker.CompleteTurn(callerID)
	if err != nil {
		return rotation.TurnResult{}, err
	}
	e.persist(ctx)
	return result, nil
}

// Skip passes the caller's turn without completing it.
func (e *Engine) Skip(ctx context.Context, callerID, reason string) (rotation.TurnResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	result, err := e.tracker.Skip(callerID, reason)
	if err != nil {
		return rotation.TurnResult{}, err
	}
	e.persist(ctx)
	return result, nil
}

// AddMember appends a member to the rotation.
func (e *Engine) AddMember(ctx context.Context, callerID string, m rotation.Member) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.AddMember(callerID, m); err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

// RemoveMember deletes a member and eagerly invalidates every pending swap
// request that references them, so no request can linger unresolvable.
func (e *Engine) RemoveMember(ctx context.Context, callerID, ref string) (rotation.Member, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed, err := e.tracker.RemoveMember(callerID, ref)
	if err != nil {
		return rotation.Member{}, err
	}
	if dropped := e.swaps.Invalidate(removed.ID); len(dropped) > 0 {
		e.logger.Info("invalidated stale swap requests",
			zap.String("member_id", removed.ID),
			zap.Int("count", len(dropped)))
	}
	e.persist(ctx)
	return removed, nil
}

// ProposeSwap records a swap request; nothing is applied until the target
// approves.
func (e *Engine) ProposeSwap(ctx context.Context, requesterID, targetRef string) (swap.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.swaps.Propose(e.tracker, requesterID, targetRef)
	if err != nil {
		return swap.Request{}, err
	}
	e.persist(ctx)
	return req, nil
}

// ApproveSwap applies a pending swap request.
func (e *Engine) ApproveSwap(ctx context.Context, requestID int, approverID string) (swap.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.swaps.Approve(e.tracker, requestID, approverID)
	if err != nil {
		return swap.Request{}, err
	}
	e.persist(ctx)
	return req, nil
}

// RejectSwap discards a pending swap request.
func (e *Engine) RejectSwap(ctx context.Context, requestID int, rejectorID string) (swap.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.swaps.Reject(requestID, rejectorID)
	if err != nil {
		return swap.Request{}, err
	}
	e.persist(ctx)
	return req, nil
}

// SubmitPunishment files a petition against whoever the reference resolves
// to. Targets need not be rotation members; a non-member target keeps the
// raw reference as its id.
func (e *Engine) SubmitPunishment(ctx context.Context, submitterID, targetRef string, turns int, reason string) (punishment.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	targetID, targetName := targetRef, targetRef
	if m, ok := e.tracker.FindMember(targetRef); ok {
		targetID, targetName = m.ID, m.DisplayName
	} else if name, ok := e.ids.Resolve(targetRef); ok {
		targetName = name
	}

	req, err := e.punishments.Submit(submitterID, targetID, targetName, turns, reason)
	if err != nil {
		return punishment.Request{}, err
	}
	e.persist(ctx)
	return req, nil
}

// ApprovePunishment levies the requested turns against the target.
func (e *Engine) ApprovePunishment(ctx context.Context, requestID int, adminID string) (punishment.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.punishments.Approve(requestID, adminID)
	if err != nil {
		return punishment.Request{}, err
	}
	e.tracker.AddOwed(req.TargetID, req.Turns)
	e.persist(ctx)
	return req, nil
}

// RejectPunishment closes a petition without effect.
func (e *Engine) RejectPunishment(ctx context.Context, requestID int, adminID string) (punishment.Request, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	req, err := e.punishments.Reject(requestID, adminID)
	if err != nil {
		return punishment.Request{}, err
	}
	e.persist(ctx)
	return req, nil
}

// PunishmentHistory returns requests most-recent-first, bounded by limit.
func (e *Engine) PunishmentHistory(limit int) []punishment.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.punishments.History(limit)
}

// PunishmentStats aggregates the ledger.
func (e *Engine) PunishmentStats() punishment.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.punishments.Stats()
}

// PurgeOldPunishments removes terminal requests older than daysOld days.
func (e *Engine) PurgeOldPunishments(ctx context.Context, daysOld int) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := e.punishments.PurgeOld(daysOld)
	if removed > 0 {
		e.persist(ctx)
	}
	return removed
}

// Authorize adds a caller to the authorized set. Managing the set is an
// admin privilege. A reference that resolves to a rotation member is
// normalized to the member id.
func (e *Engine) Authorize(ctx context.Context, adminID, targetRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gate.IsAdmin(adminID) {
		return fmt.Errorf("authorize by %q: %w", adminID, authz.ErrNotAdmin)
	}
	if err := e.gate.AddAuthorized(e.resolveTargetID(targetRef)); err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

// Unauthorize removes a caller from the authorized set. Idempotent.
func (e *Engine) Unauthorize(ctx context.Context, adminID, targetRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gate.IsAdmin(adminID) {
		return fmt.Errorf("unauthorize by %q: %w", adminID, authz.ErrNotAdmin)
	}
	e.gate.RemoveAuthorized(e.resolveTargetID(targetRef))
	e.persist(ctx)
	return nil
}

// AddAdmin grants admin privileges, subject to the admin capacity.
func (e *Engine) AddAdmin(ctx context.Context, adminID, targetRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gate.IsAdmin(adminID) {
		return fmt.Errorf("add admin by %q: %w", adminID, authz.ErrNotAdmin)
	}
	if err := e.gate.AddAdmin(e.resolveTargetID(targetRef)); err != nil {
		return err
	}
	e.persist(ctx)
	return nil
}

// RemoveAdmin revokes admin privileges. Idempotent.
func (e *Engine) RemoveAdmin(ctx context.Context, adminID, targetRef string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.gate.IsAdmin(adminID) {
		return fmt.Errorf("remove admin by %q: %w", adminID, authz.ErrNotAdmin)
	}
	e.gate.RemoveAdmin(e.resolveTargetID(targetRef))
	e.persist(ctx)
	return nil
}

// IsAdmin reports whether a caller holds admin privileges.
func (e *Engine) IsAdmin(callerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gate.IsAdmin(callerID)
}

// NextReminder returns the next reminder instant after the given time, per
// the configured recurrence rule. The second return is false when no rule
// is configured or the rule has no further occurrences.
func (e *Engine) NextReminder(after time.Time) (time.Time, bool) {
	if e.reminder == nil {
		return time.Time{}, false
	}
	next := e.reminder.After(after, false)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Serialize captures the full engine state as a snapshot.
func (e *Engine) Serialize() *db.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.serializeLocked()
}

// Restore replaces the engine state from a snapshot. It is the exact
// inverse of Serialize with respect to observable behavior.
func (e *Engine) Restore(snap *db.Snapshot) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.Restore(snap.Members, snap.CurrentIndex, snap.OwedTurns, snap.Skips)
	e.gate.Restore(snap.AuthorizedCallers, snap.Admins)
	e.swaps.Restore(snap.SwapRequests, snap.NextSwapID)
	e.punishments.Restore(snap.PunishmentRequests, snap.NextPunishmentID)
}

func (e *Engine) serializeLocked() *db.Snapshot {
	return &db.Snapshot{
		ID:                 uuid.New().String(),
		TakenAt:            e.now(),
		Members:            e.tracker.Members(),
		CurrentIndex:       e.tracker.CurrentIndex(),
		OwedTurns:          e.tracker.Owed(),
		Skips:              e.tracker.Skips(),
		AuthorizedCallers:  e.gate.Authorized(),
		Admins:             e.gate.Admins(),
		SwapRequests:       e.swaps.Pending(),
		NextSwapID:         e.swaps.NextID(),
		PunishmentRequests: e.punishments.Requests(),
		NextPunishmentID:   e.punishments.NextID(),
	}
}

// persist hands a snapshot to the store. Failures are logged for the
// operator and never roll back the in-memory mutation: the engine stays the
// source of truth and the next successful write catches up.
func (e *Engine) persist(ctx context.Context) {
	if e.store == nil {
		return
	}
	snap := e.serializeLocked()
	if err := e.store.Save(ctx, snap); err != nil {
		e.logger.Warn("snapshot write failed",
			zap.String("snapshot_id", snap.ID),
			zap.Error(err))
	}
}

func (e *Engine) resolveTargetID(ref string) string {
	if m, ok := e.tracker.FindMember(ref); ok {
		return m.ID
	}
	return ref
}
