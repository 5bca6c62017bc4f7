package rotation

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
)

var (
	// ErrNoCurrentTurn is returned when the rotation is empty.
	ErrNoCurrentTurn = errors.New("rotation is empty, no current turn")

	// ErrNotYourTurn is returned when the caller does not resolve to the
	// member at the current position.
	ErrNotYourTurn = errors.New("it is not your turn")

	// ErrMemberNotFound is returned when an id or name does not resolve to
	// a current rotation member.
	ErrMemberNotFound = errors.New("member not found in rotation")

	// ErrDuplicateMember is returned when adding a member whose id is
	// already in the rotation.
	ErrDuplicateMember = errors.New("member already in rotation")
)

// Member is one entry in the rotation. The id is stable; the display name
// is for rendering and for matching chat mentions.
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Skip records a passed turn, kept for status rendering.
type Skip struct {
	MemberID    string    `json:"member_id"`
	DisplayName string    `json:"display_name"`
	Reason      string    `json:"reason,omitempty"`
	At          time.Time `json:"at"`
}

// TurnResult is returned by CompleteTurn: who completed, who is up next,
// and how many extra turns the completer still owes.
type TurnResult struct {
	Completed     Member
	Next          Member
	HasNext       bool
	RemainingOwed int
	PaidOwedTurn  bool
}

// Tracker owns the ordered rotation, the cursor identifying whose turn it
// is, and the per-member owed-turn counters levied by approved punishments.
// It is not safe for concurrent use; the engine serializes access.
type Tracker struct {
	gate    authz.Authorizer
	ids     authz.Resolver
	members []Member
	current int
	owed    map[string]int
	skips   []Skip
	now     func() time.Time
}

// NewTracker creates a tracker over the given members in order. Duplicate
// member ids are rejected.
func NewTracker(gate authz.Authorizer, ids authz.Resolver, members []Member) (*Tracker, error) {
	t := &Tracker{
		gate: gate,
		ids:  ids,
		owed: make(map[string]int),
		now:  time.Now,
	}
	for _, m := range members {
		if t.indexOfID(m.ID) >= 0 {
			return nil, fmt.Errorf("member %q: %w", m.ID, ErrDuplicateMember)
		}
		t.members = append(t.members, m)
	}
	return t, nil
}

// CurrentTurn returns the member whose turn it is. The second return is
// false when the rotation is empty.
func (t *Tracker) CurrentTurn() (Member, bool) {
	if len(t.members) == 0 {
		return Member{}, false
	}
	return t.members[t.current], true
}

// CompleteTurn marks the caller's turn as done. While the current member
// owes extra turns the completion pays one owed turn and the cursor stays
// on them; otherwise the cursor advances to the next position.
func (t *Tracker) CompleteTurn(callerID string) (TurnResult, error) {
	if !t.gate.IsAuthorized(callerID) {
		return TurnResult{}, fmt.Errorf("complete turn by %q: %w", callerID, authz.ErrNotAuthorized)
	}
	if len(t.members) == 0 {
		return TurnResult{}, ErrNoCurrentTurn
	}

	cur := t.members[t.current]
	if !t.callerIsMember(callerID, cur) {
		return TurnResult{}, fmt.Errorf("current turn belongs to %s: %w", cur.DisplayName, ErrNotYourTurn)
	}

	result := TurnResult{Completed: cur}
	if t.owed[cur.ID] > 0 {
		t.owed[cur.ID]--
		if t.owed[cur.ID] == 0 {
			delete(t.owed, cur.ID)
		}
		result.PaidOwedTurn = true
	} else {
		t.current = (t.current + 1) % len(t.members)
	}
	result.RemainingOwed = t.owed[cur.ID]

	// The rotation cannot normally empty out mid-operation, but guard the
	// read anyway.
	if next, ok := t.CurrentTurn(); ok {
		result.Next = next
		result.HasNext = true
	}
	return result, nil
}

// Skip passes the caller's turn without completing it. The cursor advances
// and owed turns are untouched; the skip is recorded with its reason.
func (t *Tracker) Skip(callerID, reason string) (TurnResult, error) {
	if !t.gate.IsAuthorized(callerID) {
		return TurnResult{}, fmt.Errorf("skip by %q: %w", callerID, authz.ErrNotAuthorized)
	}
	if len(t.members) == 0 {
		return TurnResult{}, ErrNoCurrentTurn
	}

	cur := t.members[t.current]
	if !t.callerIsMember(callerID, cur) {
		return TurnResult{}, fmt.Errorf("current turn belongs to %s: %w", cur.DisplayName, ErrNotYourTurn)
	}

	t.skips = append(t.skips, Skip{
		MemberID:    cur.ID,
		DisplayName: cur.DisplayName,
		Reason:      reason,
		At:          t.now(),
	})
	t.current = (t.current + 1) % len(t.members)

	result := TurnResult{Completed: cur}
	if next, ok := t.CurrentTurn(); ok {
		result.Next = next
		result.HasNext = true
	}
	return result, nil
}

// AddMember appends a member to the end of the rotation.
func (t *Tracker) AddMember(callerID string, m Member) error {
	if !t.gate.IsAuthorized(callerID) {
		return fmt.Errorf("add member by %q: %w", callerID, authz.ErrNotAuthorized)
	}
	if t.indexOfID(m.ID) >= 0 {
		return fmt.Errorf("member %q: %w", m.ID, ErrDuplicateMember)
	}
	t.members = append(t.members, m)
	return nil
}

// RemoveMember deletes the member the reference resolves to and returns it.
// The cursor keeps pointing at the same member where possible: removing
// someone earlier in the order shifts it down by one, and removing the
// current member leaves it on whoever now occupies that position. If the
// position is no longer valid the cursor resets to 0. Owed turns for the
// removed member are dropped.
func (t *Tracker) RemoveMember(callerID, ref string) (Member, error) {
	if !t.gate.IsAuthorized(callerID) {
		return Member{}, fmt.Errorf("remove member by %q: %w", callerID, authz.ErrNotAuthorized)
	}
	idx := t.indexOf(ref)
	if idx < 0 {
		return Member{}, fmt.Errorf("remove %q: %w", ref, ErrMemberNotFound)
	}

	removed := t.members[idx]
	t.members = slices.Delete(t.members, idx, idx+1)
	delete(t.owed, removed.ID)

	if idx < t.current {
		t.current--
	}
	if t.current >= len(t.members) {
		t.current = 0
	}
	return removed, nil
}

// SwapPositions exchanges two members' positions in the order. The lookup
// is by identity, not by index, so the cursor is untouched and may point at
// a different member afterwards. Authorization is the caller's concern;
// the swap protocol gates its propose/approve exchange before calling this.
func (t *Tracker) SwapPositions(aID, bID string) error {
	ai := t.indexOfID(aID)
	bi := t.indexOfID(bID)
	if ai < 0 {
		return fmt.Errorf("swap %q: %w", aID, ErrMemberNotFound)
	}
	if bi < 0 {
		return fmt.Errorf("swap %q: %w", bID, ErrMemberNotFound)
	}
	t.members[ai], t.members[bi] = t.members[bi], t.members[ai]
	return nil
}

// FindMember resolves a reference (member id, display name, or a caller id
// whose alias resolves to a display name) to a current rotation member.
func (t *Tracker) FindMember(ref string) (Member, bool) {
	idx := t.indexOf(ref)
	if idx < 0 {
		return Member{}, false
	}
	return t.members[idx], true
}

// AddOwed levies n extra turns against a member id. Callers validate n.
func (t *Tracker) AddOwed(memberID string, n int) {
	if n <= 0 {
		return
	}
	t.owed[memberID] += n
}

// OwedBy returns how many extra turns a member currently owes.
func (t *Tracker) OwedBy(memberID string) int {
	return t.owed[memberID]
}

// Members returns the rotation in order.
func (t *Tracker) Members() []Member {
	return slices.Clone(t.members)
}

// CurrentIndex returns the cursor position. Only meaningful when the
// rotation is non-empty.
func (t *Tracker) CurrentIndex() int {
	return t.current
}

// Owed returns a copy of the owed-turn counters.
func (t *Tracker) Owed() map[string]int {
	owed := make(map[string]int, len(t.owed))
	for id, n := range t.owed {
		owed[id] = n
	}
	return owed
}

// Skips returns the recorded skips, oldest first.
func (t *Tracker) Skips() []Skip {
	return slices.Clone(t.skips)
}

// Restore replaces the tracker state from a snapshot. An out-of-range
// cursor is clamped to 0.
func (t *Tracker) Restore(members []Member, current int, owed map[string]int, skips []Skip) {
	t.members = slices.Clone(members)
	t.current = current
	if t.current < 0 || t.current >= len(t.members) {
		t.current = 0
	}
	t.owed = make(map[string]int, len(owed))
	for id, n := range owed {
		if n > 0 {
			t.owed[id] = n
		}
	}
	t.skips = slices.Clone(skips)
}

// callerIsMember reports whether the caller resolves to the given member,
// either directly by id or through the identity resolver by display name.
func (t *Tracker) callerIsMember(callerID string, m Member) bool {
	if callerID == m.ID {
		return true
	}
	name, _ := t.ids.Resolve(callerID)
	return strings.EqualFold(name, m.DisplayName)
}

func (t *Tracker) indexOfID(id string) int {
	return slices.IndexFunc(t.members, func(m Member) bool {
		return m.ID == id
	})
}

// indexOf resolves a reference to a member position: exact id first, then
// case-insensitive display name, then the resolved alias name.
func (t *Tracker) indexOf(ref string) int {
	if idx := t.indexOfID(ref); idx >= 0 {
		return idx
	}
	if idx := t.indexOfName(ref); idx >= 0 {
		return idx
	}
	if name, ok := t.ids.Resolve(ref); ok {
		return t.indexOfName(name)
	}
	return -1
}

func (t *Tracker) indexOfName(name string) int {
	return slices.IndexFunc(t.members, func(m Member) bool {
		return strings.EqualFold(m.DisplayName, name)
	})
}
