package rotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
)

func testMembers() []Member {
	return []Member{
		{ID: "u-eden", DisplayName: "Eden"},
		{ID: "u-adele", DisplayName: "Adele"},
		{ID: "u-emma", DisplayName: "Emma"},
	}
}

func testGate(t *testing.T, authorized ...string) *authz.Gate {
	t.Helper()
	gate := authz.NewGate(len(authorized), 2)
	for _, id := range authorized {
		require.NoError(t, gate.AddAuthorized(id))
	}
	return gate
}

func newTestTracker(t *testing.T, authorized ...string) *Tracker {
	t.Helper()
	gate := testGate(t, authorized...)
	resolver := authz.NewMapResolver(map[string]string{
		"+447700900001": "Eden",
	})
	tracker, err := NewTracker(gate, resolver, testMembers())
	require.NoError(t, err)
	return tracker
}

func TestNewTracker_RejectsDuplicateIDs(t *testing.T) {
	gate := testGate(t)
	members := append(testMembers(), Member{ID: "u-eden", DisplayName: "Eden Again"})

	_, err := NewTracker(gate, authz.NewMapResolver(nil), members)
	assert.ErrorIs(t, err, ErrDuplicateMember)
}

func TestCompleteTurn_AdvancesCursor(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele", "u-emma")

	result, err := tracker.CompleteTurn("u-eden")
	require.NoError(t, err)

	assert.Equal(t, "Eden", result.Completed.DisplayName)
	require.True(t, result.HasNext)
	assert.Equal(t, "Adele", result.Next.DisplayName)
	assert.Equal(t, 1, tracker.CurrentIndex())
}

func TestCompleteTurn_WrapsAround(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele", "u-emma")

	for _, id := range []string{"u-eden", "u-adele", "u-emma"} {
		_, err := tracker.CompleteTurn(id)
		require.NoError(t, err)
	}

	assert.Equal(t, 0, tracker.CurrentIndex())
	cur, ok := tracker.CurrentTurn()
	require.True(t, ok)
	assert.Equal(t, "Eden", cur.DisplayName)
}

func TestCompleteTurn_NotYourTurn(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele")

	_, err := tracker.CompleteTurn("u-adele")
	assert.ErrorIs(t, err, ErrNotYourTurn)
	assert.Equal(t, 0, tracker.CurrentIndex())
}

func TestCompleteTurn_NotAuthorized(t *testing.T) {
	tracker := newTestTracker(t, "u-adele")

	_, err := tracker.CompleteTurn("u-eden")
	assert.ErrorIs(t, err, authz.ErrNotAuthorized)
	assert.Equal(t, 0, tracker.CurrentIndex())
}

func TestCompleteTurn_ResolvesAliasedCaller(t *testing.T) {
	// A phone number resolving to the display name of the current member.
	tracker := newTestTracker(t, "+447700900001")

	result, err := tracker.CompleteTurn("+447700900001")
	require.NoError(t, err)
	assert.Equal(t, "Eden", result.Completed.DisplayName)
	assert.Equal(t, 1, tracker.CurrentIndex())
}

func TestCompleteTurn_EmptyRotation(t *testing.T) {
	gate := testGate(t, "u-eden")
	tracker, err := NewTracker(gate, authz.NewMapResolver(nil), nil)
	require.NoError(t, err)

	_, err = tracker.CompleteTurn("u-eden")
	assert.ErrorIs(t, err, ErrNoCurrentTurn)
}

func TestCompleteTurn_PaysOwedTurnsBeforeAdvancing(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")
	tracker.AddOwed("u-eden", 2)

	// First two completions pay the debt; the cursor stays on Eden.
	for want := 1; want >= 0; want-- {
		result, err := tracker.CompleteTurn("u-eden")
		require.NoError(t, err)
		assert.True(t, result.PaidOwedTurn)
		assert.Equal(t, want, result.RemainingOwed)
		assert.Equal(t, 0, tracker.CurrentIndex())
	}

	// Debt cleared: the next completion advances.
	result, err := tracker.CompleteTurn("u-eden")
	require.NoError(t, err)
	assert.False(t, result.PaidOwedTurn)
	assert.Equal(t, 1, tracker.CurrentIndex())
	assert.Equal(t, 0, tracker.OwedBy("u-eden"))
}

func TestSkip_AdvancesWithoutConsumingOwed(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")
	tracker.AddOwed("u-eden", 1)

	result, err := tracker.Skip("u-eden", "on holiday")
	require.NoError(t, err)
	assert.Equal(t, "Eden", result.Completed.DisplayName)
	assert.Equal(t, 1, tracker.CurrentIndex())
	assert.Equal(t, 1, tracker.OwedBy("u-eden"))

	skips := tracker.Skips()
	require.Len(t, skips, 1)
	assert.Equal(t, "on holiday", skips[0].Reason)
	assert.Equal(t, "u-eden", skips[0].MemberID)
}

func TestSkip_NotYourTurn(t *testing.T) {
	tracker := newTestTracker(t, "u-emma")

	_, err := tracker.Skip("u-emma", "")
	assert.ErrorIs(t, err, ErrNotYourTurn)
}

func TestAddMember(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")

	require.NoError(t, tracker.AddMember("u-eden", Member{ID: "u-finn", DisplayName: "Finn"}))
	assert.Len(t, tracker.Members(), 4)

	err := tracker.AddMember("u-eden", Member{ID: "u-finn", DisplayName: "Finn"})
	assert.ErrorIs(t, err, ErrDuplicateMember)
}

func TestRemoveMember_BeforeCursorShiftsCursor(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele")

	// Advance to Adele, then remove Eden. The cursor must keep pointing
	// at Adele.
	_, err := tracker.CompleteTurn("u-eden")
	require.NoError(t, err)

	removed, err := tracker.RemoveMember("u-adele", "eden")
	require.NoError(t, err)
	assert.Equal(t, "u-eden", removed.ID)

	cur, ok := tracker.CurrentTurn()
	require.True(t, ok)
	assert.Equal(t, "Adele", cur.DisplayName)
	assert.Equal(t, 0, tracker.CurrentIndex())
}

func TestRemoveMember_LastPositionResetsCursor(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele", "u-emma")

	// Advance cursor to Emma (index 2), then remove Emma.
	_, err := tracker.CompleteTurn("u-eden")
	require.NoError(t, err)
	_, err = tracker.CompleteTurn("u-adele")
	require.NoError(t, err)

	removed, err := tracker.RemoveMember("u-eden", "Emma")
	require.NoError(t, err)
	assert.Equal(t, "u-emma", removed.ID)
	assert.Equal(t, 0, tracker.CurrentIndex())

	cur, ok := tracker.CurrentTurn()
	require.True(t, ok)
	assert.Equal(t, "Eden", cur.DisplayName)
}

func TestRemoveMember_DropsOwedTurns(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")
	tracker.AddOwed("u-adele", 3)

	_, err := tracker.RemoveMember("u-eden", "Adele")
	require.NoError(t, err)
	assert.Equal(t, 0, tracker.OwedBy("u-adele"))
}

func TestRemoveMember_NotFound(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")

	_, err := tracker.RemoveMember("u-eden", "nobody")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestSwapPositions_PreservesCursorPosition(t *testing.T) {
	tracker := newTestTracker(t, "u-eden")

	// Cursor at position 0 (Eden). Swapping Eden and Adele leaves the
	// cursor at position 0, which now holds Adele.
	require.NoError(t, tracker.SwapPositions("u-eden", "u-adele"))

	members := tracker.Members()
	assert.Equal(t, []string{"Adele", "Eden", "Emma"}, []string{
		members[0].DisplayName, members[1].DisplayName, members[2].DisplayName,
	})
	assert.Equal(t, 0, tracker.CurrentIndex())

	cur, ok := tracker.CurrentTurn()
	require.True(t, ok)
	assert.Equal(t, "Adele", cur.DisplayName)
}

func TestSwapPositions_MemberNotFound(t *testing.T) {
	tracker := newTestTracker(t)

	err := tracker.SwapPositions("u-eden", "u-ghost")
	assert.ErrorIs(t, err, ErrMemberNotFound)
}

func TestFindMember(t *testing.T) {
	tracker := newTestTracker(t)

	m, ok := tracker.FindMember("u-adele")
	require.True(t, ok)
	assert.Equal(t, "Adele", m.DisplayName)

	m, ok = tracker.FindMember("adele")
	require.True(t, ok)
	assert.Equal(t, "u-adele", m.ID)

	// Alias resolution: phone number mapped to Eden.
	m, ok = tracker.FindMember("+447700900001")
	require.True(t, ok)
	assert.Equal(t, "u-eden", m.ID)

	_, ok = tracker.FindMember("nobody")
	assert.False(t, ok)
}

func TestRestore_ClampsCursor(t *testing.T) {
	tracker := newTestTracker(t)
	tracker.Restore(testMembers(), 7, map[string]int{"u-emma": 2}, nil)

	assert.Equal(t, 0, tracker.CurrentIndex())
	assert.Equal(t, 2, tracker.OwedBy("u-emma"))
}

func TestRotationInvariant_CursorAlwaysInRange(t *testing.T) {
	tracker := newTestTracker(t, "u-eden", "u-adele", "u-emma")

	check := func() {
		if len(tracker.Members()) > 0 {
			assert.GreaterOrEqual(t, tracker.CurrentIndex(), 0)
			assert.Less(t, tracker.CurrentIndex(), len(tracker.Members()))
		}
	}

	for _, id := range []string{"u-eden", "u-adele"} {
		_, err := tracker.CompleteTurn(id)
		require.NoError(t, err)
		check()
	}

	_, err := tracker.RemoveMember("u-eden", "Emma")
	require.NoError(t, err)
	check()

	_, err = tracker.RemoveMember("u-eden", "Adele")
	require.NoError(t, err)
	check()
}
