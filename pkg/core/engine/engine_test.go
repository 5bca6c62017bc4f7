package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
	"github.com/jakechorley/chorewheel/pkg/core/punishment"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
	"github.com/jakechorley/chorewheel/pkg/core/swap"
	"github.com/jakechorley/chorewheel/pkg/db"
)

// mockStore records snapshot writes and can simulate store failures.
type mockStore struct {
	saved   []*db.Snapshot
	saveErr error
}

func (m *mockStore) Save(ctx context.Context, snap *db.Snapshot) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saved = append(m.saved, snap)
	return nil
}

func (m *mockStore) Load(ctx context.Context) (*db.Snapshot, error) {
	if len(m.saved) == 0 {
		return nil, db.ErrNoSnapshot
	}
	return m.saved[len(m.saved)-1], nil
}

func testOptions(store db.SnapshotStore) Options {
	return Options{
		Members: []rotation.Member{
			{ID: "u-eden", DisplayName: "Eden"},
			{ID: "u-adele", DisplayName: "Adele"},
			{ID: "u-emma", DisplayName: "Emma"},
		},
		AuthorizedCallers: []string{"u-eden", "u-adele", "u-emma"},
		Admins:            []string{"admin"},
		Aliases: map[string]string{
			"+447700900001": "Eden",
		},
		Store: store,
	}
}

func newTestEngine(t *testing.T, store db.SnapshotStore) *Engine {
	t.Helper()
	eng, err := New(testOptions(store))
	require.NoError(t, err)
	return eng
}

func TestNew_RejectsSeedBeyondCapacity(t *testing.T) {
	opts := testOptions(nil)
	opts.MaxAuthorized = 2

	_, err := New(opts)
	assert.ErrorIs(t, err, authz.ErrCapacityExceeded)
}

func TestDone_AdvancesAndPersists(t *testing.T) {
	store := &mockStore{}
	eng := newTestEngine(t, store)

	result, err := eng.Done(context.Background(), "u-eden")
	require.NoError(t, err)
	assert.Equal(t, "Eden", result.Completed.DisplayName)
	assert.Equal(t, "Adele", result.Next.DisplayName)

	require.Len(t, store.saved, 1)
	assert.Equal(t, 1, store.saved[0].CurrentIndex)
}

func TestDone_StoreFailureDoesNotRollBack(t *testing.T) {
	store := &mockStore{saveErr: errors.New("disk full")}
	eng := newTestEngine(t, store)

	_, err := eng.Done(context.Background(), "u-eden")
	require.NoError(t, err)

	// The mutation committed despite the failed write.
	cur, ok := eng.CurrentTurn()
	require.True(t, ok)
	assert.Equal(t, "Adele", cur.DisplayName)
}

func TestFailedOperationDoesNotPersist(t *testing.T) {
	store := &mockStore{}
	eng := newTestEngine(t, store)

	_, err := eng.Done(context.Background(), "u-emma")
	require.ErrorIs(t, err, rotation.ErrNotYourTurn)
	assert.Empty(t, store.saved)
}

func TestApprovePunishment_LeviesOwedTurns(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	req, err := eng.SubmitPunishment(ctx, "anyone", "emma", 3, "late")
	require.NoError(t, err)
	assert.Equal(t, "u-emma", req.TargetID)
	assert.Equal(t, "Emma", req.TargetDisplayName)

	_, err = eng.ApprovePunishment(ctx, req.ID, "admin")
	require.NoError(t, err)

	view := eng.View()
	assert.Equal(t, 3, view.Owed["u-emma"])

	// Emma pays her debt one completion at a time once her turn arrives.
	_, err = eng.Done(ctx, "u-eden")
	require.NoError(t, err)
	_, err = eng.Done(ctx, "u-adele")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		result, err := eng.Done(ctx, "u-emma")
		require.NoError(t, err)
		assert.True(t, result.PaidOwedTurn)
	}
	result, err := eng.Done(ctx, "u-emma")
	require.NoError(t, err)
	assert.False(t, result.PaidOwedTurn)
	assert.Equal(t, 0, eng.View().CurrentIndex)
}

func TestSubmitPunishment_NonMemberTarget(t *testing.T) {
	eng := newTestEngine(t, nil)

	req, err := eng.SubmitPunishment(context.Background(), "anyone", "landlord", 1, "noise")
	require.NoError(t, err)
	assert.Equal(t, "landlord", req.TargetID)
	assert.Equal(t, "landlord", req.TargetDisplayName)
}

func TestRejectedPunishment_StatsScenario(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	req, err := eng.SubmitPunishment(ctx, "anyone", "emma", 3, "late")
	require.NoError(t, err)
	_, err = eng.RejectPunishment(ctx, req.ID, "admin")
	require.NoError(t, err)

	stats := eng.PunishmentStats()
	assert.Equal(t, punishment.Stats{Total: 1, Pending: 0, Approved: 0, Rejected: 1, AdminCount: 1}, stats)
	assert.Empty(t, eng.View().Owed)
}

func TestRemoveMember_InvalidatesPendingSwaps(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	req, err := eng.ProposeSwap(ctx, "u-eden", "adele")
	require.NoError(t, err)

	_, err = eng.RemoveMember(ctx, "u-eden", "adele")
	require.NoError(t, err)

	// A decision on the stale request now fails as unknown.
	_, err = eng.ApproveSwap(ctx, req.ID, "u-adele")
	assert.ErrorIs(t, err, swap.ErrRequestNotFound)
}

func TestAuthorizationManagement_AdminOnly(t *testing.T) {
	opts := testOptions(nil)
	opts.MaxAuthorized = 4
	eng, err := New(opts)
	require.NoError(t, err)
	ctx := context.Background()

	err = eng.Authorize(ctx, "u-eden", "u-finn")
	assert.ErrorIs(t, err, authz.ErrNotAdmin)

	require.NoError(t, eng.Authorize(ctx, "admin", "u-finn"))
	err = eng.Authorize(ctx, "admin", "u-grace")
	assert.ErrorIs(t, err, authz.ErrCapacityExceeded)

	require.NoError(t, eng.Unauthorize(ctx, "admin", "u-finn"))
	require.NoError(t, eng.Authorize(ctx, "admin", "u-grace"))
}

func TestAddRemoveAdmin(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, eng.AddAdmin(ctx, "admin", "second"))
	assert.True(t, eng.IsAdmin("second"))

	err := eng.AddAdmin(ctx, "admin", "third")
	assert.ErrorIs(t, err, authz.ErrCapacityExceeded)

	require.NoError(t, eng.RemoveAdmin(ctx, "admin", "second"))
	assert.False(t, eng.IsAdmin("second"))
}

func TestSerializeRestore_RoundTrip(t *testing.T) {
	eng := newTestEngine(t, nil)
	ctx := context.Background()

	_, err := eng.Done(ctx, "u-eden")
	require.NoError(t, err)
	_, err = eng.ProposeSwap(ctx, "u-adele", "emma")
	require.NoError(t, err)
	preq, err := eng.SubmitPunishment(ctx, "anyone", "emma", 2, "late")
	require.NoError(t, err)
	_, err = eng.ApprovePunishment(ctx, preq.ID, "admin")
	require.NoError(t, err)
	_, err = eng.Skip(ctx, "u-adele", "away")
	require.NoError(t, err)

	snap := eng.Serialize()

	restored := newTestEngine(t, nil)
	restored.Restore(snap)

	assert.Equal(t, eng.View(), restored.View())
	assert.Equal(t, eng.PunishmentStats(), restored.PunishmentStats())
	assert.Equal(t, eng.PunishmentHistory(0), restored.PunishmentHistory(0))

	// Id counters survive: the next ids continue the sequences.
	swapReq, err := restored.ProposeSwap(ctx, "u-eden", "emma")
	require.NoError(t, err)
	assert.Equal(t, 2, swapReq.ID)
	punReq, err := restored.SubmitPunishment(ctx, "anyone", "eden", 1, "again")
	require.NoError(t, err)
	assert.Equal(t, 2, punReq.ID)
}

func TestNextReminder(t *testing.T) {
	opts := testOptions(nil)
	opts.ReminderRule = "FREQ=DAILY;DTSTART=20260101T090000Z"
	eng, err := New(opts)
	require.NoError(t, err)

	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next, ok := eng.NextReminder(after)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC), next)

	// No rule configured: no reminder.
	bare := newTestEngine(t, nil)
	_, ok = bare.NextReminder(after)
	assert.False(t, ok)
}

func TestNew_InvalidReminderRule(t *testing.T) {
	opts := testOptions(nil)
	opts.ReminderRule = "FREQ=NONSENSE"
	_, err := New(opts)
	assert.Error(t, err)
}
