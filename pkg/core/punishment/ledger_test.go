package punishment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
)

func newLedger(t *testing.T, requireReason bool) (*Ledger, *authz.Gate) {
	t.Helper()
	gate := authz.NewGate(3, 2)
	require.NoError(t, gate.AddAdmin("admin"))
	return NewLedger(gate, requireReason), gate
}

func TestSubmit_OpenToAnyCaller(t *testing.T) {
	ledger, _ := newLedger(t, false)

	// A caller who is neither authorized nor an admin may submit.
	req, err := ledger.Submit("stranger", "u-emma", "Emma", 3, "late")
	require.NoError(t, err)

	assert.Equal(t, 1, req.ID)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, 3, req.Turns)
	assert.Empty(t, req.DecidedBy)
	assert.Nil(t, req.DecidedAt)
}

func TestSubmit_InvalidTurnCount(t *testing.T) {
	ledger, _ := newLedger(t, false)

	for _, turns := range []int{0, -1} {
		_, err := ledger.Submit("caller", "u-emma", "Emma", turns, "late")
		assert.ErrorIs(t, err, ErrInvalidTurnCount)
	}
	assert.Equal(t, 0, ledger.Stats().Total)
}

func TestSubmit_ReasonRequired(t *testing.T) {
	ledger, _ := newLedger(t, true)

	_, err := ledger.Submit("caller", "u-emma", "Emma", 1, "")
	assert.ErrorIs(t, err, ErrReasonRequired)

	_, err = ledger.Submit("caller", "u-emma", "Emma", 1, "late")
	require.NoError(t, err)
}

func TestDecide_RequiresAdmin(t *testing.T) {
	ledger, _ := newLedger(t, false)
	req, err := ledger.Submit("caller", "u-emma", "Emma", 2, "late")
	require.NoError(t, err)

	_, err = ledger.Approve(req.ID, "caller")
	assert.ErrorIs(t, err, authz.ErrNotAdmin)
	_, err = ledger.Reject(req.ID, "caller")
	assert.ErrorIs(t, err, authz.ErrNotAdmin)

	assert.Equal(t, 1, ledger.Stats().Pending)
}

func TestApprove_TerminalTransition(t *testing.T) {
	ledger, _ := newLedger(t, false)
	req, err := ledger.Submit("caller", "u-emma", "Emma", 2, "late")
	require.NoError(t, err)

	decided, err := ledger.Approve(req.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, decided.Status)
	assert.Equal(t, "admin", decided.DecidedBy)
	require.NotNil(t, decided.DecidedAt)

	// Any further decision fails and leaves the record unchanged.
	_, err = ledger.Approve(req.ID, "admin")
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	_, err = ledger.Reject(req.ID, "admin")
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	after := ledger.History(1)[0]
	assert.Equal(t, decided.DecidedBy, after.DecidedBy)
	assert.Equal(t, decided.DecidedAt, after.DecidedAt)
	assert.Equal(t, StatusApproved, after.Status)
}

func TestDecide_RequestNotFound(t *testing.T) {
	ledger, _ := newLedger(t, false)

	_, err := ledger.Approve(99, "admin")
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestStats_RejectedScenario(t *testing.T) {
	ledger, _ := newLedger(t, false)

	req, err := ledger.Submit("caller", "u-emma", "@emma", 3, "late")
	require.NoError(t, err)
	_, err = ledger.Reject(req.ID, "admin")
	require.NoError(t, err)

	stats := ledger.Stats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 0, stats.Pending)
	assert.Equal(t, 0, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.AdminCount)
}

func TestHistory_MostRecentFirstBounded(t *testing.T) {
	ledger, _ := newLedger(t, false)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	i := 0
	ledger.now = func() time.Time {
		i++
		return base.Add(time.Duration(i) * time.Minute)
	}

	for _, reason := range []string{"first", "second", "third"} {
		_, err := ledger.Submit("caller", "u-emma", "Emma", 1, reason)
		require.NoError(t, err)
	}

	history := ledger.History(2)
	require.Len(t, history, 2)
	assert.Equal(t, "third", history[0].Reason)
	assert.Equal(t, "second", history[1].Reason)

	all := ledger.History(0)
	assert.Len(t, all, 3)
}

func TestPurgeOld_TerminalOnly(t *testing.T) {
	ledger, _ := newLedger(t, false)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	current := now.AddDate(0, 0, -100)
	ledger.now = func() time.Time { return current }

	// An old pending request and an old decided request.
	pending, err := ledger.Submit("caller", "u-emma", "Emma", 1, "stale but pending")
	require.NoError(t, err)
	decided, err := ledger.Submit("caller", "u-adele", "Adele", 1, "stale and decided")
	require.NoError(t, err)
	_, err = ledger.Reject(decided.ID, "admin")
	require.NoError(t, err)

	// A recent decided request.
	current = now.AddDate(0, 0, -2)
	recent, err := ledger.Submit("caller", "u-eden", "Eden", 1, "recent")
	require.NoError(t, err)
	_, err = ledger.Approve(recent.ID, "admin")
	require.NoError(t, err)

	current = now
	removed := ledger.PurgeOld(30)
	assert.Equal(t, 1, removed)

	stats := ledger.Stats()
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 0, stats.Rejected)

	// The pending request survived despite its age.
	found := false
	for _, req := range ledger.Requests() {
		if req.ID == pending.ID {
			found = true
		}
	}
	assert.True(t, found)
}

func TestRestore_RoundTrip(t *testing.T) {
	ledger, gate := newLedger(t, false)
	req, err := ledger.Submit("caller", "u-emma", "Emma", 2, "late")
	require.NoError(t, err)
	_, err = ledger.Approve(req.ID, "admin")
	require.NoError(t, err)
	_, err = ledger.Submit("caller", "u-eden", "Eden", 1, "missed")
	require.NoError(t, err)

	fresh := NewLedger(gate, false)
	fresh.Restore(ledger.Requests(), ledger.NextID())

	assert.Equal(t, ledger.Requests(), fresh.Requests())
	assert.Equal(t, ledger.Stats(), fresh.Stats())
	assert.Equal(t, 3, fresh.NextID())
}
