package db

import (
	"time"

	"github.com/jakechorley/chorewheel/pkg/core/punishment"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
	"github.com/jakechorley/chorewheel/pkg/core/swap"
)

// Snapshot is the serialized engine state: rotation, authorization sets,
// pending swaps, and the punishment ledger, plus the monotonic id counters.
// Restore(Serialize(x)) must reproduce x's externally observable behavior.
type Snapshot struct {
	ID      string    `json:"id"`
	TakenAt time.Time `json:"taken_at"`

	Members      []rotation.Member `json:"members"`
	CurrentIndex int               `json:"current_index"`
	OwedTurns    map[string]int    `json:"owed_turns,omitempty"`
	Skips        []rotation.Skip   `json:"skips,omitempty"`

	AuthorizedCallers []string `json:"authorized_callers"`
	Admins            []string `json:"admins"`

	SwapRequests []swap.Request `json:"swap_requests"`
	NextSwapID   int            `json:"next_swap_id"`

	PunishmentRequests []punishment.Request `json:"punishment_requests"`
	NextPunishmentID   int                  `json:"next_punishment_id"`
}
