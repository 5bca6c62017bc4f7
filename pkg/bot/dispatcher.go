package bot

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jakechorley/chorewheel/pkg/core/authz"
	"github.com/jakechorley/chorewheel/pkg/core/engine"
	"github.com/jakechorley/chorewheel/pkg/core/punishment"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
	"github.com/jakechorley/chorewheel/pkg/core/swap"
)

// Event is one inbound chat message or button press.
type Event struct {
	CallerID    string
	DisplayName string
	Text        string
}

// Button is a follow-up action offered alongside a reply. The token is fed
// back through the dispatcher verbatim when pressed.
type Button struct {
	Label string
	Token string
}

// Reply is the rendered outcome of a command. An empty Text means the
// input was silently ignored.
type Reply struct {
	Text    string
	Buttons []Button
}

// Dispatcher routes parsed commands to the engine and renders the results.
type Dispatcher struct {
	engine *engine.Engine
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher over the given engine.
func NewDispatcher(eng *engine.Engine, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{engine: eng, logger: logger}
}

// Handle executes one inbound event and returns the reply. Every engine
// error is recoverable and rendered as a short explanatory message; nothing
// propagates.
func (d *Dispatcher) Handle(ctx context.Context, ev Event) Reply {
	cmd, err := Parse(ev.Text)
	if err != nil {
		return Reply{Text: usageHint(cmd.Kind)}
	}

	d.logger.Debug("handling command",
		zap.String("caller_id", ev.CallerID),
		zap.Int("kind", int(cmd.Kind)))

	switch cmd.Kind {
	case KindIgnore:
		return Reply{}

	case KindUnknown:
		return Reply{Text: "Unknown command. Try *help*."}

	case KindDone:
		result, err := d.engine.Done(ctx, ev.CallerID)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Text: renderTurnDone(result)}

	case KindStatus:
		return Reply{Text: renderStatus(d.engine.View())}

	case KindSwap:
		req, err := d.engine.ProposeSwap(ctx, ev.CallerID, cmd.Target)
		if err != nil {
			return errorReply(err)
		}
		return Reply{
			Text: fmt.Sprintf("Swap request #%d: %s ⇄ %s. %s, do you accept?",
				req.ID, req.Requester.DisplayName, req.Target.DisplayName, req.Target.DisplayName),
			Buttons: decisionButtons(req.ID),
		}

	case KindApprove:
		return d.approve(ctx, ev, cmd.RequestID)

	case KindReject:
		return d.reject(ctx, ev, cmd.RequestID)

	case KindSkip:
		result, err := d.engine.Skip(ctx, ev.CallerID, cmd.Reason)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Text: renderSkip(result, cmd.Reason)}

	case KindPunish:
		req, err := d.engine.SubmitPunishment(ctx, ev.CallerID, cmd.Target, cmd.Turns, cmd.Reason)
		if err != nil {
			return errorReply(err)
		}
		return Reply{
			Text: fmt.Sprintf("Punishment request #%d filed against %s (+%d): %s\nWaiting for an admin to decide.",
				req.ID, req.TargetDisplayName, req.Turns, reasonOrDash(req.Reason)),
			Buttons: decisionButtons(req.ID),
		}

	case KindPunishments:
		return Reply{Text: renderHistory(d.engine.PunishmentHistory(10))}

	case KindPunishmentStats:
		return Reply{Text: renderStats(d.engine.PunishmentStats())}

	case KindAddAdmin:
		if err := d.engine.AddAdmin(ctx, ev.CallerID, cmd.Target); err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("%s is now an admin.", cmd.Target)}

	case KindRemoveAdmin:
		if err := d.engine.RemoveAdmin(ctx, ev.CallerID, cmd.Target); err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("%s is no longer an admin.", cmd.Target)}

	case KindAuthorize:
		if err := d.engine.Authorize(ctx, ev.CallerID, cmd.Target); err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("%s may now operate the rotation.", cmd.Target)}

	case KindUnauthorize:
		if err := d.engine.Unauthorize(ctx, ev.CallerID, cmd.Target); err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("%s may no longer operate the rotation.", cmd.Target)}

	case KindHelp:
		return Reply{Text: helpText}

	case KindHelpHelp:
		return Reply{Text: helpHelpText}
	}

	return Reply{Text: "Unknown command. Try *help*."}
}

// approve decides a request id. Pending swap requests are checked first;
// an id with no pending swap is treated as a punishment decision.
func (d *Dispatcher) approve(ctx context.Context, ev Event, id int) Reply {
	if d.hasPendingSwap(id) {
		req, err := d.engine.ApproveSwap(ctx, id, ev.CallerID)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("Swap #%d approved: %s and %s traded places.",
			req.ID, req.Requester.DisplayName, req.Target.DisplayName)}
	}

	req, err := d.engine.ApprovePunishment(ctx, id, ev.CallerID)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Text: fmt.Sprintf("Punishment #%d approved: %s owes %d extra turn(s).",
		req.ID, req.TargetDisplayName, req.Turns)}
}

func (d *Dispatcher) reject(ctx context.Context, ev Event, id int) Reply {
	if d.hasPendingSwap(id) {
		req, err := d.engine.RejectSwap(ctx, id, ev.CallerID)
		if err != nil {
			return errorReply(err)
		}
		return Reply{Text: fmt.Sprintf("Swap #%d rejected.", req.ID)}
	}

	req, err := d.engine.RejectPunishment(ctx, id, ev.CallerID)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Text: fmt.Sprintf("Punishment #%d rejected.", req.ID)}
}

func (d *Dispatcher) hasPendingSwap(id int) bool {
	for _, req := range d.engine.View().PendingSwaps {
		if req.ID == id {
			return true
		}
	}
	return false
}

func decisionButtons(id int) []Button {
	return []Button{
		{Label: "Approve", Token: fmt.Sprintf("approve %d", id)},
		{Label: "Reject", Token: fmt.Sprintf("reject %d", id)},
	}
}

// errorReply maps the engine's error taxonomy to short user-facing
// messages. Every error here is local and recoverable; the user reissues a
// corrected command.
func errorReply(err error) Reply {
	switch {
	case errors.Is(err, authz.ErrNotAuthorized):
		return Reply{Text: "You're not authorized to do that."}
	case errors.Is(err, authz.ErrNotAdmin):
		return Reply{Text: "Only an admin can do that."}
	case errors.Is(err, authz.ErrCapacityExceeded):
		return Reply{Text: "That list is already at capacity."}
	case errors.Is(err, rotation.ErrNoCurrentTurn):
		return Reply{Text: "The rotation is empty."}
	case errors.Is(err, rotation.ErrNotYourTurn):
		return Reply{Text: "It's not your turn."}
	case errors.Is(err, rotation.ErrMemberNotFound):
		return Reply{Text: "I don't know that rotation member."}
	case errors.Is(err, rotation.ErrDuplicateMember):
		return Reply{Text: "They're already in the rotation."}
	case errors.Is(err, swap.ErrSelfSwap):
		return Reply{Text: "You can't swap with yourself."}
	case errors.Is(err, swap.ErrNotTargetUser):
		return Reply{Text: "Only the invited member can decide that swap."}
	case errors.Is(err, swap.ErrRequestNotFound),
		errors.Is(err, punishment.ErrRequestNotFound):
		return Reply{Text: "No such request."}
	case errors.Is(err, punishment.ErrAlreadyDecided):
		return Reply{Text: "That request has already been decided."}
	case errors.Is(err, punishment.ErrInvalidTurnCount):
		return Reply{Text: "Turn count must be at least 1."}
	case errors.Is(err, punishment.ErrReasonRequired):
		return Reply{Text: "Please give a reason."}
	}
	return Reply{Text: "Something went wrong, sorry."}
}

func usageHint(kind Kind) string {
	switch kind {
	case KindSwap:
		return "Usage: swap <member>"
	case KindApprove:
		return "Usage: approve <id>"
	case KindReject:
		return "Usage: reject <id>"
	case KindPunish:
		return "Usage: punish <member> +<turns> <reason>"
	case KindPunishments:
		return "Usage: punishments [stats]"
	case KindAddAdmin:
		return "Usage: addadmin <caller>"
	case KindRemoveAdmin:
		return "Usage: removeadmin <caller>"
	case KindAuthorize:
		return "Usage: authorize <caller>"
	case KindUnauthorize:
		return "Usage: unauthorize <caller>"
	}
	return "Unknown command. Try *help*."
}
