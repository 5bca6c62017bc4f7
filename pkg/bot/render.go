package bot

import (
	"fmt"
	"strings"

	"github.com/jakechorley/chorewheel/pkg/core/engine"
	"github.com/jakechorley/chorewheel/pkg/core/punishment"
	"github.com/jakechorley/chorewheel/pkg/core/rotation"
)

const maxRenderedSkips = 3

// renderStatus draws the rotation queue, owed turns, pending swaps, and the
// most recent skips. Output is deterministic for a given engine state.
func renderStatus(view engine.View) string {
	if len(view.Members) == 0 {
		return "The rotation is empty."
	}

	var b strings.Builder
	b.WriteString("*Chore rotation*\n")
	for i, m := range view.Members {
		marker := "  "
		if i == view.CurrentIndex {
			marker = "→ "
		}
		b.WriteString(fmt.Sprintf("%s%d. %s", marker, i+1, m.DisplayName))
		if owed := view.Owed[m.ID]; owed > 0 {
			b.WriteString(fmt.Sprintf(" (owes %d)", owed))
		}
		if i == view.CurrentIndex {
			b.WriteString(" — your turn")
		}
		b.WriteString("\n")
	}

	if len(view.PendingSwaps) > 0 {
		b.WriteString("\n*Pending swaps*\n")
		for _, req := range view.PendingSwaps {
			b.WriteString(fmt.Sprintf("  #%d %s ⇄ %s\n",
				req.ID, req.Requester.DisplayName, req.Target.DisplayName))
		}
	}

	if len(view.Skips) > 0 {
		b.WriteString("\n*Recent skips*\n")
		skips := view.Skips
		if len(skips) > maxRenderedSkips {
			skips = skips[len(skips)-maxRenderedSkips:]
		}
		for _, s := range skips {
			b.WriteString(fmt.Sprintf("  %s — %s\n", s.DisplayName, reasonOrDash(s.Reason)))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderTurnDone(result rotation.TurnResult) string {
	if result.PaidOwedTurn {
		if result.RemainingOwed > 0 {
			return fmt.Sprintf("%s paid an owed turn, %d still owed. Still %s's turn.",
				result.Completed.DisplayName, result.RemainingOwed, result.Completed.DisplayName)
		}
		return fmt.Sprintf("%s paid their last owed turn. One more regular turn to go.",
			result.Completed.DisplayName)
	}
	if !result.HasNext {
		return fmt.Sprintf("%s is done.", result.Completed.DisplayName)
	}
	return fmt.Sprintf("%s is done. Next up: %s.",
		result.Completed.DisplayName, result.Next.DisplayName)
}

func renderSkip(result rotation.TurnResult, reason string) string {
	msg := fmt.Sprintf("%s skipped their turn", result.Completed.DisplayName)
	if reason != "" {
		msg += fmt.Sprintf(" (%s)", reason)
	}
	if result.HasNext {
		msg += fmt.Sprintf(". Next up: %s.", result.Next.DisplayName)
	} else {
		msg += "."
	}
	return msg
}

func renderHistory(requests []punishment.Request) string {
	if len(requests) == 0 {
		return "No punishment requests yet."
	}
	var b strings.Builder
	b.WriteString("*Punishment requests*\n")
	for _, req := range requests {
		b.WriteString(fmt.Sprintf("  #%d [%s] %s +%d — %s",
			req.ID, req.Status, req.TargetDisplayName, req.Turns, reasonOrDash(req.Reason)))
		if req.DecidedBy != "" {
			b.WriteString(fmt.Sprintf(" (by %s)", req.DecidedBy))
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderStats(stats punishment.Stats) string {
	return fmt.Sprintf(
		"*Punishment stats*\n  total: %d\n  pending: %d\n  approved: %d\n  rejected: %d\n  admins: %d",
		stats.Total, stats.Pending, stats.Approved, stats.Rejected, stats.AdminCount)
}

func reasonOrDash(reason string) string {
	if reason == "" {
		return "—"
	}
	return reason
}

const helpText = `*Commands*
  done — mark your turn complete
  status | queue — show the rotation
  swap <member> — propose trading places
  approve <id> / reject <id> — decide a swap or punishment request
  skip [reason] — pass your turn
  punish <member> +<turns> <reason> — petition for extra turns
  punishments [stats] — request history or totals
  help | helphelp — this list / the long version`

const helpHelpText = helpText + `

*Admin commands*
  addadmin <caller> / removeadmin <caller> — manage admins
  authorize <caller> / unauthorize <caller> — manage who may operate the rotation

Notes
  Commands are case-insensitive and a leading / is optional.
  Swap requests can only be decided by the invited member.
  Punishment requests can be filed by anyone but only admins decide them.
  Approved punishments add owed turns, paid one at a time before the
  rotation moves past the member.`
