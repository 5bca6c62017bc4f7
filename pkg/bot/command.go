// Package bot maps inbound chat text onto engine operations and renders
// the results as reply text, optionally with follow-up buttons.
package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidArguments is returned for a recognized command with malformed
// arguments.
var ErrInvalidArguments = errors.New("invalid command arguments")

// Kind is the closed set of command kinds the dispatcher handles.
type Kind int

const (
	// KindIgnore is unrecognized input without a command marker; it gets
	// no reply at all.
	KindIgnore Kind = iota

	// KindUnknown is unrecognized input with a leading marker; it gets an
	// "unknown command" reply.
	KindUnknown

	KindDone
	KindStatus
	KindSwap
	KindApprove
	KindReject
	KindSkip
	KindPunish
	KindPunishments
	KindPunishmentStats
	KindAddAdmin
	KindRemoveAdmin
	KindAuthorize
	KindUnauthorize
	KindHelp
	KindHelpHelp
)

// Command is a parsed inbound command. Only the fields relevant to the
// kind are set.
type Command struct {
	Kind      Kind
	Target    string
	RequestID int
	Turns     int
	Reason    string
}

// Parse maps a line of chat text to a command. Matching is
// case-insensitive and a leading "/" is optional. A parse error always
// carries ErrInvalidArguments and the offending kind in the command so the
// dispatcher can reply with a usage hint.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	marked := strings.HasPrefix(text, "/")
	if marked {
		text = strings.TrimPrefix(text, "/")
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return Command{Kind: KindIgnore}, nil
	}
	keyword := strings.ToLower(fields[0])
	args := fields[1:]

	switch keyword {
	case "done":
		return Command{Kind: KindDone}, nil

	case "status", "queue":
		return Command{Kind: KindStatus}, nil

	case "swap":
		if len(args) != 1 {
			return Command{Kind: KindSwap}, fmt.Errorf("swap needs a target: %w", ErrInvalidArguments)
		}
		return Command{Kind: KindSwap, Target: stripMention(args[0])}, nil

	case "approve", "reject":
		kind := KindApprove
		if keyword == "reject" {
			kind = KindReject
		}
		if len(args) != 1 {
			return Command{Kind: kind}, fmt.Errorf("%s needs a request id: %w", keyword, ErrInvalidArguments)
		}
		id, err := strconv.Atoi(strings.TrimPrefix(args[0], "#"))
		if err != nil {
			return Command{Kind: kind}, fmt.Errorf("%q is not a request id: %w", args[0], ErrInvalidArguments)
		}
		return Command{Kind: kind, RequestID: id}, nil

	case "skip":
		return Command{Kind: KindSkip, Reason: strings.Join(args, " ")}, nil

	case "punish":
		// punish <target> +<turns> <reason>
		if len(args) < 2 || !strings.HasPrefix(args[1], "+") {
			return Command{Kind: KindPunish}, fmt.Errorf("punish needs a target and +<turns>: %w", ErrInvalidArguments)
		}
		turns, err := strconv.Atoi(strings.TrimPrefix(args[1], "+"))
		if err != nil {
			return Command{Kind: KindPunish}, fmt.Errorf("%q is not a turn count: %w", args[1], ErrInvalidArguments)
		}
		return Command{
			Kind:   KindPunish,
			Target: stripMention(args[0]),
			Turns:  turns,
			Reason: strings.Join(args[2:], " "),
		}, nil

	case "punishments":
		if len(args) == 1 && strings.EqualFold(args[0], "stats") {
			return Command{Kind: KindPunishmentStats}, nil
		}
		if len(args) != 0 {
			return Command{Kind: KindPunishments}, fmt.Errorf("punishments takes at most \"stats\": %w", ErrInvalidArguments)
		}
		return Command{Kind: KindPunishments}, nil

	case "addadmin", "removeadmin", "authorize", "unauthorize":
		kind := map[string]Kind{
			"addadmin":    KindAddAdmin,
			"removeadmin": KindRemoveAdmin,
			"authorize":   KindAuthorize,
			"unauthorize": KindUnauthorize,
		}[keyword]
		if len(args) != 1 {
			return Command{Kind: kind}, fmt.Errorf("%s needs a target: %w", keyword, ErrInvalidArguments)
		}
		return Command{Kind: kind, Target: stripMention(args[0])}, nil

	case "help":
		return Command{Kind: KindHelp}, nil

	case "helphelp":
		return Command{Kind: KindHelpHelp}, nil
	}

	if marked {
		return Command{Kind: KindUnknown}, nil
	}
	return Command{Kind: KindIgnore}, nil
}

func stripMention(ref string) string {
	return strings.TrimPrefix(ref, "@")
}
