package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jwebster45206/quest-engine/pkg/narrative"
	"github.com/jwebster45206/quest-engine/pkg/queue"
)

const (
	cmdEvent    = "event"
	cmdTick     = "tick"
	cmdDeliver  = "deliver"
	cmdRead     = "read"
	cmdProgress = "progress"
	cmdLedger   = "ledger"
	cmdCopy     = "copy"
	cmdHelp     = "help"
	cmdRefresh  = "refresh"
)

const helpText = `Commands:
• /event <kind> [attribute] [magnitude] - Report progress
• /tick - Check for newly unlocked quests
• /read - Show unlocked quests that were never delivered
• /deliver <quest_id> - Deliver one unlocked quest
• /progress - Show how close pending quests are
• /ledger - Show applied rewards and balances
• /copy - Copy the last revealed story to the clipboard
• /refresh - Reload narrative state
• Ctrl+C - Quit

Plain text is recorded as a journal entry.`

// command is one parsed line of console input.
type command struct {
	name string
	args []string
}

// parseCommand splits console input. Input without a leading slash is a
// journal entry.
func parseCommand(input string) (command, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return command{}, fmt.Errorf("empty input")
	}
	if !strings.HasPrefix(input, "/") {
		return command{name: cmdEvent, args: []string{string(narrative.KindJournalEntry)}}, nil
	}

	fields := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(fields) == 0 {
		return command{}, fmt.Errorf("empty command")
	}
	cmd := command{name: strings.ToLower(fields[0]), args: fields[1:]}

	switch cmd.name {
	case cmdEvent:
		if len(cmd.args) == 0 || len(cmd.args) > 3 {
			return command{}, fmt.Errorf("usage: /event <kind> [attribute] [magnitude]")
		}
	case cmdDeliver:
		if len(cmd.args) != 1 {
			return command{}, fmt.Errorf("usage: /deliver <quest_id>")
		}
	case cmdTick, cmdRead, cmdProgress, cmdLedger, cmdCopy, cmdHelp, cmdRefresh:
		if len(cmd.args) != 0 {
			return command{}, fmt.Errorf("/%s takes no arguments", cmd.name)
		}
	default:
		return command{}, fmt.Errorf("unknown command /%s (try /help)", cmd.name)
	}
	return cmd, nil
}

// progressEvent builds the event an /event command reports.
func (c command) progressEvent(now time.Time) (queue.ProgressEvent, error) {
	if c.name != cmdEvent || len(c.args) == 0 {
		return queue.ProgressEvent{}, fmt.Errorf("not an event command")
	}
	kind := narrative.NormalizeEventKind(c.args[0])
	if kind == "" {
		return queue.ProgressEvent{}, fmt.Errorf("event kind is required")
	}
	ev := queue.ProgressEvent{Kind: kind, Attribute: narrative.AttributeNone, OccurredAt: now.UTC()}
	if len(c.args) > 1 {
		attr, err := narrative.ParseAttribute(c.args[1])
		if err != nil {
			return queue.ProgressEvent{}, err
		}
		ev.Attribute = attr
	}
	if len(c.args) > 2 {
		n, err := strconv.Atoi(c.args[2])
		if err != nil || n < 0 {
			return queue.ProgressEvent{}, fmt.Errorf("magnitude must be a non-negative integer")
		}
		ev.Magnitude = n
	}
	return ev, nil
}
