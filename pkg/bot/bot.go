// Package bot turns chat commands into registry changes and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/metrics"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

// Message is an inbound chat message.
type Message struct {
	AuthorID    string
	ChannelKind storage.ChannelKind
	Content     string
}

// Command is a parsed chat command.
type Command struct {
	Name   string
	Target string
}

// Snapshots gives read access to the current leaderboard.
type Snapshots interface {
	Current() *leaderboard.SnapshotSet
}

type Handler struct {
	registry  *storage.Registry
	snapshots Snapshots
	metrics   *metrics.Metrics
}

func NewHandler(registry *storage.Registry, snapshots Snapshots, m *metrics.Metrics) *Handler {
	return &Handler{registry: registry, snapshots: snapshots, metrics: m}
}

var commands = map[string]bool{"sub": true, "unsub": true, "top10": true, "help": true, "status": true}

// Parse reads a command, ignoring case, surrounding whitespace and an optional
// "!" prefix. ok is false for anything that is not a known command.
func Parse(content string) (cmd Command, ok bool) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), "!"))
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return Command{}, false
	}
	name := strings.ToLower(fields[0])
	if !commands[name] {
		return Command{}, false
	}
	return Command{Name: name, Target: strings.TrimSpace(s[len(fields[0]):])}, true
}

// Handle runs one command and returns the reply, or nil when the message should
// be ignored. Errors are returned only when the registry could not be persisted.
func (h *Handler) Handle(ctx context.Context, m Message) (*render.Message, error) {
	if m.AuthorID == "" {
		return nil, errors.New("message has no author")
	}
	if m.ChannelKind == "" {
		m.ChannelKind = storage.ChannelDirect
	}
	cmd, ok := Parse(m.Content)
	if !ok {
		h.metrics.Command("unknown")
		if m.ChannelKind == storage.ChannelGroup {
			return nil, nil
		}
		help := render.Help()
		return &help, nil
	}
	h.metrics.Command(cmd.Name)

	if _, _, err := h.registry.GetOrCreate(m.AuthorID, m.ChannelKind); err != nil {
		return nil, err
	}

	var reply render.Message
	var err error
	switch cmd.Name {
	case "help":
		reply = render.Help()
	case "top10":
		reply = h.top10()
	case "status":
		reply = h.status(m.AuthorID)
	case "sub":
		reply, err = h.subscribe(m, cmd.Target)
	case "unsub":
		reply, err = h.unsubscribe(m, cmd.Target)
	}
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (h *Handler) target(raw string) string {
	t := storage.NormalizeTarget(raw)
	if t == leaderboard.Top10 {
		return t
	}
	return h.snapshots.Current().CanonicalTeamName(t)
}

func (h *Handler) subscribe(m Message, raw string) (render.Message, error) {
	if strings.TrimSpace(raw) == "" {
		return render.Reply("Usage: `sub <team name|top10>`"), nil
	}
	target := h.target(raw)
	res, err := h.registry.Subscribe(m.AuthorID, m.ChannelKind, target)
	if err != nil {
		return render.Message{}, err
	}

	text := fmt.Sprintf("You are now subscribed to **%s**.", target)
	if res == storage.AlreadySubscribed {
		text = fmt.Sprintf("You are already subscribed to **%s**.", target)
	}
	cur := h.snapshots.Current()
	if target == leaderboard.Top10 || cur == nil {
		return render.Reply(text), nil
	}
	reply := render.TeamStanding(target, *cur)
	reply.Description = text
	return reply, nil
}

func (h *Handler) unsubscribe(m Message, raw string) (render.Message, error) {
	if strings.TrimSpace(raw) == "" {
		return render.Reply("Usage: `unsub <team name|top10>`"), nil
	}
	target := h.target(raw)
	res, err := h.registry.Unsubscribe(m.AuthorID, m.ChannelKind, target)
	if err != nil {
		return render.Message{}, err
	}
	if res == storage.NotSubscribed {
		return render.Reply(fmt.Sprintf("You are not subscribed to **%s**.", target)), nil
	}
	return render.Reply(fmt.Sprintf("You will no longer be notified about **%s**.", target)), nil
}

func (h *Handler) top10() render.Message {
	cur := h.snapshots.Current()
	if cur == nil {
		return render.Reply("The leaderboard has not been fetched yet.")
	}
	return render.Top10(*cur, nil)
}

func (h *Handler) status(id string) render.Message {
	s, _ := h.registry.Get(id)
	if len(s.Subscriptions) == 0 {
		return render.Reply("You have no subscriptions.")
	}
	quoted := make([]string, 0, len(s.Subscriptions))
	for _, t := range s.Subscriptions {
		quoted = append(quoted, "**"+t+"**")
	}
	return render.Reply("You are subscribed to " + strings.Join(quoted, ", ") + ".")
}
