package render

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/sw33tLie/rankbot/pkg/diff"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

const (
	ColorDefault = 0x008891
	ColorError   = 0xE74C3C

	// Discord rejects embed field values above 1024 characters.
	maxFieldValue = 1024
	maxTeamWidth  = 24
)

// Field is one titled block of a message.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Message is a delivery-agnostic notification, shaped after a Discord embed.
type Message struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Footer      string  `json:"footer,omitempty"`
}

// TeamUpdate renders the changes of a single team across contests.
func TeamUpdate(team string, groups []diff.ContestEvents, current leaderboard.SnapshotSet) Message {
	m := Message{Title: "Rank Notification", Color: ColorDefault}
	for _, g := range groups {
		lines := make([]string, 0, len(g.Events)+1)
		for _, e := range g.Events {
			lines = append(lines, EventLine(e))
		}
		if entry, ok := current.Snapshots[g.Contest].Find(team); ok && entry.SubmittedAt != "" {
			lines = append(lines, "> Submission Date: "+entry.SubmittedAt)
		}
		m.Fields = append(m.Fields, Field{Name: g.Contest, Value: clip(strings.Join(lines, "\n"))})
	}
	return m
}

// TeamStanding renders where a team currently stands in every contest, or a
// "not found" notice for contests that do not list it.
func TeamStanding(team string, current leaderboard.SnapshotSet) Message {
	m := Message{Title: "Rank Notification", Color: ColorDefault}
	for _, name := range current.Contests {
		events := diff.Diff(nil, current.Snapshots[name], team, diff.Options{})
		value := fmt.Sprintf("Team %s was not found in this contest", team)
		if len(events) > 0 {
			value = EventLine(events[0])
			if entry, ok := current.Snapshots[name].Find(team); ok && entry.SubmittedAt != "" {
				value += "\n> Submission Date: " + entry.SubmittedAt
			}
		}
		m.Fields = append(m.Fields, Field{Name: name, Value: value})
	}
	return m
}

// Top10 renders the current top-10 table of each contest, followed by the
// updates when there are any.
func Top10(current leaderboard.SnapshotSet, groups []diff.ContestEvents) Message {
	m := Message{Title: "Top 10 Leaderboard", Color: ColorDefault}
	for _, name := range current.Contests {
		m.Fields = append(m.Fields, Field{Name: name, Value: clip("```\n" + table(current.Snapshots[name]) + "```")})
	}
	if len(groups) > 0 {
		var lines []string
		for _, g := range groups {
			for _, e := range g.Events {
				lines = append(lines, fmt.Sprintf("[%s] %s", g.Contest, EventLine(e)))
			}
		}
		m.Fields = append(m.Fields, Field{Name: "Updates:", Value: clip(strings.Join(lines, "\n"))})
	}
	if !current.ObservedAt.IsZero() {
		m.Footer = "Observed at " + current.ObservedAt.UTC().Format("2006-01-02 15:04:05 MST")
	}
	return m
}

func table(cs leaderboard.ContestSnapshot) string {
	var buf strings.Builder
	t := tablewriter.NewWriter(&buf)
	t.SetHeader([]string{"Rank", "Team Name", "Score"})
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	for _, e := range cs.Top(10) {
		t.Append([]string{fmt.Sprint(e.Rank), truncate(e.Name, maxTeamWidth), leaderboard.FormatScore(e.Score)})
	}
	t.Render()
	return buf.String()
}

// EventLine words a single change event.
func EventLine(e diff.ChangeEvent) string {
	from, to := leaderboard.FormatScore(e.FromScore), leaderboard.FormatScore(e.ToScore)
	switch e.Kind {
	case diff.RankImproved:
		return fmt.Sprintf("Team %s moved up the leaderboard from **rank %d** to **rank %d**!", e.Team, e.FromRank, e.ToRank)
	case diff.RankWorsened:
		return fmt.Sprintf("Team %s moved down the leaderboard from **rank %d** to **rank %d** 😔", e.Team, e.FromRank, e.ToRank)
	case diff.ScoreImproved:
		return fmt.Sprintf("Team %s's score improved from **%s** to **%s**!", e.Team, from, to)
	case diff.ScoreDecreased:
		return fmt.Sprintf("Team %s's score decreased from **%s** to **%s** ... but ... how ...?", e.Team, from, to)
	case diff.FirstObserved:
		return fmt.Sprintf("Team %s is on **rank %d** of %d with score **%s**", e.Team, e.ToRank, e.PoolSize, to)
	case diff.Vanished:
		return fmt.Sprintf("Team %s is no longer on the leaderboard (last seen on **rank %d**)", e.Team, e.FromRank)
	case diff.EnteredTop10:
		return fmt.Sprintf("**%s** entered the top 10 on rank %d with score %s", e.Team, e.ToRank, to)
	case diff.ExitedTop10:
		return fmt.Sprintf("**%s** dropped out of the top 10 (was rank %d)", e.Team, e.FromRank)
	case diff.Top10ScoreImproved:
		verb := "improved"
		if e.ToScore < e.FromScore {
			verb = "changed"
		}
		line := fmt.Sprintf("**%s**'s score %s from %s to %s", e.Team, verb, from, to)
		if e.RankChanged {
			line += fmt.Sprintf(" (rank %d → %d)", e.FromRank, e.ToRank)
		}
		return line
	}
	return string(e.Kind)
}

// Help lists the commands the bot understands.
func Help() Message {
	return Message{
		Title: "Commands",
		Color: ColorDefault,
		Description: strings.Join([]string{
			"`sub <team>` get notified when a team's rank or score changes",
			"`sub top10` get the top 10 table whenever it changes (default)",
			"`unsub <team|top10>` stop a subscription",
			"`top10` show the current top 10",
			"`status` list your subscriptions",
			"`help` show this message",
		}, "\n"),
	}
}

// Error renders an operator-facing error report.
func Error(err error) Message {
	return Message{
		Title:       "An Error Occurred",
		Color:       ColorError,
		Description: clip("```bash\n" + err.Error() + "\n```"),
	}
}

// Reply wraps a short confirmation.
func Reply(text string) Message {
	return Message{Color: ColorDefault, Description: text}
}

// Text flattens a message for terminals and plain-text transports.
func Text(m Message) string {
	var b strings.Builder
	if m.Title != "" {
		b.WriteString("## " + m.Title + "\n")
	}
	if m.Description != "" {
		b.WriteString(m.Description + "\n")
	}
	for _, f := range m.Fields {
		b.WriteString("\n### " + f.Name + "\n" + f.Value + "\n")
	}
	if m.Footer != "" {
		b.WriteString("\n" + m.Footer + "\n")
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func clip(s string) string {
	if len(s) <= maxFieldValue {
		return s
	}
	cut := strings.ToValidUTF8(s[:maxFieldValue-4], "")
	if strings.HasPrefix(s, "```") {
		return cut[:len(cut)-3] + "\n```"
	}
	return cut + " ..."
}
