package bot

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
)

type fixedSnapshots struct {
	set *leaderboard.SnapshotSet
}

func (f fixedSnapshots) Current() *leaderboard.SnapshotSet { return f.set }

func newHandler(t *testing.T, set *leaderboard.SnapshotSet) (*Handler, *storage.Registry) {
	t.Helper()
	reg, err := storage.OpenRegistry(filepath.Join(t.TempDir(), "subscribers.json"))
	if err != nil {
		t.Fatal(err)
	}
	return NewHandler(reg, fixedSnapshots{set: set}, nil), reg
}

func board() *leaderboard.SnapshotSet {
	s := leaderboard.NewSnapshotSet(time.Unix(1700000000, 0), leaderboard.ContestSnapshot{
		Name: "People Analytics",
		Teams: []leaderboard.TeamEntry{
			{Rank: 1, Name: "Alpha", Score: 0.9},
			{Rank: 2, Name: "K2IV", Score: 0.8, SubmittedAt: "2021-01-10 12:00"},
		},
	})
	return &s
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Command
		ok   bool
	}{
		{"sub K2IV", Command{Name: "sub", Target: "K2IV"}, true},
		{"  !SUB   Team With Spaces  ", Command{Name: "sub", Target: "Team With Spaces"}, true},
		{"! unsub top10", Command{Name: "unsub", Target: "top10"}, true},
		{"Top10", Command{Name: "top10"}, true},
		{"help", Command{Name: "help"}, true},
		{"status", Command{Name: "status"}, true},
		{"subscribe x", Command{}, false},
		{"", Command{}, false},
		{"hello there", Command{}, false},
	}
	for _, tc := range tests {
		got, ok := Parse(tc.in)
		if ok != tc.ok || !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Parse(%q): want %#v %v, got %#v %v", tc.in, tc.want, tc.ok, got, ok)
		}
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h, reg := newHandler(t, nil)

	reply, err := h.Handle(context.Background(), Message{AuthorID: "g", ChannelKind: storage.ChannelGroup, Content: "lol"})
	if err != nil || reply != nil {
		t.Fatalf("expected silence in groups, got %#v %v", reply, err)
	}
	reply, err = h.Handle(context.Background(), Message{AuthorID: "d", ChannelKind: storage.ChannelDirect, Content: "lol"})
	if err != nil || reply == nil || reply.Title != render.Help().Title {
		t.Fatalf("expected help in direct channels, got %#v %v", reply, err)
	}
	if len(reg.List()) != 0 {
		t.Fatal("unknown commands must not create subscribers")
	}
}

func TestHandleSubscribeFlow(t *testing.T) {
	h, reg := newHandler(t, board())
	ctx := context.Background()
	send := func(content string) *render.Message {
		t.Helper()
		reply, err := h.Handle(ctx, Message{AuthorID: "u1", ChannelKind: storage.ChannelDirect, Content: content})
		if err != nil {
			t.Fatal(err)
		}
		if reply == nil {
			t.Fatalf("%q: no reply", content)
		}
		return reply
	}

	reply := send("sub k2iv")
	if !strings.Contains(reply.Description, "now subscribed to **K2IV**") {
		t.Fatalf("unexpected reply %#v", reply)
	}
	if len(reply.Fields) != 1 || !strings.Contains(reply.Fields[0].Value, "**rank 2** of 2") {
		t.Fatalf("expected current standing, got %#v", reply.Fields)
	}

	reply = send("!sub K2IV")
	if !strings.Contains(reply.Description, "already subscribed") {
		t.Fatalf("unexpected reply %#v", reply)
	}

	s, _ := reg.Get("u1")
	if want := []string{"K2IV", "top10"}; !reflect.DeepEqual(s.Subscriptions, want) {
		t.Fatalf("want %v, got %v", want, s.Subscriptions)
	}

	reply = send("status")
	if !strings.Contains(reply.Description, "**K2IV**, **top10**") {
		t.Fatalf("unexpected status %q", reply.Description)
	}

	reply = send("unsub TOP10")
	if !strings.Contains(reply.Description, "no longer be notified about **top10**") {
		t.Fatalf("unexpected reply %#v", reply)
	}
	reply = send("unsub top10")
	if !strings.Contains(reply.Description, "not subscribed") {
		t.Fatalf("unexpected reply %#v", reply)
	}

	reply = send("sub Nobody")
	if len(reply.Fields) != 1 || reply.Fields[0].Value != "Team Nobody was not found in this contest" {
		t.Fatalf("unexpected reply %#v", reply)
	}
}

func TestHandleTop10(t *testing.T) {
	h, _ := newHandler(t, nil)
	reply, err := h.Handle(context.Background(), Message{AuthorID: "u", Content: "top10"})
	if err != nil || !strings.Contains(reply.Description, "not been fetched") {
		t.Fatalf("unexpected %#v %v", reply, err)
	}

	h, _ = newHandler(t, board())
	reply, err = h.Handle(context.Background(), Message{AuthorID: "u", Content: "top10"})
	if err != nil || reply.Title != "Top 10 Leaderboard" || !strings.Contains(reply.Fields[0].Value, "K2IV") {
		t.Fatalf("unexpected %#v %v", reply, err)
	}
}

func TestHandleFirstContactCreatesSubscriber(t *testing.T) {
	h, reg := newHandler(t, nil)
	if _, err := h.Handle(context.Background(), Message{AuthorID: "new", ChannelKind: storage.ChannelGroup, Content: "help"}); err != nil {
		t.Fatal(err)
	}
	s, ok := reg.Get("new")
	if !ok || s.ChannelKind != storage.ChannelGroup || !reflect.DeepEqual(s.Subscriptions, []string{"top10"}) {
		t.Fatalf("unexpected subscriber %#v", s)
	}
}

func TestHandleUsage(t *testing.T) {
	h, _ := newHandler(t, nil)
	reply, err := h.Handle(context.Background(), Message{AuthorID: "u", Content: "sub   "})
	if err != nil || !strings.Contains(reply.Description, "Usage") {
		t.Fatalf("unexpected %#v %v", reply, err)
	}
}
