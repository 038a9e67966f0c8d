package discord

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/sw33tLie/rankbot/pkg/notify"
	"github.com/sw33tLie/rankbot/pkg/render"
	"github.com/sw33tLie/rankbot/pkg/storage"
	"github.com/tidwall/gjson"
)

type apiLog struct {
	mu    sync.Mutex
	paths []string
	last  string
}

func fakeAPI(t *testing.T, log *apiLog) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bot tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		log.mu.Lock()
		log.paths = append(log.paths, r.URL.Path)
		log.last = string(body)
		log.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/users/@me/channels":
			if gjson.GetBytes(body, "recipient_id").Str == "blocked" {
				w.WriteHeader(http.StatusForbidden)
				io.WriteString(w, `{"message": "Cannot send messages to this user", "code": 50007}`)
				return
			}
			io.WriteString(w, `{"id": "dm-`+gjson.GetBytes(body, "recipient_id").Str+`"}`)
		default:
			io.WriteString(w, `{"id": "m1"}`)
		}
	}))
}

func TestDeliverDirectOpensChannelOnce(t *testing.T) {
	log := &apiLog{}
	srv := fakeAPI(t, log)
	defer srv.Close()

	c, err := New(Config{Token: "tok", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	msg := render.Message{Title: "Rank Notification", Fields: []render.Field{{Name: "People Analytics", Value: "x"}}, Footer: "f"}
	to := notify.Recipient{ID: "42", Kind: storage.ChannelDirect}
	for i := 0; i < 2; i++ {
		if err := c.Deliver(context.Background(), to, msg); err != nil {
			t.Fatal(err)
		}
	}

	want := []string{"/users/@me/channels", "/channels/dm-42/messages", "/channels/dm-42/messages"}
	if len(log.paths) != len(want) {
		t.Fatalf("want %v, got %v", want, log.paths)
	}
	for i := range want {
		if log.paths[i] != want[i] {
			t.Fatalf("want %v, got %v", want, log.paths)
		}
	}
	if got := gjson.Get(log.last, "embeds.0.title").Str; got != "Rank Notification" {
		t.Fatalf("unexpected embed %s", log.last)
	}
	if got := gjson.Get(log.last, "embeds.0.footer.text").Str; got != "f" {
		t.Fatalf("unexpected footer in %s", log.last)
	}
}

func TestDeliverGroupPostsToChannel(t *testing.T) {
	log := &apiLog{}
	srv := fakeAPI(t, log)
	defer srv.Close()

	c, _ := New(Config{Token: "tok", BaseURL: srv.URL})
	if err := c.Deliver(context.Background(), notify.Recipient{ID: "chan", Kind: storage.ChannelGroup}, render.Reply("hi")); err != nil {
		t.Fatal(err)
	}
	if len(log.paths) != 1 || log.paths[0] != "/channels/chan/messages" {
		t.Fatalf("unexpected calls %v", log.paths)
	}
}

func TestDeliverRevoked(t *testing.T) {
	srv := fakeAPI(t, &apiLog{})
	defer srv.Close()

	c, _ := New(Config{Token: "tok", BaseURL: srv.URL})
	err := c.Deliver(context.Background(), notify.Recipient{ID: "blocked"}, render.Reply("hi"))

	var derr *DeliveryError
	if !errors.As(err, &derr) {
		t.Fatalf("expected a DeliveryError, got %v", err)
	}
	if !derr.Revoked() || derr.StatusCode != http.StatusForbidden || derr.Recipient != "blocked" {
		t.Fatalf("unexpected error %#v", derr)
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected an error without token")
	}
}

// scriptedPosts answers message posts with the given statuses in order, then 200.
func scriptedPosts(statuses ...int) (*httptest.Server, func() int) {
	var mu sync.Mutex
	posts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		n := posts
		posts++
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n < len(statuses) {
			if statuses[n] == http.StatusTooManyRequests {
				w.Header().Set("Retry-After", "0")
				w.WriteHeader(statuses[n])
				io.WriteString(w, `{"message": "You are being rate limited.", "retry_after": 0.01, "global": false}`)
				return
			}
			w.WriteHeader(statuses[n])
			return
		}
		io.WriteString(w, `{"id": "m1"}`)
	}))
	return srv, func() int {
		mu.Lock()
		defer mu.Unlock()
		return posts
	}
}

func TestDeliverDoesNotRepostAfterServerError(t *testing.T) {
	srv, posts := scriptedPosts(http.StatusBadGateway)
	defer srv.Close()

	c, _ := New(Config{Token: "tok", BaseURL: srv.URL})
	err := c.Deliver(context.Background(), notify.Recipient{ID: "chan", Kind: storage.ChannelGroup}, render.Reply("hi"))

	var derr *DeliveryError
	if !errors.As(err, &derr) || derr.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected a 502 DeliveryError, got %v", err)
	}
	if got := posts(); got != 1 {
		t.Fatalf("expected exactly one message post, got %d", got)
	}
}

func TestDeliverRetriesRateLimitedPost(t *testing.T) {
	srv, posts := scriptedPosts(http.StatusTooManyRequests)
	defer srv.Close()

	c, _ := New(Config{Token: "tok", BaseURL: srv.URL})
	if err := c.Deliver(context.Background(), notify.Recipient{ID: "chan", Kind: storage.ChannelGroup}, render.Reply("hi")); err != nil {
		t.Fatal(err)
	}
	if got := posts(); got != 2 {
		t.Fatalf("expected the rate-limited post to be retried once, got %d posts", got)
	}
}

func TestMessageRetryPolicy(t *testing.T) {
	tests := []struct {
		name  string
		resp  *http.Response
		err   error
		retry bool
	}{
		{"rate limited", &http.Response{StatusCode: http.StatusTooManyRequests}, nil, true},
		{"bad gateway", &http.Response{StatusCode: http.StatusBadGateway}, nil, false},
		{"ok", &http.Response{StatusCode: http.StatusOK}, nil, false},
		{"dial error", nil, &url.Error{Op: "Post", URL: "x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"read timeout", nil, &url.Error{Op: "Post", URL: "x", Err: &net.OpError{Op: "read", Err: errors.New("i/o timeout")}}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			retry, err := messageRetryPolicy(context.Background(), tc.resp, tc.err)
			if err != nil || retry != tc.retry {
				t.Fatalf("want retry=%v, got %v (err %v)", tc.retry, retry, err)
			}
		})
	}
}
