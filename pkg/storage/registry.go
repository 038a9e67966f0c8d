package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sw33tLie/rankbot/pkg/leaderboard"
)

// ChannelKind tells the delivery layer how to address a subscriber.
type ChannelKind string

const (
	ChannelDirect ChannelKind = "direct"
	ChannelGroup  ChannelKind = "group"
)

// ParseChannelKind accepts "direct"/"dm" and "group"/"channel".
func ParseChannelKind(s string) (ChannelKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "direct", "dm", "":
		return ChannelDirect, nil
	case "group", "channel":
		return ChannelGroup, nil
	}
	return "", fmt.Errorf("unknown channel kind %q", s)
}

// Subscriber is one notification recipient and what they follow.
type Subscriber struct {
	ID            string      `json:"id"`
	ChannelKind   ChannelKind `json:"channel_kind"`
	Subscriptions []string    `json:"subscriptions"` // sorted, unique
	CreatedAt     time.Time   `json:"created_at"`
}

// Has reports whether the subscriber follows target.
func (s Subscriber) Has(target string) bool {
	i := sort.SearchStrings(s.Subscriptions, target)
	return i < len(s.Subscriptions) && s.Subscriptions[i] == target
}

func (s Subscriber) clone() Subscriber {
	s.Subscriptions = append([]string(nil), s.Subscriptions...)
	return s
}

type SubscribeResult int

const (
	Subscribed SubscribeResult = iota
	AlreadySubscribed
)

type UnsubscribeResult int

const (
	Unsubscribed UnsubscribeResult = iota
	NotSubscribed
)

var ErrEmptyTarget = errors.New("empty subscription target")

type registryFile struct {
	Version     int          `json:"version"`
	Subscribers []Subscriber `json:"subscribers"`
}

// Registry is the persisted set of subscribers. Every mutation is written to disk
// before the call returns; a failed write leaves memory untouched.
type Registry struct {
	mu          sync.Mutex
	path        string
	subscribers map[string]Subscriber
	now         func() time.Time
}

// OpenRegistry loads the registry file at path, starting empty when it does not exist.
func OpenRegistry(path string) (*Registry, error) {
	r := &Registry{path: path, subscribers: make(map[string]Subscriber), now: time.Now}

	var f registryFile
	if _, err := readJSON(path, &f); err != nil {
		return nil, err
	}
	for _, s := range f.Subscribers {
		if s.ID == "" {
			continue
		}
		s.Subscriptions = dedupe(s.Subscriptions)
		r.subscribers[s.ID] = s
	}
	return r, nil
}

// NormalizeTarget trims a target and folds any casing of "top10" to the reserved name.
func NormalizeTarget(target string) string {
	target = strings.TrimSpace(target)
	if strings.EqualFold(target, leaderboard.Top10) {
		return leaderboard.Top10
	}
	return target
}

// GetOrCreate returns the subscriber with id, creating it with the default
// top10 subscription on first contact.
func (r *Registry) GetOrCreate(id string, kind ChannelKind) (Subscriber, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, created, err := r.lookupLocked(id, kind)
	if err != nil {
		return Subscriber{}, false, err
	}
	if created {
		if err := r.commitLocked(s); err != nil {
			return Subscriber{}, false, err
		}
	}
	return s.clone(), created, nil
}

// lookupLocked returns the subscriber with id, or a new one with the default
// top10 subscription that the caller still has to commit.
func (r *Registry) lookupLocked(id string, kind ChannelKind) (Subscriber, bool, error) {
	if s, ok := r.subscribers[id]; ok {
		return s, false, nil
	}
	if id == "" {
		return Subscriber{}, false, errors.New("empty subscriber id")
	}
	return Subscriber{
		ID:            id,
		ChannelKind:   kind,
		Subscriptions: []string{leaderboard.Top10},
		CreatedAt:     r.now().UTC(),
	}, true, nil
}

// Subscribe adds target to the subscriber's set, creating the subscriber if needed.
// Creation and subscription are persisted in a single write.
func (r *Registry) Subscribe(id string, kind ChannelKind, target string) (SubscribeResult, error) {
	target = NormalizeTarget(target)
	if target == "" {
		return 0, ErrEmptyTarget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, created, err := r.lookupLocked(id, kind)
	if err != nil {
		return 0, err
	}
	result := Subscribed
	if s.Has(target) {
		if !created {
			return AlreadySubscribed, nil
		}
		result = AlreadySubscribed
	} else {
		s = s.clone()
		s.Subscriptions = dedupe(append(s.Subscriptions, target))
	}
	if err := r.commitLocked(s); err != nil {
		return 0, err
	}
	return result, nil
}

// Unsubscribe removes target from the subscriber's set. The subscriber record
// is kept even when its set becomes empty.
func (r *Registry) Unsubscribe(id string, kind ChannelKind, target string) (UnsubscribeResult, error) {
	target = NormalizeTarget(target)
	if target == "" {
		return 0, ErrEmptyTarget
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, created, err := r.lookupLocked(id, kind)
	if err != nil {
		return 0, err
	}
	result := Unsubscribed
	next := s.clone()
	if !s.Has(target) {
		if !created {
			return NotSubscribed, nil
		}
		result = NotSubscribed
	} else {
		next.Subscriptions = next.Subscriptions[:0]
		for _, t := range s.Subscriptions {
			if t != target {
				next.Subscriptions = append(next.Subscriptions, t)
			}
		}
	}
	if err := r.commitLocked(next); err != nil {
		return 0, err
	}
	return result, nil
}

// Get returns a copy of the subscriber with id.
func (r *Registry) Get(id string) (Subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subscribers[id]
	return s.clone(), ok
}

// List returns copies of every subscriber, sorted by id.
func (r *Registry) List() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []Subscriber {
	out := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// commitLocked persists the registry with s applied, then applies s in memory.
func (r *Registry) commitLocked(s Subscriber) error {
	old, existed := r.subscribers[s.ID]
	r.subscribers[s.ID] = s
	if err := writeFile(r.path, registryFile{Version: stateVersion, Subscribers: r.sortedLocked()}); err != nil {
		if existed {
			r.subscribers[s.ID] = old
		} else {
			delete(r.subscribers, s.ID)
		}
		return fmt.Errorf("could not persist subscribers: %w", err)
	}
	return nil
}

func dedupe(targets []string) []string {
	seen := make(map[string]bool, len(targets))
	out := make([]string, 0, len(targets))
	for _, t := range targets {
		t = NormalizeTarget(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
