package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sw33tLie/rankbot/pkg/fetcher"
	"github.com/sw33tLie/rankbot/pkg/leaderboard"
	"github.com/sw33tLie/rankbot/pkg/whttp"
)

const DefaultURL = "https://brihackathon.id/dashboard"

// Config configures the dashboard scraper.
type Config struct {
	URL      string
	Cookie   string // PHPSESSID value
	Contests []string
	Timeout  time.Duration
	Proxy    string
}

// Fetcher scrapes the hackathon dashboard, one table per contest.
type Fetcher struct {
	cfg    Config
	client *retryablehttp.Client
	now    func() time.Time
}

func New(cfg Config) (*Fetcher, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if len(cfg.Contests) == 0 {
		return nil, errors.New("no contests configured")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := whttp.NewClient(whttp.ClientOptions{Timeout: cfg.Timeout, RetryMax: 2, Proxy: cfg.Proxy})
	if err != nil {
		return nil, err
	}
	return &Fetcher{cfg: cfg, client: client, now: time.Now}, nil
}

func (f *Fetcher) Name() string { return "dashboard" }

// Fetch downloads and parses the dashboard. The whole call, retries included, is
// bounded by the configured timeout.
func (f *Fetcher) Fetch(ctx context.Context) (leaderboard.SnapshotSet, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.Timeout)
	defer cancel()

	headers := []whttp.WHTTPHeader{
		{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
		{Name: "Referer", Value: "https://brihackathon.id/"},
	}
	if f.cfg.Cookie != "" {
		headers = append(headers, whttp.WHTTPHeader{Name: "Cookie", Value: "PHPSESSID=" + f.cfg.Cookie})
	}

	res, err := whttp.SendHTTPRequest(ctx, &whttp.WHTTPReq{URL: f.cfg.URL, Headers: headers}, f.client)
	if err != nil {
		return leaderboard.SnapshotSet{}, &fetcher.FetchError{Err: err}
	}
	if res.StatusCode != 200 {
		return leaderboard.SnapshotSet{}, &fetcher.FetchError{StatusCode: res.StatusCode}
	}

	set, err := Parse(res.BodyString, f.cfg.Contests, f.now().UTC())
	if err != nil {
		var serr *fetcher.StructuralError
		if errors.As(err, &serr) && res.HTTPTitle != "" {
			serr.Reason += fmt.Sprintf(" (page title: %q)", res.HTTPTitle)
		}
		return leaderboard.SnapshotSet{}, err
	}
	return set, nil
}

// Parse extracts one snapshot per contest from the dashboard HTML. A table belongs
// to a contest when the element preceding the table's parent carries the contest name.
func Parse(body string, contests []string, observedAt time.Time) (leaderboard.SnapshotSet, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return leaderboard.SnapshotSet{}, &fetcher.StructuralError{Reason: fmt.Sprintf("could not parse HTML: %v", err)}
	}

	wanted := make(map[string]bool, len(contests))
	for _, c := range contests {
		wanted[c] = true
	}

	found := make(map[string]leaderboard.ContestSnapshot)
	var parseErr error
	tables := 0
	doc.Find("table").EachWithBreak(func(_ int, tablehtml *goquery.Selection) bool {
		header := strings.TrimSpace(tablehtml.Parent().Prev().Text())
		if !wanted[header] {
			return true
		}
		tables++
		if _, dup := found[header]; dup {
			parseErr = &fetcher.StructuralError{Reason: fmt.Sprintf("contest %q appears more than once", header)}
			return false
		}
		cs, err := parseTable(header, tablehtml)
		if err != nil {
			parseErr = err
			return false
		}
		found[header] = cs
		return true
	})
	if parseErr != nil {
		return leaderboard.SnapshotSet{}, parseErr
	}
	if tables != len(contests) {
		return leaderboard.SnapshotSet{}, &fetcher.StructuralError{
			Reason: fmt.Sprintf("there should be %d scoreboards, but found %d", len(contests), tables),
		}
	}

	snapshots := make([]leaderboard.ContestSnapshot, 0, len(contests))
	for _, c := range contests {
		snapshots = append(snapshots, found[c])
	}
	return leaderboard.NewSnapshotSet(observedAt, snapshots...), nil
}

func parseTable(contest string, tablehtml *goquery.Selection) (leaderboard.ContestSnapshot, error) {
	cs := leaderboard.ContestSnapshot{Name: contest}
	var rowErr error
	tablehtml.Find("tbody tr").EachWithBreak(func(indextr int, rowhtml *goquery.Selection) bool {
		cells := rowhtml.Find("td")
		if cells.Length() < 3 {
			rowErr = &fetcher.StructuralError{Reason: fmt.Sprintf("contest %q row %d has %d cells, expected at least 3", contest, indextr+1, cells.Length())}
			return false
		}
		text := func(i int) string { return strings.TrimSpace(cells.Eq(i).Text()) }

		rank, err := leaderboard.ParseRank(text(0))
		if err != nil {
			rowErr = &fetcher.StructuralError{Reason: fmt.Sprintf("contest %q row %d: bad rank %q: %v", contest, indextr+1, text(0), err)}
			return false
		}
		score, err := leaderboard.ParseScore(text(2))
		if err != nil {
			rowErr = &fetcher.StructuralError{Reason: fmt.Sprintf("contest %q row %d: bad score %q: %v", contest, indextr+1, text(2), err)}
			return false
		}
		entry := leaderboard.TeamEntry{Rank: rank, Name: text(1), Score: score}
		if cells.Length() > 3 {
			entry.SubmittedAt = text(3)
		}
		cs.Teams = append(cs.Teams, entry)
		return true
	})
	if rowErr != nil {
		return cs, rowErr
	}
	if err := cs.Validate(); err != nil {
		return cs, &fetcher.StructuralError{Reason: err.Error()}
	}
	return cs, nil
}
