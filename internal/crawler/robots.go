package crawler

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/temoto/robotstxt"
)

// maxRobotsSize limits how much of a robots.txt file is read.
const maxRobotsSize = 512 * 1024

// RobotsChecker answers whether a URL may be crawled according to its host's
// robots.txt. Rules are fetched once per host and kept for the checker's
// lifetime. A missing or unreadable robots.txt allows everything.
type RobotsChecker struct {
	client *http.Client
	agent  string

	mu    sync.Mutex
	rules map[string]*robotstxt.Group
}

// NewRobotsChecker returns a checker that matches rules for agent.
func NewRobotsChecker(client *http.Client, agent string) *RobotsChecker {
	return &RobotsChecker{
		client: client,
		agent:  agent,
		rules:  make(map[string]*robotstxt.Group),
	}
}

// Allowed reports whether rawURL may be crawled.
func (r *RobotsChecker) Allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return true
	}
	group := r.group(ctx, u.Scheme, strings.ToLower(u.Host))
	if group == nil {
		return true
	}
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

// group returns the cached rule group for host, fetching robots.txt on first use.
// A nil group means allow all.
func (r *RobotsChecker) group(ctx context.Context, scheme, host string) *robotstxt.Group {
	r.mu.Lock()
	g, ok := r.rules[host]
	r.mu.Unlock()
	if ok {
		return g
	}

	g = r.fetch(ctx, scheme, host)

	r.mu.Lock()
	r.rules[host] = g
	r.mu.Unlock()
	return g
}

func (r *RobotsChecker) fetch(ctx context.Context, scheme, host string) *robotstxt.Group {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, scheme+"://"+host+"/robots.txt", http.NoBody)
	if err != nil {
		return nil
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		return nil
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil
	}
	return data.FindGroup(r.agent)
}
