package main

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/nao1215/brokenlink/internal/config"
	"github.com/nao1215/brokenlink/internal/crawler"
	"github.com/nao1215/brokenlink/internal/model"
)

// engineBuilder creates crawl engines for start URLs, applying the
// settings of the site file for the start URL's host.
type engineBuilder struct {
	cfg    *config.Config
	client *http.Client
	logger *slog.Logger

	// onRecord, when set, is called with every record of every scan.
	onRecord func(model.LinkRecord)
}

// build returns an engine for scanning target. Nil hooks are skipped.
func (b *engineBuilder) build(target string, extraHooks ...func(model.LinkRecord)) *crawler.Engine {
	site := b.cfg.Site(target)

	opts := []crawler.Option{
		crawler.WithLogger(b.logger),
		crawler.WithMaxBodySize(b.cfg.MaxBodySize),
	}
	if len(site.IgnorePatterns) > 0 {
		opts = append(opts, crawler.WithIgnorePatterns(site.IgnorePatterns))
	}
	if len(site.FollowPatterns) > 0 {
		opts = append(opts, crawler.WithFollowPatterns(site.FollowPatterns))
	}
	if b.cfg.RespectRobots {
		opts = append(opts, crawler.WithRobots(crawler.NewRobotsChecker(b.client, b.cfg.UserAgent)))
	}

	hooks := slices.DeleteFunc(slices.Clone(extraHooks), func(fn func(model.LinkRecord)) bool {
		return fn == nil
	})
	if b.onRecord != nil {
		hooks = append(hooks, b.onRecord)
	}
	if len(hooks) > 0 {
		opts = append(opts, crawler.WithRecordHook(func(rec model.LinkRecord) {
			for _, hook := range hooks {
				hook(rec)
			}
		}))
	}

	return crawler.NewEngine(b.client, opts...)
}

// siteRunner runs API scans with an engine built for each start URL.
type siteRunner struct {
	builder *engineBuilder
}

// RunLive implements registry.Runner.
func (r siteRunner) RunLive(ctx context.Context, cfg model.ScanConfig, live *model.LiveResult) (*model.ScanResult, error) {
	return r.builder.build(cfg.StartURL).RunLive(ctx, cfg, live)
}
