// Package routing resolves a normalized alert to the destination channels
// that should receive it, based on per-profile filter predicates.
package routing

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"arbrelay/internal/alert"
	"arbrelay/internal/pkg/config"
)

// Router matches alerts against the channel profiles of their platform.
// Reload may be called from the control listener while the pipeline driver
// resolves alerts, so configuration access goes through the lock.
type Router struct {
	mu  sync.RWMutex
	cfg *config.Config
}

func NewRouter(cfg *config.Config) *Router {
	return &Router{cfg: cfg}
}

// Reload atomically replaces the routing configuration. In-flight Resolve
// calls finish against the configuration they started with.
func (r *Router) Reload(cfg *config.Config) {
	r.mu.Lock()
	r.cfg = cfg
	r.mu.Unlock()
	slog.Info("Routing configuration reloaded")
}

func (r *Router) config() *config.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// Resolve returns the channel IDs an alert should be delivered to. Profiles
// whose predicates all hold contribute their channel; with no predicate
// match it falls back to the alert's own profile key, then to the configured
// error channel. An empty result means nothing to deliver, not an error.
func (r *Router) Resolve(a *alert.Alert) []string {
	cfg := r.config()
	profiles := cfg.Profiles[a.Source]

	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var channels []string
	for _, key := range keys {
		p := profiles[key]
		if p.ChannelID == "" || !matches(a, p.Filters) {
			continue
		}
		channels = append(channels, p.ChannelID)
		slog.Debug("Alert matched profile",
			"source", a.Source, "profile", key, "channel", p.ChannelID)
	}
	if len(channels) > 0 {
		return channels
	}

	if p, ok := profiles[a.Profile]; ok && p.ChannelID != "" {
		slog.Debug("Alert matched by profile key",
			"source", a.Source, "profile", a.Profile, "channel", p.ChannelID)
		return []string{p.ChannelID}
	}

	if errCh := cfg.ErrorChannel(); errCh != "" {
		slog.Warn("No channel for alert, using error channel",
			"source", a.Source, "profile", a.Profile)
		return []string{errCh}
	}
	return nil
}

// RequiredFields returns the configured required-field list for the alert's
// (platform, profile) entry, or nil when the profile is unknown.
func (r *Router) RequiredFields(source, profile string) []string {
	p, ok := r.config().Profile(source, profile)
	if !ok {
		return nil
	}
	return p.RequiredFields
}

// Defaults returns the fallback labels configured for (platform, profile),
// or nil when the profile is unknown.
func (r *Router) Defaults(source, profile string) map[string]string {
	p, ok := r.config().Profile(source, profile)
	if !ok {
		return nil
	}
	return p.Defaults
}

// matches applies every configured predicate; all must hold.
func matches(a *alert.Alert, f config.FilterPredicates) bool {
	if f.MinProfit != nil {
		// An absent profit metric short-circuits the threshold to no-match.
		if a.ProfitPct == nil || *a.ProfitPct < *f.MinProfit {
			return false
		}
	}

	if len(f.Sports) > 0 {
		if a.Sport == "" || !containsFold(f.Sports, a.Sport) {
			return false
		}
	}

	if len(f.Bookmakers) > 0 {
		ok := false
		if a.SelectionA != nil && containsFold(f.Bookmakers, a.SelectionA.Bookmaker) {
			ok = true
		}
		if a.SelectionB != nil && containsFold(f.Bookmakers, a.SelectionB.Bookmaker) {
			ok = true
		}
		if !ok {
			return false
		}
	}
	return true
}

func containsFold(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}
