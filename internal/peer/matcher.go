// Package peer groups businesses by similarity and computes the aggregate
// metrics that lend statistical credibility to recommendations and
// benchmarks. Matching relaxes through tiers until a usable group is found;
// the tier actually used is always recorded so benchmarking claims stay
// auditable.
package peer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/pipeline"
	"github.com/storesight/storesight/internal/store"
)

// Tier is the matching strictness level actually used.
type Tier string

const (
	TierStrict   Tier = "strict"
	TierRelaxed  Tier = "relaxed"
	TierBroad    Tier = "broad"
	TierFallback Tier = "fallback"
)

// Config holds the statistical minimums for usable peer data.
type Config struct {
	// MinGroupSize is the smallest peer group worth matching (and the floor
	// for aggregate metrics).
	MinGroupSize int
	// MinSessions is the smallest combined session sample aggregates may be
	// computed over.
	MinSessions int
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{MinGroupSize: 3, MinSessions: 100}
}

// Match is a resolved peer group.
type Match struct {
	Tier  Tier
	Peers []models.Business
	// GroupID is a deterministic identifier for the group, recorded on the
	// business profile.
	GroupID string
}

// Metrics are the aggregate numbers computed over a group's sessions.
type Metrics struct {
	SessionCount        int     `json:"sessionCount"`
	ConversionRate      float64 `json:"conversionRate"`
	CartAbandonmentRate float64 `json:"cartAbandonmentRate"`
	AvgOrderValue       float64 `json:"avgOrderValue"`
}

// Benchmark is the peer-vs-own comparison served to the benchmarking view.
type Benchmark struct {
	Tier      Tier    `json:"tier"`
	GroupSize int     `json:"groupSize"`
	Peers     Metrics `json:"peers"`
	Own       Metrics `json:"own"`
}

// Matcher resolves peer groups and computes aggregates on read; peer
// aggregates are never persisted as a separate mutable record.
type Matcher struct {
	businesses store.BusinessStore
	sessions   store.SessionStore
	cfg        Config
	log        zerolog.Logger
}

// NewMatcher builds a matcher over the given stores.
func NewMatcher(businesses store.BusinessStore, sessions store.SessionStore, cfg Config, log zerolog.Logger) *Matcher {
	def := DefaultConfig()
	if cfg.MinGroupSize <= 0 {
		cfg.MinGroupSize = def.MinGroupSize
	}
	if cfg.MinSessions <= 0 {
		cfg.MinSessions = def.MinSessions
	}
	return &Matcher{
		businesses: businesses,
		sessions:   sessions,
		cfg:        cfg,
		log:        log.With().Str("component", "peer").Logger(),
	}
}

// tierMatch reports whether candidate belongs to b's group at the given
// tier. Industry and revenue range are hard gates at the strict tier;
// product-type overlap uses a Jaccard coefficient; platform is a boolean
// factor.
func tierMatch(tier Tier, b, candidate models.Business) bool {
	sameIndustry := equalFold(b.Industry, candidate.Industry)
	sameRevenue := equalFold(b.RevenueRange, candidate.RevenueRange)
	samePlatform := equalFold(b.Platform, candidate.Platform)
	overlap := Jaccard(b.ProductTypes, candidate.ProductTypes)

	switch tier {
	case TierStrict:
		return sameIndustry && sameRevenue && samePlatform && overlap >= 0.5
	case TierRelaxed:
		return sameIndustry && sameRevenue && overlap >= 0.25
	case TierBroad:
		return sameIndustry
	case TierFallback:
		return samePlatform
	}
	return false
}

// Match resolves b's peer group, relaxing strict → relaxed → broad →
// fallback until the group reaches the minimum usable size. The fallback
// tier returns whatever matched, even below the minimum.
func (m *Matcher) Match(ctx context.Context, b models.Business) (Match, error) {
	candidates, err := m.businesses.ListBusinesses(ctx)
	if err != nil {
		return Match{}, fmt.Errorf("load peer candidates: %w", err)
	}

	tiers := []Tier{TierStrict, TierRelaxed, TierBroad, TierFallback}
	var result Match
	for _, tier := range tiers {
		var peers []models.Business
		for _, c := range candidates {
			if c.ID == b.ID {
				continue
			}
			if tierMatch(tier, b, c) {
				peers = append(peers, c)
			}
		}
		result = Match{Tier: tier, Peers: peers, GroupID: groupID(tier, b)}
		if len(peers) >= m.cfg.MinGroupSize {
			break
		}
	}

	m.log.Debug().Str("business", b.ID).Str("tier", string(result.Tier)).
		Int("peers", len(result.Peers)).Msg("peer group resolved")
	return result, nil
}

// Peers implements recommend.PeerProvider.
func (m *Matcher) Peers(ctx context.Context, b models.Business) ([]models.Business, error) {
	match, err := m.Match(ctx, b)
	if err != nil {
		return nil, err
	}
	return match.Peers, nil
}

// Benchmark resolves b's peer group, records the group on the profile, and
// computes peer and own metrics over [from, to). Groups or samples below the
// statistical minimums yield an InsufficientDataError, mirroring the
// detector's policy.
func (m *Matcher) Benchmark(ctx context.Context, b models.Business, from, to time.Time) (Benchmark, error) {
	match, err := m.Match(ctx, b)
	if err != nil {
		return Benchmark{}, err
	}
	if len(match.Peers) < m.cfg.MinGroupSize {
		return Benchmark{}, &pipeline.InsufficientDataError{
			Reason: fmt.Sprintf("peer group has %d members, need %d", len(match.Peers), m.cfg.MinGroupSize),
		}
	}

	if err := m.businesses.SetPeerGroup(ctx, b.ID, match.GroupID); err != nil {
		// Group assignment is bookkeeping; the benchmark still stands.
		m.log.Warn().Err(err).Str("business", b.ID).Msg("failed to record peer group")
	}

	siteIDs := make([]string, 0, len(match.Peers))
	for _, p := range match.Peers {
		siteIDs = append(siteIDs, p.SiteID)
	}
	peerSessions, err := m.sessions.SessionsForSites(ctx, siteIDs, from, to)
	if err != nil {
		return Benchmark{}, fmt.Errorf("load peer sessions: %w", err)
	}
	if len(peerSessions) < m.cfg.MinSessions {
		return Benchmark{}, &pipeline.InsufficientDataError{
			Reason: fmt.Sprintf("peer group has %d sessions, need %d", len(peerSessions), m.cfg.MinSessions),
		}
	}

	ownSessions, err := m.sessions.SessionsInWindow(ctx, b.SiteID, from, to)
	if err != nil {
		return Benchmark{}, fmt.Errorf("load own sessions: %w", err)
	}

	return Benchmark{
		Tier:      match.Tier,
		GroupSize: len(match.Peers),
		Peers:     SessionMetrics(peerSessions),
		Own:       SessionMetrics(ownSessions),
	}, nil
}

// SessionMetrics computes the aggregate metrics over a session sample. Cart
// abandonment is measured over the sessions that reached a cart page.
func SessionMetrics(sessions []models.Session) Metrics {
	m := Metrics{SessionCount: len(sessions)}
	if len(sessions) == 0 {
		return m
	}

	var converted, cartVisits, cartAbandoned int
	var orderTotal float64
	var orders int
	for _, s := range sessions {
		if s.Converted {
			converted++
			if s.OrderValue != nil {
				orderTotal += *s.OrderValue
				orders++
			}
		}
		if visitedCart(s) {
			cartVisits++
			if !s.Converted {
				cartAbandoned++
			}
		}
	}

	m.ConversionRate = float64(converted) / float64(len(sessions))
	if cartVisits > 0 {
		m.CartAbandonmentRate = float64(cartAbandoned) / float64(cartVisits)
	}
	if orders > 0 {
		m.AvgOrderValue = orderTotal / float64(orders)
	}
	return m
}

func visitedCart(s models.Session) bool {
	for _, page := range s.JourneyPath {
		if strings.Contains(strings.ToLower(page), "cart") {
			return true
		}
	}
	return false
}

// Jaccard returns |A ∩ B| / |A ∪ B| over normalized product types; 0 when
// both sets are empty.
func Jaccard(a, b []string) float64 {
	setA := normalize(a)
	setB := normalize(b)
	if len(setA) == 0 && len(setB) == 0 {
		return 0
	}

	intersection := 0
	for t := range setA {
		if setB[t] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}

func normalize(types []string) map[string]bool {
	set := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func equalFold(a, b string) bool {
	return a != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func groupID(tier Tier, b models.Business) string {
	switch tier {
	case TierStrict, TierRelaxed:
		return fmt.Sprintf("%s:%s:%s", tier, slug(b.Industry), slug(b.RevenueRange))
	case TierBroad:
		return fmt.Sprintf("%s:%s", tier, slug(b.Industry))
	default:
		return fmt.Sprintf("%s:%s", tier, slug(b.Platform))
	}
}

func slug(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "-")
}
