// Package recommend converts detected patterns into ranked, explainable,
// deduplicated action items and manages their lifecycle.
package recommend

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/storesight/storesight/internal/models"
	"github.com/storesight/storesight/internal/store"
)

// PeerProvider supplies the peer group used for success narratives. The
// peer package implements it; the indirection keeps this package free of a
// dependency on matching internals.
type PeerProvider interface {
	Peers(ctx context.Context, business models.Business) ([]models.Business, error)
}

// Params scopes one generation run.
type Params struct {
	BusinessID string
	SiteID     string
	From, To   time.Time
	// SeverityFloor drops patterns below it before templating.
	SeverityFloor float64
	// MaxResults truncates the ranked candidate list (default 5).
	MaxResults int
	// IncludePeerData attaches a peer-success narrative where peers exist.
	IncludePeerData bool
}

// Engine maps patterns to recommendation templates, scores and ranks the
// candidates, and persists the survivors.
type Engine struct {
	patterns   store.PatternStore
	recs       store.RecommendationStore
	businesses store.BusinessStore
	peers      PeerProvider
	log        zerolog.Logger
	now        func() time.Time
}

// NewEngine builds the engine. peers may be nil when peer data is never
// requested.
func NewEngine(patterns store.PatternStore, recs store.RecommendationStore, businesses store.BusinessStore, peers PeerProvider, log zerolog.Logger) *Engine {
	return &Engine{
		patterns:   patterns,
		recs:       recs,
		businesses: businesses,
		peers:      peers,
		log:        log.With().Str("component", "recommend").Logger(),
		now:        time.Now,
	}
}

// candidate pairs a templated pattern with its generation-time score.
type candidate struct {
	pattern     models.Pattern
	tpl         Template
	impactScore float64
}

// Generate runs one generation pass and returns the recommendations actually
// created (duplicates of unaddressed NEW recommendations are skipped).
func (e *Engine) Generate(ctx context.Context, p Params) ([]models.Recommendation, error) {
	if p.MaxResults <= 0 {
		p.MaxResults = 5
	}

	patterns, err := e.patterns.PatternsBySite(ctx, p.SiteID, p.From, p.To, p.SeverityFloor)
	if err != nil {
		return nil, fmt.Errorf("load patterns for %s: %w", p.SiteID, err)
	}
	if len(patterns) == 0 {
		return nil, nil
	}

	candidates := make([]candidate, 0, len(patterns))
	for _, pat := range patterns {
		tpl, ok := matchTemplate(pat)
		if !ok {
			e.log.Warn().Str("pattern", pat.ID).Str("type", string(pat.Type)).
				Msg("no template matched pattern")
			continue
		}
		candidates = append(candidates, candidate{
			pattern:     pat,
			tpl:         tpl,
			impactScore: pat.Severity * tpl.ConversionWeight,
		})
	}

	// Generation-time ordering: impactScore descending, newest detection
	// first on ties. Distinct from the display-time product ordering.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].impactScore != candidates[j].impactScore {
			return candidates[i].impactScore > candidates[j].impactScore
		}
		return candidates[i].pattern.DetectedAt.After(candidates[j].pattern.DetectedAt)
	})
	if len(candidates) > p.MaxResults {
		candidates = candidates[:p.MaxResults]
	}

	var peerIDs []string
	if p.IncludePeerData && e.peers != nil {
		business, err := e.businesses.GetBusiness(ctx, p.BusinessID)
		if err != nil {
			return nil, fmt.Errorf("load business %s: %w", p.BusinessID, err)
		}
		peers, err := e.peers.Peers(ctx, business)
		if err != nil {
			// Peer data enriches but never blocks generation.
			e.log.Warn().Err(err).Str("business", p.BusinessID).Msg("peer lookup failed")
		}
		for _, peer := range peers {
			peerIDs = append(peerIDs, peer.ID)
		}
	}

	createdAt := e.now().UTC()
	var created []models.Recommendation
	for _, c := range candidates {
		rec := models.Recommendation{
			ID:                uuid.New().String(),
			BusinessID:        p.BusinessID,
			TemplateKey:       c.tpl.Key,
			Target:            c.pattern.Metadata.Target(),
			Title:             c.tpl.Title,
			Problem:           renderProblem(c.tpl, c.pattern),
			Steps:             c.tpl.Steps,
			ExpectedImpact:    c.tpl.ExpectedImpact,
			ImpactLevel:       ImpactLevel(c.pattern.Severity),
			ConfidenceLevel:   ConfidenceLevel(c.pattern.ConfidenceScore),
			Status:            models.RecStatusNew,
			CreatedAt:         createdAt,
			PatternDetectedAt: c.pattern.DetectedAt,
		}

		if len(peerIDs) > 0 {
			count, improvement, err := e.recs.PeerImplementationStats(ctx, peerIDs, c.tpl.Key)
			if err != nil {
				e.log.Warn().Err(err).Str("template", c.tpl.Key).Msg("peer stats failed")
			} else if count >= 1 {
				rec.PeerInsight = fmt.Sprintf(
					"%d similar stores implemented this and saw %.0f%% average improvement",
					count, improvement)
			}
		}

		inserted, err := e.recs.CreateRecommendation(ctx, rec)
		if err != nil {
			return created, fmt.Errorf("persist recommendation %q: %w", c.tpl.Key, err)
		}
		if !inserted {
			e.log.Debug().Str("template", c.tpl.Key).Str("target", rec.Target).
				Msg("open recommendation exists, skipping")
			continue
		}
		created = append(created, rec)
	}

	return created, nil
}
