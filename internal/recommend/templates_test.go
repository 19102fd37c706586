package recommend

import (
	"strings"
	"testing"

	"github.com/storesight/storesight/internal/models"
)

func abandonPattern(stage string, rate float64) models.Pattern {
	return models.Pattern{
		Type: models.PatternAbandonment,
		Metadata: models.AbandonmentMetadata{
			Stage:       stage,
			AbandonRate: rate,
		},
	}
}

func hesitationPattern(field string, rate float64) models.Pattern {
	return models.Pattern{
		Type: models.PatternHesitation,
		Metadata: models.HesitationMetadata{
			Field:       field,
			ReentryRate: rate,
		},
	}
}

func TestMatchTemplatePicksContextBeforeFallback(t *testing.T) {
	tests := []struct {
		name    string
		pattern models.Pattern
		wantKey string
	}{
		{"cart stage", abandonPattern("/cart", 0.5), "cart-abandonment"},
		{"checkout stage", abandonPattern("/checkout/shipping", 0.5), "checkout-friction"},
		{"generic stage", abandonPattern("/products/shoes", 0.5), "funnel-drop"},
		{"card field", hesitationPattern("card_number", 0.3), "payment-trust"},
		{"cvv field", hesitationPattern("cvv", 0.3), "payment-trust"},
		{"generic field", hesitationPattern("shipping_address", 0.3), "form-friction"},
		{
			"low engagement page",
			models.Pattern{
				Type: models.PatternLowEngagement,
				Metadata: models.EngagementMetadata{
					Page: "/about", AvgSeconds: 5, SiteAvgSeconds: 20,
				},
			},
			"page-engagement",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tpl, ok := matchTemplate(tt.pattern)
			if !ok {
				t.Fatal("no template matched")
			}
			if tpl.Key != tt.wantKey {
				t.Errorf("matched %s, want %s", tpl.Key, tt.wantKey)
			}
		})
	}
}

func TestEveryFamilyHasAFallback(t *testing.T) {
	patterns := []models.Pattern{
		abandonPattern("/anything", 0.9),
		hesitationPattern("anything", 0.9),
		{Type: models.PatternLowEngagement, Metadata: models.EngagementMetadata{Page: "/x", AvgSeconds: 1, SiteAvgSeconds: 10}},
	}
	for _, p := range patterns {
		if _, ok := matchTemplate(p); !ok {
			t.Errorf("pattern type %s matched no template", p.Type)
		}
	}
}

func TestConversionWeightsByFamily(t *testing.T) {
	tests := []struct {
		pattern models.Pattern
		want    float64
	}{
		{abandonPattern("/cart", 0.5), 1.0},
		{hesitationPattern("email", 0.3), 0.8},
		{models.Pattern{Type: models.PatternLowEngagement, Metadata: models.EngagementMetadata{Page: "/x", AvgSeconds: 2, SiteAvgSeconds: 10}}, 0.5},
	}
	for _, tt := range tests {
		tpl, ok := matchTemplate(tt.pattern)
		if !ok {
			t.Fatalf("no template for %s", tt.pattern.Type)
		}
		if tpl.ConversionWeight != tt.want {
			t.Errorf("%s weight = %v, want %v", tpl.Key, tpl.ConversionWeight, tt.want)
		}
	}
}

func TestRenderProblemFillsRateAndTarget(t *testing.T) {
	p := abandonPattern("/cart", 0.65)
	tpl, _ := matchTemplate(p)
	got := renderProblem(tpl, p)
	if !strings.Contains(got, "65%") {
		t.Errorf("problem %q missing rounded rate", got)
	}
	if !strings.Contains(got, "/cart") {
		t.Errorf("problem %q missing target", got)
	}
}

func TestRenderProblemEngagementRate(t *testing.T) {
	p := models.Pattern{
		Type: models.PatternLowEngagement,
		Metadata: models.EngagementMetadata{
			Page: "/about", AvgSeconds: 5, SiteAvgSeconds: 20,
		},
	}
	tpl, _ := matchTemplate(p)
	got := renderProblem(tpl, p)
	// 1 - 5/20 = 75% less time than the site average.
	if !strings.Contains(got, "75%") {
		t.Errorf("problem %q missing computed engagement gap", got)
	}
}
