package recommend

import (
	"fmt"
	"math"
	"strings"

	"github.com/storesight/storesight/internal/models"
)

// Template is the static content a matched pattern is rendered into.
// ConversionWeight reflects how directly the underlying problem affects
// conversion: abandonment highest, hesitation medium, engagement lower since
// engagement precedes rather than causes conversion.
type Template struct {
	Key              string
	Title            string
	Problem          string // fmt verbs: %s target, %d rate percent
	Steps            []string
	ExpectedImpact   string
	ConversionWeight float64
}

// rule pairs a context matcher with its template. Rules are evaluated in
// order; the first match wins. Every pattern family ends with a catch-all
// rule, so matchTemplate always finds a template.
type rule struct {
	match func(models.Pattern) bool
	tpl   Template
}

func stageContains(sub string) func(models.Pattern) bool {
	return func(p models.Pattern) bool {
		m, ok := p.Metadata.(models.AbandonmentMetadata)
		return ok && strings.Contains(strings.ToLower(m.Stage), sub)
	}
}

func fieldContains(subs ...string) func(models.Pattern) bool {
	return func(p models.Pattern) bool {
		m, ok := p.Metadata.(models.HesitationMetadata)
		if !ok {
			return false
		}
		field := strings.ToLower(m.Field)
		for _, sub := range subs {
			if strings.Contains(field, sub) {
				return true
			}
		}
		return false
	}
}

func isType(t models.PatternType) func(models.Pattern) bool {
	return func(p models.Pattern) bool { return p.Type == t }
}

// rules is the ordered template table. Specific contexts come before each
// family's fallback.
var rules = []rule{
	{
		match: stageContains("cart"),
		tpl: Template{
			Key:     "cart-abandonment",
			Title:   "Recover abandoned carts",
			Problem: "%d%% of shoppers who reach %s leave without buying.",
			Steps: []string{
				"Show shipping costs and delivery estimates on the cart page",
				"Add a persistent cart summary with a prominent checkout button",
				"Send a cart-recovery email within an hour of abandonment",
			},
			ExpectedImpact:   "Recovering even a tenth of abandoned carts typically lifts revenue 5-10%.",
			ConversionWeight: 1.0,
		},
	},
	{
		match: stageContains("checkout"),
		tpl: Template{
			Key:     "checkout-friction",
			Title:   "Streamline the checkout flow",
			Problem: "%d%% of shoppers abandon during checkout at %s.",
			Steps: []string{
				"Offer guest checkout before asking for an account",
				"Cut optional form fields and enable browser autofill",
				"Display accepted payment methods and security badges upfront",
			},
			ExpectedImpact:   "Simplified checkouts commonly convert 10-20% more of the sessions that reach them.",
			ConversionWeight: 1.0,
		},
	},
	{
		match: isType(models.PatternAbandonment),
		tpl: Template{
			Key:     "funnel-drop",
			Title:   "Reduce drop-off in the purchase funnel",
			Problem: "%d%% of visitors stop at %s instead of moving deeper into the funnel.",
			Steps: []string{
				"Add a clear next-step call to action on the page",
				"Surface social proof (reviews, ratings) near the decision point",
				"Check page load time; every extra second increases drop-off",
			},
			ExpectedImpact:   "Closing a funnel leak compounds through every later stage.",
			ConversionWeight: 1.0,
		},
	},
	{
		match: fieldContains("card", "payment", "cvv"),
		tpl: Template{
			Key:     "payment-trust",
			Title:   "Build trust at the payment step",
			Problem: "%d%% of shoppers hesitate on the %s field, a classic trust signal.",
			Steps: []string{
				"Show card-network logos and an SSL/security badge beside the field",
				"Use inline validation so errors appear as the user types",
				"Offer a wallet option (Apple Pay, PayPal) to skip manual entry",
			},
			ExpectedImpact:   "Reducing payment hesitation recovers shoppers at the most expensive point to lose them.",
			ConversionWeight: 0.8,
		},
	},
	{
		match: isType(models.PatternHesitation),
		tpl: Template{
			Key:     "form-friction",
			Title:   "Simplify a confusing form field",
			Problem: "%d%% of users re-enter the %s field before submitting.",
			Steps: []string{
				"Add placeholder text and an example of the expected format",
				"Validate inline with a specific error message, not a generic one",
				"Consider whether the field can be dropped or auto-filled",
			},
			ExpectedImpact:   "Cleaner forms complete more often and generate fewer support contacts.",
			ConversionWeight: 0.8,
		},
	},
	{
		match: isType(models.PatternLowEngagement),
		tpl: Template{
			Key:     "page-engagement",
			Title:   "Improve a low-engagement page",
			Problem: "Visitors spend %d%% less time on %s than on the rest of the site.",
			Steps: []string{
				"Move the key message and imagery above the fold",
				"Tighten the copy; lead with benefits, not features",
				"Add an internal link or product carousel to give visitors a next step",
			},
			ExpectedImpact:   "Engaged visitors view more pages and convert at a higher rate downstream.",
			ConversionWeight: 0.5,
		},
	},
}

// matchTemplate returns the first template whose matcher accepts the
// pattern, and whether any rule matched.
func matchTemplate(p models.Pattern) (Template, bool) {
	for _, r := range rules {
		if r.match(p) {
			return r.tpl, true
		}
	}
	return Template{}, false
}

// renderProblem fills a template's problem statement from the pattern's rate
// and target.
func renderProblem(tpl Template, p models.Pattern) string {
	pct := int(math.Round(patternRate(p) * 100))
	return fmt.Sprintf(tpl.Problem, pct, p.Metadata.Target())
}

// patternRate extracts the family-specific rate from a pattern's metadata.
func patternRate(p models.Pattern) float64 {
	switch m := p.Metadata.(type) {
	case models.AbandonmentMetadata:
		return m.AbandonRate
	case models.HesitationMetadata:
		return m.ReentryRate
	case models.EngagementMetadata:
		if m.SiteAvgSeconds > 0 {
			return 1 - m.AvgSeconds/m.SiteAvgSeconds
		}
	}
	return 0
}
