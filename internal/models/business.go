package models

// Business is the profile a recommendation belongs to and the input to peer
// matching. Profile CRUD lives outside this pipeline; only the similarity
// fields and the site linkage matter here.
type Business struct {
	ID           string   `json:"id"`
	SiteID       string   `json:"siteId"`
	Name         string   `json:"name"`
	Industry     string   `json:"industry"`
	RevenueRange string   `json:"revenueRange"`
	ProductTypes []string `json:"productTypes"`
	Platform     string   `json:"platform"`
	// PeerGroupID is set once similarity tiering has assigned the business
	// to a group; empty until then.
	PeerGroupID string `json:"peerGroupId,omitempty"`
}
