package models

import (
	"context"
	"time"
)

// PlatformMetrics is the single normalized metrics shape every platform
// adapter produces. Raw platform responses never cross the adapter boundary.
type PlatformMetrics struct {
	Platform    Platform `json:"platform"`
	Leads       int64    `json:"leads"`
	Spend       float64  `json:"spend"`
	Impressions int64    `json:"impressions"`
	Clicks      int64    `json:"clicks"`
	CostPerLead float64  `json:"cost_per_lead"`
	CTR         float64  `json:"ctr"`
	Available   bool     `json:"available"`
	Error       string   `json:"error,omitempty"`
}

// Derive fills in the computed rate fields from the raw counters.
func (m *PlatformMetrics) Derive() {
	if m.Leads > 0 {
		m.CostPerLead = m.Spend / float64(m.Leads)
	} else {
		m.CostPerLead = 0
	}

	if m.Impressions > 0 {
		m.CTR = float64(m.Clicks) / float64(m.Impressions)
	} else {
		m.CTR = 0
	}
}

// Unavailable returns the marker section recorded for a platform whose
// fetch failed. Partial results are preferred over total failure.
func Unavailable(p Platform, reason string) *PlatformMetrics {
	return &PlatformMetrics{Platform: p, Available: false, Error: reason}
}

// Totals holds cross-platform sums with the same derived fields.
type Totals struct {
	Leads       int64   `json:"leads"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CostPerLead float64 `json:"cost_per_lead"`
	CTR         float64 `json:"ctr"`
}

// Add accumulates one platform section into the totals. Unavailable
// sections contribute nothing.
func (t *Totals) Add(m *PlatformMetrics) {
	if m == nil || !m.Available {
		return
	}

	t.Leads += m.Leads
	t.Spend += m.Spend
	t.Impressions += m.Impressions
	t.Clicks += m.Clicks
}

// Derive fills in the computed rate fields from the accumulated counters.
func (t *Totals) Derive() {
	if t.Leads > 0 {
		t.CostPerLead = t.Spend / float64(t.Leads)
	} else {
		t.CostPerLead = 0
	}

	if t.Impressions > 0 {
		t.CTR = float64(t.Clicks) / float64(t.Impressions)
	} else {
		t.CTR = 0
	}
}

// DashboardAggregate is the merged, cross-platform dashboard result for one
// client and date range. It is never mutated once cached; a rebuild
// replaces it wholesale.
type DashboardAggregate struct {
	ClientID    string                        `json:"client_id"`
	Range       DateRange                     `json:"range"`
	Platforms   map[Platform]*PlatformMetrics `json:"platforms"`
	Totals      Totals                        `json:"totals"`
	Previous    *Totals                       `json:"previous,omitempty"`
	GeneratedAt time.Time                     `json:"generated_at"`
}

// Client is the directory entry mapping a dashboard client to its external
// account ids per platform. An account value of "none" or an absent entry
// means the platform is not connected for that client.
type Client struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Accounts map[Platform]string `json:"accounts"`
}

// AccountFor returns the external account id for a platform, or false when
// the platform is not configured for this client.
func (c *Client) AccountFor(p Platform) (string, bool) {
	id, ok := c.Accounts[p]
	if !ok || id == "" || id == "none" {
		return "", false
	}

	return id, true
}

// ClientDirectory resolves dashboard clients to their platform accounts.
type ClientDirectory interface {
	GetClientByID(ctx context.Context, id string) (*Client, error)
}
