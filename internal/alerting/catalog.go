package alerting

import (
	"fmt"
	"sync/atomic"

	"github.com/good-yellow-bee/staleguard/internal/models"
)

// Catalog is a validated, ordered list of alert rules.
type Catalog struct {
	rules []*Rule
}

// NewCatalog validates rules and builds a catalog.
// Rules must be sorted strictly ascending by DayThreshold, levels must not
// decrease along the thresholds, and a rule with a higher level than an
// earlier rule must not be less frequent than it.
func NewCatalog(rules []*Rule) (*Catalog, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one rule")
	}

	for i, rule := range rules {
		if rule == nil {
			return nil, fmt.Errorf("rule at index %d is empty", i)
		}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("invalid rule at index %d: %w", i, err)
		}
	}

	for i := 1; i < len(rules); i++ {
		prev, cur := rules[i-1], rules[i]
		if cur.DayThreshold <= prev.DayThreshold {
			return nil, fmt.Errorf("rules must be sorted by ascending days: %dd follows %dd",
				cur.DayThreshold, prev.DayThreshold)
		}
		if cur.Level.Rank() < prev.Level.Rank() {
			return nil, fmt.Errorf("rule %s has a lower level than preceding rule %s",
				cur.Name(), prev.Name())
		}
	}

	for i := range rules {
		for j := i + 1; j < len(rules); j++ {
			lower, higher := rules[i], rules[j]
			if higher.Level.Rank() > lower.Level.Rank() && higher.BaseFrequencyHours > lower.BaseFrequencyHours {
				return nil, fmt.Errorf("rule %s (every %dh) must be at least as frequent as %s (every %dh)",
					higher.Name(), higher.BaseFrequencyHours, lower.Name(), lower.BaseFrequencyHours)
			}
		}
	}

	copied := make([]*Rule, len(rules))
	copy(copied, rules)
	return &Catalog{rules: copied}, nil
}

// DefaultCatalog returns the built-in rule catalog.
func DefaultCatalog() *Catalog {
	cat, err := NewCatalog(defaultRules())
	if err != nil {
		panic(fmt.Sprintf("default catalog is invalid: %v", err))
	}
	return cat
}

func defaultRules() []*Rule {
	return []*Rule{
		{
			DayThreshold:       7,
			Level:              models.LevelInfo,
			BaseFrequencyHours: 168,
			Recipients:         RecipientProjectManager,
			SubjectTemplate:    "[Info] Proposal {{.EntityID}} ({{.Client}}) has had no movement for {{.AgeDays}} days",
			MessageTemplate: "Proposal {{.EntityID}} for {{.Client}}, owned by {{.Owner}}, has been in status " +
				"\"{{.Status}}\" for {{.AgeDays}} days without movement.\n" +
				"Proposed amount: {{.ProposedAmount}}. Please check whether follow-up is needed.",
		},
		{
			DayThreshold:       14,
			Level:              models.LevelWarning,
			BaseFrequencyHours: 96,
			Recipients:         RecipientProjectManager,
			SubjectTemplate:    "[Warning] Proposal {{.EntityID}} ({{.Client}}) idle for {{.AgeDays}} days",
			MessageTemplate: "Proposal {{.EntityID}} for {{.Client}} has not moved for {{.AgeDays}} days.\n" +
				"Status: {{.Status}}. Proposed amount: {{.ProposedAmount}}. Owner: {{.Owner}}.\n" +
				"Contact the client or update the proposal status.",
		},
		{
			DayThreshold:       21,
			Level:              models.LevelUrgent,
			BaseFrequencyHours: 72,
			Recipients:         RecipientController,
			SubjectTemplate:    "[Urgent] Proposal {{.EntityID}} ({{.Client}}) stalled for {{.AgeDays}} days",
			MessageTemplate: "Proposal {{.EntityID}} for {{.Client}} has been stalled for {{.AgeDays}} days.\n" +
				"Proposed: {{.ProposedAmount}}. Approved: {{.ApprovedAmount}}. Owner: {{.Owner}}.\n" +
				"Controller review is required.",
		},
		{
			DayThreshold:       28,
			Level:              models.LevelUrgent,
			BaseFrequencyHours: 48,
			Recipients:         RecipientAll,
			SubjectTemplate:    "[Urgent] Proposal {{.EntityID}} ({{.Client}}) close to critical: {{.AgeDays}} days",
			MessageTemplate: "Proposal {{.EntityID}} for {{.Client}} will become critical soon ({{.AgeDays}} days without movement).\n" +
				"Proposed: {{.ProposedAmount}}. Approved: {{.ApprovedAmount}}. Owner: {{.Owner}}.",
		},
		{
			DayThreshold:       CriticalThresholdDays,
			Level:              models.LevelCritical,
			BaseFrequencyHours: 24,
			Recipients:         RecipientAll,
			SubjectTemplate:    "[CRITICAL] Proposal {{.EntityID}} ({{.Client}}) without movement for {{.AgeDays}} days",
			MessageTemplate: "Proposal {{.EntityID}} for {{.Client}} is critical: {{.AgeDays}} days without movement.\n" +
				"Status: {{.Status}}. Proposed: {{.ProposedAmount}}. Approved: {{.ApprovedAmount}}. Owner: {{.Owner}}.\n" +
				"Immediate action is required.",
		},
	}
}

// Rules returns a copy of the catalog rules in ascending order.
func (c *Catalog) Rules() []*Rule {
	result := make([]*Rule, len(c.rules))
	copy(result, c.rules)
	return result
}

// Len returns the number of rules.
func (c *Catalog) Len() int {
	return len(c.rules)
}

// Rule returns the rule with the given threshold, or nil.
func (c *Catalog) Rule(dayThreshold int) *Rule {
	for _, r := range c.rules {
		if r.DayThreshold == dayThreshold {
			return r
		}
	}
	return nil
}

// Triggered returns every rule whose threshold is met, ascending.
// Triggering is cumulative: an entity at 35 days triggers all rules up to 30d.
func (c *Catalog) Triggered(ageDays int) []*Rule {
	var result []*Rule
	for _, r := range c.rules {
		if r.DayThreshold > ageDays {
			break
		}
		result = append(result, r)
	}
	return result
}

// Highest returns the most urgent triggered rule, or nil.
func (c *Catalog) Highest(ageDays int) *Rule {
	triggered := c.Triggered(ageDays)
	if len(triggered) == 0 {
		return nil
	}
	return triggered[len(triggered)-1]
}

// CatalogHolder holds the active catalog and allows atomic replacement.
type CatalogHolder struct {
	current atomic.Pointer[Catalog]
}

// NewCatalogHolder creates a holder for the given catalog.
func NewCatalogHolder(c *Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	h.current.Store(c)
	return h
}

// Current returns the active catalog.
func (h *CatalogHolder) Current() *Catalog {
	return h.current.Load()
}

// Store replaces the active catalog.
func (h *CatalogHolder) Store(c *Catalog) {
	h.current.Store(c)
}
