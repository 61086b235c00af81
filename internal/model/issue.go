package model

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
)

// Issue is one structured data point the interview sets out to elicit.
type Issue struct {
	Field      string `json:"field" yaml:"field"`
	Question   string `json:"question" yaml:"question"`
	Category   string `json:"category" yaml:"category"`
	Importance int    `json:"importance" yaml:"importance"`
	Status     string `json:"status,omitempty" yaml:"status,omitempty"`
}

// Catalog is the ordered, immutable set of issues for one session.
// Order encodes priority: earlier issues are asked first.
type Catalog struct {
	issues  []Issue
	byField map[string]int
}

// NewCatalog validates issues and returns a catalog stable-sorted by
// importance (lower first). Fields must be non-empty and unique.
func NewCatalog(issues []Issue) (*Catalog, error) {
	sorted := make([]Issue, len(issues))
	copy(sorted, issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Importance < sorted[j].Importance
	})

	c := &Catalog{
		issues:  sorted,
		byField: make(map[string]int, len(sorted)),
	}
	for i := range c.issues {
		iss := &c.issues[i]
		iss.Field = strings.TrimSpace(iss.Field)
		if iss.Field == "" {
			return nil, eris.Errorf("catalog: issue %d has no field", i)
		}
		if strings.TrimSpace(iss.Question) == "" {
			return nil, eris.Errorf("catalog: issue %q has no question", iss.Field)
		}
		if _, dup := c.byField[iss.Field]; dup {
			return nil, eris.Errorf("catalog: duplicate field %q", iss.Field)
		}
		c.byField[iss.Field] = i
	}
	return c, nil
}

// Len returns the number of issues in the catalog.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.issues)
}

// Issues returns a copy of the issues in priority order.
func (c *Catalog) Issues() []Issue {
	if c == nil {
		return nil
	}
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// Fields returns the field keys in priority order.
func (c *Catalog) Fields() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.issues))
	for i, iss := range c.issues {
		out[i] = iss.Field
	}
	return out
}

// Has reports whether field is an exact catalog key.
func (c *Catalog) Has(field string) bool {
	if c == nil {
		return false
	}
	_, ok := c.byField[field]
	return ok
}

// ByField returns the issue for field, or nil if it is not in the catalog.
func (c *Catalog) ByField(field string) *Issue {
	if c == nil {
		return nil
	}
	i, ok := c.byField[field]
	if !ok {
		return nil
	}
	iss := c.issues[i]
	return &iss
}

// MarshalJSON encodes the catalog as its ordered issue list.
func (c *Catalog) MarshalJSON() ([]byte, error) {
	issues := c.Issues()
	if issues == nil {
		issues = []Issue{}
	}
	return json.Marshal(issues)
}

// UnmarshalJSON decodes and validates an ordered issue list.
func (c *Catalog) UnmarshalJSON(data []byte) error {
	var issues []Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return eris.Wrap(err, "catalog: unmarshal")
	}
	parsed, err := NewCatalog(issues)
	if err != nil {
		return err
	}
	*c = *parsed
	return nil
}
