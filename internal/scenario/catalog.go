package scenario

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

//go:embed data/scenarios.json
var builtin embed.FS

// Customer is the persona the model plays.
type Customer struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Location string `json:"location"`
}

// Step is one scripted customer line. Only the first step seeds a session.
type Step struct {
	Customer string `json:"customer"`
}

// Scenario is immutable catalog content keyed by ID.
type Scenario struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Product          string   `json:"product"`
	Customer         Customer `json:"customer"`
	SummaryHint      string   `json:"summaryHint"`
	OpeningTemplates []string `json:"openingTemplates"`
	Path             []Step   `json:"path"`
}

// productOrder ranks products on the selection screen; unknown products sort last.
var productOrder = []string{"MS Online Subscription", "MS Teams", "OneDrive", "SharePoint", "Exchange"}

// Catalog is the static, read-only scenario set.
type Catalog struct {
	scenarios []Scenario
	byID      map[string]int
}

// Builtin loads the catalog embedded in the binary.
func Builtin() (*Catalog, error) {
	b, err := builtin.ReadFile("data/scenarios.json")
	if err != nil {
		return nil, fmt.Errorf("read builtin scenarios: %w", err)
	}
	return Parse(b)
}

// Parse decodes a JSON array of scenarios. IDs must be unique and non-empty.
func Parse(data []byte) (*Catalog, error) {
	var list []Scenario
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode scenarios: %w", err)
	}
	return New(list)
}

// New builds a catalog from scenarios, kept in selection-screen order.
func New(list []Scenario) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(list))}
	for _, s := range list {
		if s.ID == "" {
			return nil, fmt.Errorf("scenario %q has no id", s.Title)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q", s.ID)
		}
		c.byID[s.ID] = -1
		c.scenarios = append(c.scenarios, s)
	}
	sort.SliceStable(c.scenarios, func(i, j int) bool {
		a, b := productRank(c.scenarios[i].Product), productRank(c.scenarios[j].Product)
		if a != b {
			return a < b
		}
		return c.scenarios[i].Title < c.scenarios[j].Title
	})
	for i, s := range c.scenarios {
		c.byID[s.ID] = i
	}
	return c, nil
}

func productRank(product string) int {
	for i, p := range productOrder {
		if p == product {
			return i
		}
	}
	return len(productOrder)
}

// All returns every scenario in display order.
func (c *Catalog) All() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

// Get looks a scenario up by id.
func (c *Catalog) Get(id string) (Scenario, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Scenario{}, false
	}
	return c.scenarios[i], true
}

// Search matches query case-insensitively against title, product and
// customer name. An empty query returns everything.
func (c *Catalog) Search(query string) []Scenario {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return c.All()
	}
	var out []Scenario
	for _, s := range c.scenarios {
		if strings.Contains(strings.ToLower(s.Title), q) ||
			strings.Contains(strings.ToLower(s.Product), q) ||
			strings.Contains(strings.ToLower(s.Customer.Name), q) {
			out = append(out, s)
		}
	}
	return out
}
