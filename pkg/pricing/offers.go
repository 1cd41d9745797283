package pricing

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/example/craftshop/pkg/config"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rule takes Percent percent off the subtotal.
type Rule struct {
	Percent float64 `json:"percent"`
}

func (r Rule) Apply(subtotal decimal.Decimal) decimal.Decimal {
	if r.Percent >= 100 {
		return subtotal
	}
	return subtotal.Mul(decimal.NewFromFloat(r.Percent)).Div(hundred)
}

func (r Rule) valid() bool {
	return r.Percent >= 0 && r.Percent <= 100
}

// Registry maps normalized offer codes to rules. It is safe for concurrent
// use; Replace swaps the whole table when the etcd view changes.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewRegistry(rules map[string]Rule) *Registry {
	r := &Registry{}
	r.Replace(rules)
	return r
}

// RegistryFromConfig builds the registry from the offers block of the config.
func RegistryFromConfig(offers []config.OfferConfig) (*Registry, error) {
	rules := make(map[string]Rule, len(offers))
	for _, o := range offers {
		rule := Rule{Percent: o.Percent}
		if !rule.valid() {
			return nil, fmt.Errorf("pricing: offer %s: percent %v out of range", o.Code, o.Percent)
		}
		rules[NormalizeCode(o.Code)] = rule
	}
	return NewRegistry(rules), nil
}

func (r *Registry) Lookup(code string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[NormalizeCode(code)]
	return rule, ok
}

func (r *Registry) Replace(rules map[string]Rule) {
	next := make(map[string]Rule, len(rules))
	for code, rule := range rules {
		next[NormalizeCode(code)] = rule
	}
	r.mu.Lock()
	r.rules = next
	r.mu.Unlock()
}

func (r *Registry) Codes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	codes := make([]string, 0, len(r.rules))
	for code := range r.rules {
		codes = append(codes, code)
	}
	return codes
}

// ParseRules decodes etcd values of the form {"percent": 10}, keyed by code.
func ParseRules(raw map[string]string) (map[string]Rule, error) {
	rules := make(map[string]Rule, len(raw))
	for code, value := range raw {
		var rule Rule
		if err := json.Unmarshal([]byte(value), &rule); err != nil {
			return nil, fmt.Errorf("pricing: offer %s: %w", code, err)
		}
		if !rule.valid() {
			return nil, fmt.Errorf("pricing: offer %s: percent %v out of range", code, rule.Percent)
		}
		rules[NormalizeCode(code)] = rule
	}
	return rules, nil
}

// Rules returns a copy of the current table.
func (r *Registry) Rules() map[string]Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Rule, len(r.rules))
	for code, rule := range r.rules {
		out[code] = rule
	}
	return out
}

// Combine returns base with overlay applied on top. Neither input is modified.
func Combine(base, overlay map[string]Rule) map[string]Rule {
	out := make(map[string]Rule, len(base)+len(overlay))
	for code, rule := range base {
		out[code] = rule
	}
	for code, rule := range overlay {
		out[code] = rule
	}
	return out
}
