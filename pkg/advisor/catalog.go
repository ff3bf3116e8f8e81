package advisor

import (
	_ "embed"
	"fmt"
	"math/rand/v2"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/coreai-dashboard/pkg/allocation"
)

// Action types attached to an insight.
const (
	ActionRebalance  = "rebalance"
	ActionTrade      = "trade"
	ActionProtection = "protection"
	ActionAnalysis   = "analysis"
)

type Action struct {
	Type        string              `json:"type" yaml:"type"`
	Description string              `json:"description" yaml:"description"`
	Changes     []allocation.Change `json:"changes,omitempty" yaml:"changes"`
}

type Insight struct {
	Type    string  `json:"type" yaml:"type"`
	Content string  `json:"content" yaml:"content"`
	Action  *Action `json:"action,omitempty" yaml:"action"`
}

//go:embed insights.yaml
var defaultInsights []byte

// Catalog is the canned set of market insights used for rule-based replies.
type Catalog struct {
	insights []Insight
	pick     func(n int) int
}

// LoadCatalog reads insights from path, or the built-in set when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultInsights
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read insights: %w", err)
		}
		data = b
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var insights []Insight
	if err := yaml.Unmarshal(data, &insights); err != nil {
		return nil, fmt.Errorf("parse insights: %w", err)
	}
	if len(insights) == 0 {
		return nil, fmt.Errorf("insight catalog is empty")
	}
	for i, in := range insights {
		if in.Type == "" || in.Content == "" {
			return nil, fmt.Errorf("insight %d: type and content are required", i)
		}
	}
	return &Catalog{insights: insights, pick: rand.IntN}, nil
}

func (c *Catalog) Len() int {
	return len(c.insights)
}

// ByType returns a copy of the first insight of the given type.
func (c *Catalog) ByType(t string) (Insight, bool) {
	for _, in := range c.insights {
		if in.Type == t {
			return in.clone(), true
		}
	}
	return Insight{}, false
}

func (c *Catalog) Random() Insight {
	return c.insights[c.pick(len(c.insights))].clone()
}

// ── keyword routing ──

var wordCache = map[string]*regexp.Regexp{}

type route struct {
	keywords []string
	insight  string
}

// Order matters: the first route with a matching keyword wins.
var routes = []route{
	{[]string{"bitcoin", "btc"}, "bigcap"},
	{[]string{"ai", "artificial intelligence"}, "innovation"},
	{[]string{"defi", "yield"}, "yield"},
	{[]string{"risk", "safe"}, "security"},
	{[]string{"meme", "nft"}, "risk"},
	{[]string{"layer 1", "l1", "blockchain"}, "layer1"},
	{[]string{"stable", "usdt", "usdc"}, "stablecoin"},
	{[]string{"rwa", "real world"}, "rwa"},
	{[]string{"rebalance", "portfolio"}, "balanced"},
	{[]string{"regulation", "compliance"}, "regulatory"},
}

func init() {
	for _, r := range routes {
		for _, k := range r.keywords {
			if len(k) <= 3 {
				wordCache[k] = regexp.MustCompile(`\b` + regexp.QuoteMeta(k) + `\b`)
			}
		}
	}
}

// Match picks the insight best suited to a user message. Short keywords such as
// "ai" only match whole words so "said" or "again" do not route to AI.
// Messages with no recognised topic get a random insight.
func (c *Catalog) Match(message string) Insight {
	msg := strings.ToLower(message)
	for _, r := range routes {
		for _, k := range r.keywords {
			hit := false
			if re, ok := wordCache[k]; ok {
				hit = re.MatchString(msg)
			} else {
				hit = strings.Contains(msg, k)
			}
			if !hit {
				continue
			}
			if in, ok := c.ByType(r.insight); ok {
				return in
			}
		}
	}
	return c.Random()
}

// Adapt returns a copy of the insight with its changes rebased onto live.
func Adapt(in Insight, live map[string]int) Insight {
	out := in.clone()
	if out.Action != nil && len(out.Action.Changes) > 0 {
		out.Action.Changes = allocation.Reconcile(out.Action.Changes, live)
	}
	return out
}

func (in Insight) clone() Insight {
	out := in
	out.Action = in.Action.Clone()
	return out
}

// Clone deep-copies an action.
func (a *Action) Clone() *Action {
	if a == nil {
		return nil
	}
	out := *a
	out.Changes = append([]allocation.Change(nil), a.Changes...)
	return &out
}
