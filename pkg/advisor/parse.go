package advisor

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/coreai-dashboard/pkg/allocation"
)

// placeholderFrom stands in for the unknown current value in "by N%" phrasing.
// Only the delta survives reconciliation, so any in-range value works.
const placeholderFrom = 15

var (
	increaseFromToRe = regexp.MustCompile(`(?i)increase\s+(\w+(?:\s+\w+)*?)\s+from\s+(\d+)%\s+to\s+(\d+)%`)
	decreaseFromToRe = regexp.MustCompile(`(?i)decrease\s+(\w+(?:\s+\w+)*?)\s+from\s+(\d+)%\s+to\s+(\d+)%`)
	increaseByRe     = regexp.MustCompile(`(?i)increase\s+(\w+(?:\s+\w+)*?)\s+by\s+(\d+)%`)
	decreaseByRe     = regexp.MustCompile(`(?i)decrease\s+(\w+(?:\s+\w+)*?)\s+by\s+(\d+)%`)
	allocateRe       = regexp.MustCompile(`(?i)allocate\s+(\d+)%\s+to\s+(\w+(?:\s+\w+)*)`)

	priceOfRe     = regexp.MustCompile(`(?i)price\s+of\s+([a-z0-9]+)`)
	symbolPriceRe = regexp.MustCompile(`(?i)\b([a-z0-9]+)\s+price`)
	aboutRe       = regexp.MustCompile(`(?i)about\s+([a-z0-9]+)`)
	tickerRe      = regexp.MustCompile(`\$([A-Za-z][A-Za-z0-9]{1,10})\b`)

	actionTriggerRe = regexp.MustCompile(`(?i)allocation|portfolio|rebalance`)
)

// Category aliases a model tends to use, mapped to registry ids.
var categoryAliases = map[string]string{
	"ai":                      "ai",
	"artificial intelligence": "ai",
	"meme":                    "meme",
	"meme coin":               "meme",
	"meme coins":              "meme",
	"memes":                   "meme",
	"nft":                     "meme",
	"nfts":                    "meme",
	"rwa":                     "rwa",
	"real world assets":       "rwa",
	"big cap":                 "bigcap",
	"bigcap":                  "bigcap",
	"large cap":               "bigcap",
	"bitcoin":                 "bigcap",
	"defi":                    "defi",
	"decentralized finance":   "defi",
	"layer 1":                 "l1",
	"layer1":                  "l1",
	"l1":                      "l1",
	"stablecoin":              "stablecoin",
	"stablecoins":             "stablecoin",
	"stable":                  "stablecoin",
}

// trailing words dropped before alias lookup: "ai allocation" -> "ai"
var fillerSuffixes = []string{" allocation", " exposure", " tokens", " token", " position", " holdings"}

// ResolveCategory maps free text such as "Meme Coins" or "layer 1 exposure" to a
// registry id. An empty result means the phrase names no known category.
func ResolveCategory(phrase string, reg *allocation.Registry) string {
	p := strings.ToLower(strings.TrimSpace(phrase))
	p = strings.TrimPrefix(p, "your ")
	p = strings.TrimPrefix(p, "the ")
	for {
		trimmed := p
		for _, s := range fillerSuffixes {
			trimmed = strings.TrimSuffix(trimmed, s)
		}
		if trimmed == p {
			break
		}
		p = trimmed
	}

	id, ok := categoryAliases[p]
	if !ok {
		id = p
	}
	if reg != nil && !reg.Has(id) {
		return ""
	}
	if reg == nil && !ok {
		return ""
	}
	return id
}

// ParseAction extracts allocation changes from free model output. Explicit
// "from A% to B%" phrasing wins; "by N%" and "allocate N% to X" are used only
// when none is present. Entries that fail validation are returned as dropped.
func ParseAction(text string, reg *allocation.Registry) (*Action, []*allocation.InvalidChangeError) {
	if !actionTriggerRe.MatchString(text) {
		return nil, nil
	}

	var raws []allocation.RawChange
	add := func(phrase string, from, to int) {
		id := ResolveCategory(phrase, reg)
		if id == "" {
			return
		}
		raws = append(raws, allocation.RawChange{
			Category: id,
			From:     json.RawMessage(strconv.Itoa(from)),
			To:       json.RawMessage(strconv.Itoa(to)),
		})
	}

	for _, re := range []*regexp.Regexp{increaseFromToRe, decreaseFromToRe} {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			add(m[1], atoi(m[2]), atoi(m[3]))
		}
	}

	if len(raws) == 0 {
		for _, m := range increaseByRe.FindAllStringSubmatch(text, -1) {
			add(m[1], placeholderFrom, min(100, placeholderFrom+atoi(m[2])))
		}
		for _, m := range decreaseByRe.FindAllStringSubmatch(text, -1) {
			add(m[1], placeholderFrom, max(0, placeholderFrom-atoi(m[2])))
		}
		for _, m := range allocateRe.FindAllStringSubmatch(text, -1) {
			add(m[2], placeholderFrom, atoi(m[1]))
		}
	}

	changes, dropped, _ := allocation.ParseChanges(raws, reg, allocation.DropInvalid)
	if len(changes) == 0 {
		return nil, dropped
	}
	return &Action{
		Type:        ActionRebalance,
		Description: "Apply AI-suggested portfolio changes",
		Changes:     changes,
	}, dropped
}

// TokenQuestion returns the upper-cased symbol when the message asks about a
// specific token ("price of DEEP", "wbtc price", "about CORE", "$SMR").
func TokenQuestion(message string) string {
	if m := tickerRe.FindStringSubmatch(message); m != nil {
		return strings.ToUpper(m[1])
	}
	for _, re := range []*regexp.Regexp{priceOfRe, symbolPriceRe, aboutRe} {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			if !priceStopwords[strings.ToLower(m[1])] {
				return strings.ToUpper(m[1])
			}
		}
	}
	return ""
}

// priceStopwords are words the token patterns capture that never name a token.
var priceStopwords = map[string]bool{
	"the": true, "a": true, "an": true, "current": true, "token": true, "what": true, "its": true, "it": true,
	"my": true, "your": true, "our": true, "this": true, "that": true, "best": true,
	"portfolio": true, "allocation": true, "allocations": true, "rebalancing": true,
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
