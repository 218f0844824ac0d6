package assistant

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	pricePattern    = regexp.MustCompile(`(?i)(?:under|below|less than|max|up to)\s*\$?\s*(\d+(?:\.\d{1,2})?)`)
	discountPattern = regexp.MustCompile(`(?i)(?:at least\s*)?(\d{1,2})\s*%\s*off`)
	urgencyPattern  = regexp.MustCompile(`(?i)\b(today|now|expiring|ending soon|last chance|urgent|asap)\b`)
)

// knownStores is checked in order; first case-insensitive substring match wins.
var knownStores = []string{
	"amazon", "walmart", "target", "best buy", "ebay", "costco",
	"newegg", "home depot", "lowes", "macys", "nike", "adidas", "dell", "hp",
}

// categoryKeywords maps trigger words to a canonical category. Ordered so
// the more specific triggers come first.
var categoryKeywords = []struct {
	keyword  string
	category string
}{
	{"laptop", "electronics"},
	{"phone", "electronics"},
	{"tv", "electronics"},
	{"headphone", "electronics"},
	{"earbud", "electronics"},
	{"tablet", "electronics"},
	{"monitor", "electronics"},
	{"console", "gaming"},
	{"game", "gaming"},
	{"shoe", "fashion"},
	{"sneaker", "fashion"},
	{"clothing", "fashion"},
	{"shirt", "fashion"},
	{"jacket", "fashion"},
	{"furniture", "home"},
	{"kitchen", "home"},
	{"vacuum", "home"},
	{"mattress", "home"},
	{"grocery", "grocery"},
	{"food", "grocery"},
	{"toy", "toys"},
	{"lego", "toys"},
	{"makeup", "beauty"},
	{"skincare", "beauty"},
	{"supplement", "health"},
	{"vitamin", "health"},
}

// fillerPhrases are stripped from the query to produce the search term
// passed to the tools.
var fillerPhrases = []string{
	"can you find me", "can you find", "could you find", "please find",
	"find me", "show me", "search for", "looking for", "i want", "i need",
	"are there any", "any deals on", "any deals for", "deals on", "deals for",
	"do you have", "what about",
}

// ExtractEntities pulls structured filters out of free text. Deterministic
// and side-effect free; the classifier merges model-extracted entities over
// this result.
func ExtractEntities(query string) Entities {
	var e Entities
	lower := strings.ToLower(query)

	if m := pricePattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			e.MaxPrice = &v
		}
	}
	if m := discountPattern.FindStringSubmatch(query); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			e.MinDiscount = &v
		}
	}
	for _, store := range knownStores {
		if strings.Contains(lower, store) {
			e.Store = store
			break
		}
	}
	for _, ck := range categoryKeywords {
		if strings.Contains(lower, ck.keyword) {
			e.Category = ck.category
			break
		}
	}
	if urgencyPattern.MatchString(query) {
		e.Urgency = true
	}

	e.Query = cleanQuery(lower)
	return e
}

// cleanQuery strips filler and filter phrases so the remainder works as a
// tool search term.
func cleanQuery(lower string) string {
	cleaned := lower
	for _, phrase := range fillerPhrases {
		cleaned = strings.ReplaceAll(cleaned, phrase, " ")
	}
	cleaned = pricePattern.ReplaceAllString(cleaned, " ")
	cleaned = discountPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.Trim(cleaned, " ?!.,")
	return strings.Join(strings.Fields(cleaned), " ")
}
