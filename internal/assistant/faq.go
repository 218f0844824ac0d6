package assistant

import (
	"regexp"
	"strings"
)

// faqEntry is a pre-canned response that short-circuits the model entirely.
type faqEntry struct {
	pattern  *regexp.Regexp
	intent   Intent
	response string
}

// faqTable is checked in order; first match wins. All entries answer with
// confidence 1.0 and never reach the model or the tools.
var faqTable = []faqEntry{
	{
		pattern: regexp.MustCompile(`(?i)^\s*(hi|hello|hey|howdy|yo|good (morning|afternoon|evening))[\s!.?]*$`),
		intent:  IntentHelp,
		response: "Hey! I'm DealHound, your deal-finding assistant. Ask me things like \"find laptop deals under $500\", " +
			"\"any Nike coupon codes?\", or \"what's trending today?\" and I'll dig up the best the community has found.",
	},
	{
		pattern:  regexp.MustCompile(`(?i)^\s*(thanks|thank you|thx|ty|appreciate it)[\s!.?]*$`),
		intent:   IntentGeneral,
		response: "You're welcome! Happy to help you hunt down more bargains anytime.",
	},
	{
		pattern:  regexp.MustCompile(`(?i)^\s*(bye|goodbye|see you|later|cya)[\s!.?]*$`),
		intent:   IntentGeneral,
		response: "See you later! Come back whenever you're hunting for a deal.",
	},
	{
		pattern: regexp.MustCompile(`(?i)what (can|do) you do|who are you|what is this`),
		intent:  IntentHelp,
		response: "I can search community-posted deals, find coupon codes, show what's trending, compare deals, " +
			"and give buying advice. Try \"find wireless earbuds under $50\" or \"coupons for Best Buy\".",
	},
	{
		pattern: regexp.MustCompile(`(?i)how (do|can) i (start|begin|use this)`),
		intent:  IntentHelp,
		response: "Just tell me what you're shopping for! Add a price cap (\"under $100\"), a store, or a discount " +
			"floor (\"at least 30% off\") and I'll narrow it down.",
	},
}

// checkFAQ returns a canned classification for trivial queries.
func checkFAQ(message string) (Classification, bool) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Classification{}, false
	}
	for _, faq := range faqTable {
		if faq.pattern.MatchString(message) {
			return Classification{
				Intent:      faq.intent,
				Complexity:  ComplexitySimple,
				Confidence:  1.0,
				FAQResponse: faq.response,
				Source:      "faq",
			}, true
		}
	}
	return Classification{}, false
}

// intentKeywords maps each intent to its trigger patterns. The keyword tier
// only answers when exactly one intent matches; ambiguity falls through to
// the model.
var intentKeywords = map[Intent][]*regexp.Regexp{
	IntentSearch: {
		regexp.MustCompile(`(?i)\b(find|search|show|looking for|deals? (on|for)|any deals)\b`),
	},
	IntentCoupon: {
		regexp.MustCompile(`(?i)\b(coupon|promo code|discount code|voucher)\b`),
	},
	IntentCompare: {
		regexp.MustCompile(`(?i)\b(compare|versus|vs\.?|which (is|one).*(better|cheaper))\b`),
	},
	IntentAdvice: {
		regexp.MustCompile(`(?i)\b(should i (buy|get|wait)|good (price|deal)\?|worth (it|buying))\b`),
	},
	IntentTrending: {
		regexp.MustCompile(`(?i)\b(trending|popular|hot (deals?|right now)|what'?s hot|best sellers)\b`),
	},
	IntentStoreInfo: {
		regexp.MustCompile(`(?i)\b(tell me about|info (on|about)|how (good|reliable) is)\b.*\b(store|shop|retailer|amazon|walmart|target|best buy|ebay|costco|newegg)\b`),
	},
}

// keywordIntentOrder fixes the scan order for the reduced-confidence fallback
// pass. Map iteration order is random, so without this a message matching two
// intents would classify differently between calls while the model tier is
// down.
var keywordIntentOrder = []Intent{
	IntentSearch,
	IntentCoupon,
	IntentCompare,
	IntentAdvice,
	IntentTrending,
	IntentStoreInfo,
}

// complexityIndicators upgrade a keyword-tier match to the capable model.
var complexityIndicators = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(compare|versus|vs\.?)\b`),
	regexp.MustCompile(`(?i)\b(best|cheapest|optimal)\b.*\b(and|but|while|considering)\b`),
	regexp.MustCompile(`(?i)\b(pros and cons|trade[\s-]?offs?|worth it)\b`),
	regexp.MustCompile(`(?i)\bexplain\b|\bwhy\b.*\?`),
}

// matchKeywords returns an intent when exactly one intent's pattern list
// matches the message.
func matchKeywords(message string) (Intent, bool) {
	var matched []Intent
	for intent, patterns := range intentKeywords {
		for _, p := range patterns {
			if p.MatchString(message) {
				matched = append(matched, intent)
				break
			}
		}
	}
	if len(matched) != 1 {
		return "", false
	}
	return matched[0], true
}

func isComplexQuery(message string) bool {
	for _, p := range complexityIndicators {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}
