package chat

import "strings"

// FallbackNotice prefixes every canned reply so it is never mistaken for a
// live answer.
const FallbackNotice = "I'm having trouble reaching our assistant right now, so here's some general information."

type fallbackCategory struct {
	name     string
	keywords []string
	reply    string
}

var fallbackCategories = []fallbackCategory{
	{
		name:     "pricing",
		keywords: []string{"price", "pricing", "cost", "how much", "quote", "plans", "license"},
		reply:    "Pricing depends on your team size and the features you need. A member of our sales team can put together a quote for you.",
	},
	{
		name:     "demo",
		keywords: []string{"demo", "trial", "walkthrough", "see it", "show me"},
		reply:    "We'd be happy to show you the product. Share your email and a good time, and someone from our team will set up a demo.",
	},
	{
		name:     "timeline",
		keywords: []string{"timeline", "how long", "implement", "onboarding", "get started", "go live", "rollout"},
		reply:    "Most teams are up and running within a few weeks. Let us know your target date and we'll tell you what it takes to hit it.",
	},
	{
		name:     "integration",
		keywords: []string{"integrat", "api", "crm", "salesforce", "hubspot", "connect", "sync"},
		reply:    "We connect with common CRMs and offer an API for custom workflows. Tell us which tools you use and we'll confirm the details.",
	},
	{
		name:     "painPoint",
		keywords: []string{"problem", "challenge", "struggl", "issue", "pain", "frustrat", "manual"},
		reply:    "That sounds frustrating. Can you tell me a bit more about how it affects your team today?",
	},
}

const defaultFallbackReply = "Thanks for your message. Could you tell me a little more about what you're looking for?"

// FallbackCategory returns the canned category for message, or "default".
func FallbackCategory(message string) string {
	lower := strings.ToLower(message)
	for _, c := range fallbackCategories {
		for _, kw := range c.keywords {
			if strings.Contains(lower, kw) {
				return c.name
			}
		}
	}
	return "default"
}

// FallbackResponse returns a local reply keyed on simple keyword matches.
func FallbackResponse(message string) string {
	category := FallbackCategory(message)
	for _, c := range fallbackCategories {
		if c.name == category {
			return FallbackNotice + " " + c.reply
		}
	}
	return FallbackNotice + " " + defaultFallbackReply
}
