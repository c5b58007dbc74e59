package support

import (
	"strings"
	"unicode"

	"github.com/samber/lo"
)

type keywordGroup struct {
	name string
	// substrings match anywhere in the lowercased text.
	substrings []string
	// words must appear as whole words.
	words []string
	// phrases are whole-word sequences such as "good morning".
	phrases []string
	reply   string
}

// Groups are checked in order; the first match wins.
var keywordGroups = []keywordGroup{
	{
		name:       "artists",
		substrings: []string{"artist", "musician", "performer"},
		words:      []string{"band", "bands", "dj", "djs"},
		reply: "We work with a roster of musicians, bands, DJs and performers for every kind of event. " +
			"Tell us the date, location and style you have in mind and we will suggest available artists with their rates.",
	},
	{
		name:       "sound",
		substrings: []string{"sound", "equipment", "audio", "speaker", "microphone", "lighting"},
		reply: "We rent sound and lighting equipment: PA systems, speakers, wireless microphones and stage lighting, " +
			"with optional technicians for setup. Let us know the guest count and venue size and we will put together a package.",
	},
	{
		name:       "venues",
		substrings: []string{"venue", "location"},
		words:      []string{"hall", "halls", "space", "spaces"},
		reply: "Our partner venues range from intimate rooms to large halls. " +
			"Share your expected guest count, preferred area and date and we will check availability.",
	},
	{
		name:       "pricing",
		substrings: []string{"price", "pricing", "booking", "quote"},
		words:      []string{"rate", "rates", "cost", "costs"},
		reply: "Pricing depends on the date, duration and services you combine. " +
			"Send us your event details and we will prepare a quote; bookings are confirmed with a deposit.",
	},
	{
		name:       "events",
		substrings: []string{"planning", "wedding"},
		words:      []string{"event", "events", "party", "parties"},
		reply: "We help plan weddings, parties, corporate events and festivals from start to finish. " +
			"What kind of event are you organizing, and when?",
	},
	{
		name:    "greeting",
		words:   []string{"hi", "hello", "hey", "greetings", "howdy"},
		phrases: []string{"good morning", "good afternoon", "good evening"},
		reply:   "Hello! Welcome to our booking support. Ask us about artists, sound equipment, venues or pricing.",
	},
}

const genericReply = "Thanks for reaching out! We can help with artists, sound equipment, venues, pricing and event planning. " +
	"Could you tell us a bit more about what you need? You can also ask to speak with a member of our team."

const handoffReply = "I've flagged your request for our team. A member of staff will pick up this conversation shortly."

// Fallback returns the canned reply of the first keyword group that matches
// text, or a generic reply when none does. Matching is case-insensitive.
func Fallback(text string) string {
	lower := strings.ToLower(text)
	words := tokenize(lower)
	joined := " " + strings.Join(words, " ") + " "

	for _, g := range keywordGroups {
		if g.matches(lower, words, joined) {
			return g.reply
		}
	}
	return genericReply
}

func (g keywordGroup) matches(lower string, words []string, joined string) bool {
	if lo.SomeBy(g.substrings, func(s string) bool { return strings.Contains(lower, s) }) {
		return true
	}
	if lo.Some(words, g.words) {
		return true
	}
	return lo.SomeBy(g.phrases, func(p string) bool { return strings.Contains(joined, " "+p+" ") })
}

var humanWords = []string{"human", "humans", "representative", "agent", "escalate", "operator"}

// "someone" and "staff" are too common on their own and only count in a request.
var humanPhrases = []string{
	"real person", "live person",
	"speak to a person", "talk to a person", "speak with a person", "talk with a person",
	"speak to someone", "talk to someone", "speak with someone", "talk with someone",
	"speak to staff", "talk to staff", "speak with staff", "member of staff",
}

// DetectHumanRequest reports whether text asks to reach a person. It only
// signals the caller and never changes any conversation.
func DetectHumanRequest(text string) bool {
	lower := strings.ToLower(text)
	words := tokenize(lower)
	if lo.Some(words, humanWords) {
		return true
	}
	joined := " " + strings.Join(words, " ") + " "
	return lo.SomeBy(humanPhrases, func(p string) bool { return strings.Contains(joined, " "+p+" ") })
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
