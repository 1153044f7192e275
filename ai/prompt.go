package ai

import (
	"fmt"
	"strings"

	"gear-aggregator/taxonomy"
)

// Request is the listing data sent for classification.
type Request struct {
	Title            string `json:"title"`
	Description      string `json:"description,omitempty"`
	ExternalCategory string `json:"external_category,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
}

const maxDescriptionRunes = 500

const systemPrompt = `You classify second-hand music gear listings from Swedish marketplaces into a fixed category list.

Categories (answer with the id on the left):
%s
Rules:
- Guitar and bass brand or model names (Fender, Gibson, Stratocaster, Les Paul, Ibanez) are instruments, not amplifiers.
- An effects pedal, multi-effect or pedalboard is never an amplifier.
- Cables, cases, gig bags, stands, strings and spare parts are accessories.
- Synthesizers, keyboards, digital pianos and organs are keys-pianos.
- Microphones, audio interfaces and studio monitors are studio-recording.
- PA systems, DJ controllers, turntables and lighting are dj-live.
- Use "other" only when the item is not music gear or cannot be determined.

Reply with a single JSON object and nothing else:
{"category": "<id>", "confidence": "high|medium|low", "reasoning": "<one short sentence>"}`

// BuildPrompt returns the system and user messages for req.
func BuildPrompt(req Request) (system, user string) {
	var cats strings.Builder
	for _, c := range taxonomy.All() {
		fmt.Fprintf(&cats, "- %s: %s\n", c, c.Label())
	}
	system = fmt.Sprintf(systemPrompt, cats.String())

	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", strings.TrimSpace(req.Title))
	if ext := strings.TrimSpace(req.ExternalCategory); ext != "" {
		fmt.Fprintf(&b, "Marketplace category: %s\n", ext)
	}
	if desc := strings.TrimSpace(req.Description); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", truncateRunes(desc, maxDescriptionRunes))
	}
	return system, b.String()
}

// Messages builds the chat conversation for req. With withImage and an
// image URL present, the user message becomes a text plus image_url array.
func Messages(req Request, withImage bool) []Message {
	system, user := BuildPrompt(req)
	msgs := []Message{{Role: "system", Content: system}}
	if withImage && req.ImageURL != "" {
		msgs = append(msgs, Message{Role: "user", Content: []ContentPart{
			{Type: "text", Text: user},
			{Type: "image_url", ImageURL: &ImageURL{URL: req.ImageURL}},
		}})
		return msgs
	}
	return append(msgs, Message{Role: "user", Content: user})
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
