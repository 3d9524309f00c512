package assistant

import (
	"strings"

	"ramallah-time/internal/listing"
)

const guideIntro = `You are the Ramallah Time assistant. You help visitors find the best places in Ramallah.
Answer only from the directory below. If the visitor asks about a place that is not listed,
say politely that you have no information about it yet and wish them a nice day in Ramallah.
Be friendly and brief, reply in the visitor's language, and suggest contacting places on WhatsApp
through the app.

Directory:
`

const scanPrompt = `You read photos of shop fronts, signs, menus and business cards in Ramallah.
Return a single JSON object with these string keys: name, category, area, address, phone,
whatsapp, website, instagram, open_hours, price_range, description, tags.
Use an empty string for anything you cannot read. Do not invent details.`

// guidePrompt renders the system prompt with one line per listing.
func guidePrompt(places []listing.Summary) string {
	var b strings.Builder
	b.WriteString(guideIntro)
	if len(places) == 0 {
		b.WriteString("(no places are listed yet)\n")
	}
	for _, p := range places {
		b.WriteString("- ")
		b.WriteString(p.Name)
		b.WriteString(" | category: ")
		b.WriteString(p.Category)
		if p.Area != "" {
			b.WriteString(" | area: ")
			b.WriteString(p.Area)
		}
		if p.OpenHours != "" {
			b.WriteString(" | hours: ")
			b.WriteString(p.OpenHours)
		}
		if p.PriceRange != "" {
			b.WriteString(" | price: ")
			b.WriteString(p.PriceRange)
		}
		if p.Tags != "" {
			b.WriteString(" | tags: ")
			b.WriteString(p.Tags)
		}
		if p.Description != "" {
			b.WriteString(" | ")
			b.WriteString(oneLine(p.Description))
		}
		if p.IsPremium {
			b.WriteString(" | featured")
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 300 {
		s = string(r[:300]) + "..."
	}
	return s
}
