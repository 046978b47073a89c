package announce

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"ufcbot/internal/selector"
)

const (
	// NotFoundText is posted when the feed has no upcoming event.
	NotFoundText = "No upcoming event found."
	// FailureText is posted when the feed could not be fetched or parsed.
	FailureText = "Couldn't fetch the next event right now. (The feed might be unavailable.)"

	// MessageLimit is Discord's maximum message length in characters.
	MessageLimit = 2000

	defaultMaxBouts = 8
)

// Options controls message rendering.
type Options struct {
	// MaxBouts caps how many card lines are listed. Zero means the default (8).
	MaxBouts int
	// FallbackURL is linked when the announcement carries no URL of its own.
	FallbackURL string
}

// Render formats an announcement as a Discord markdown message.
func Render(a selector.Announcement, opts Options) string {
	maxBouts := opts.MaxBouts
	if maxBouts <= 0 {
		maxBouts = defaultMaxBouts
	}

	title := a.Title
	if title == "" {
		title = "Upcoming Event"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**%s**\n📅 %s  •  📍 %s", title, a.WhenText, a.LocationText)

	link := a.URL
	if link == "" {
		link = opts.FallbackURL
	}
	if link != "" {
		fmt.Fprintf(&b, "\n🔗 More: %s", link)
	}

	if len(a.CardText) > 0 {
		b.WriteString("\n\n**Fight Card**")
		for i, line := range a.CardText {
			if i == maxBouts {
				fmt.Fprintf(&b, "\n…and %d more bouts", len(a.CardText)-maxBouts)
				break
			}
			b.WriteString("\n• ")
			b.WriteString(line)
		}
	}

	return clamp(b.String(), MessageLimit)
}

// clamp cuts s to at most limit runes, ending with an ellipsis when cut.
func clamp(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit-1]) + "…"
}
