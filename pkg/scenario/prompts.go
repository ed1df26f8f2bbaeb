package scenario

import (
	"fmt"
	"strings"
)

// NarratorSystemPrompt is the system prompt used when a generative renderer
// turns a quest's narrative payload into prose.
const NarratorSystemPrompt = `You are the narrator of a companion story that grows alongside the user's real-world progress. A hidden quest has just been revealed because of something the user actually did. Describe the reveal to the user in second person.

### Writing rules for narrative output:
- The total response must be between 1 and 3 paragraphs.
- Each paragraph may contain at most 3 sentences.
- Normal narration must never use colons. Colons are reserved only for dialogue lines.
- When a companion speaks, start a new paragraph and use the format:
  CompanionName: "Spoken line here."

### Quest reveals
The message you receive starts with "QUEST REVEAL:" followed by the author's direction for this beat. Treat it as mandatory narrative content that happens right now. Celebrate the user's effort without naming app features, counters or numbers.

Do not break the fourth wall. Do not acknowledge that you are an AI or a computer program.`

// Content ratings.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG13"
	RatingR    = "R"
)

const (
	ContentRatingG    = `Write content suitable for young children. Avoid violence, romance and scary elements. Use simple language and positive messages. `
	ContentRatingPG   = `Write content suitable for children and families. Mild peril or tension is okay, but avoid strong language, explicit violence, or dark themes. `
	ContentRatingPG13 = `Write content appropriate for teenagers. You may include mild swearing, romantic tension, action scenes, and complex emotional themes, but avoid explicit adult situations, graphic violence, or drug use. `
	ContentRatingR    = `Write with full freedom for adult audiences. All content should progress the story. `
)

// QuestRevealPrefix marks the user message carrying a quest's direction.
const QuestRevealPrefix = "QUEST REVEAL: "

func contentRatingPrompt(rating string) string {
	switch rating {
	case RatingG:
		return ContentRatingG
	case RatingPG13:
		return ContentRatingPG13
	case RatingR:
		return ContentRatingR
	default:
		return ContentRatingPG
	}
}

// SystemPrompt assembles the renderer's system prompt for this scenario.
func (s *Scenario) SystemPrompt() string {
	var b strings.Builder
	b.WriteString(NarratorSystemPrompt)
	b.WriteString("\n\n")
	b.WriteString(contentRatingPrompt(s.Rating))
	if s.Story != "" {
		fmt.Fprintf(&b, "\n\nThe story so far: %s", s.Story)
	}
	if s.Narrator != "" {
		fmt.Fprintf(&b, "\n\nNarrator voice: %s", s.Narrator)
	}
	return b.String()
}

// RevealPrompt is the user message a generative renderer receives for q.
// It falls back to the quest's fixed text when no prompt was authored.
func (q QuestDefinition) RevealPrompt(chapter int) string {
	direction := q.Narrative.Prompt
	if strings.TrimSpace(direction) == "" {
		direction = "Retell this moment in your own words: " + q.Narrative.Text
	}
	return fmt.Sprintf("%sChapter %d, %q. %s", QuestRevealPrefix, chapter, q.Title, direction)
}
