package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Input budgets, in characters, applied before encoding.
const (
	SummaryInputLimit   = 2000
	SentimentInputLimit = 2000
	TagsInputLimit      = 1000
)

const (
	DefaultSummaryStyle = "concise"
	DefaultMaxTags      = 5
	MaxTagsLimit        = 50

	tagMarkers = "-*•# \t"

	sentimentInstruction = "Analyze the sentiment of the following text. Respond with just: positive, negative, or neutral."
)

// SummarizeMessages builds the messages for a summary in the given style.
func SummarizeMessages(text, style string) []Message {
	if strings.TrimSpace(style) == "" {
		style = DefaultSummaryStyle
	}
	return instructed(
		fmt.Sprintf("Summarize the following text in a %s manner.", style),
		Truncate(text, SummaryInputLimit),
	)
}

// ExtractTagsMessages builds the messages asking for at most maxTags tags.
func ExtractTagsMessages(text string, maxTags int) []Message {
	return instructed(
		fmt.Sprintf("Extract up to %d relevant tags from the text. Return only the tags, one per line.", maxTags),
		Truncate(text, TagsInputLimit),
	)
}

// AnalyzeSentimentMessages builds the messages for a sentiment label.
func AnalyzeSentimentMessages(text string) []Message {
	return instructed(sentimentInstruction, Truncate(text, SentimentInputLimit))
}

func instructed(instruction, content string) []Message {
	return []Message{
		{Role: RoleSystem, Content: instruction},
		{Role: RoleUser, Content: content},
	}
}

// Truncate cuts s to at most limit characters without splitting a rune.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}

	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}

// ClampTags maps a requested tag count into [1, MaxTagsLimit]; a
// non-positive count means DefaultMaxTags.
func ClampTags(maxTags int) int {
	if maxTags <= 0 {
		return DefaultMaxTags
	}
	return min(maxTags, MaxTagsLimit)
}

// ParseTags reads one tag per line, dropping blanks, list markers and
// leading '#', and keeps at most ClampTags(maxTags).
func ParseTags(text string, maxTags int) []string {
	maxTags = ClampTags(maxTags)

	var tags []string
	for _, line := range strings.Split(text, "\n") {
		if len(tags) == maxTags {
			break
		}

		tag := strings.TrimSpace(strings.TrimLeft(line, tagMarkers))
		if tag == "" {
			continue
		}

		tags = append(tags, tag)
	}
	return tags
}

// NormalizeSentiment trims and lowercases the model's label.
func NormalizeSentiment(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
