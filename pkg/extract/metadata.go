package extract

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
)

const maxCharacters = 8

var (
	yearPattern    = regexp.MustCompile(`\b(1[0-9]{3}|20[0-9]{2})\b`)
	centuryPattern = regexp.MustCompile(`(?i)\b(\d{1,2})(?:st|nd|rd|th)\s+century\b`)
	locationIntro  = regexp.MustCompile(`\b(?:in|at|near|inside|nel|nella|nei|presso)\s+(?:the\s+)?(\p{Lu}\p{L}+(?:\s+\p{Lu}\p{L}+)*)`)
)

// describe builds a sequence and its heuristic metadata from scene text
func describe(index int, text string, summaryMax int) job.Sequence {
	sentences := splitSentences(text)
	words := tokenize(text)

	summary := utils.CollapseWhitespace(text)
	if len(sentences) > 0 {
		summary = sentences[0]
	}

	location := findLocation(text, words)

	return job.Sequence{
		Index:       index,
		Text:        text,
		Summary:     utils.TruncateRunes(summary, summaryMax),
		Characters:  findCharacters(sentences, location),
		Location:    location,
		TimePeriod:  findTimePeriod(text, words),
		Emotions:    findEmotions(words),
		ActionLevel: actionLevel(text, words, len(sentences)),
	}
}

// splitSentences splits on terminal punctuation followed by whitespace
func splitSentences(text string) []string {
	var (
		sentences []string
		start     int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// absorb runs like "?!" or "..." and closing quotes
		j := i + 1
		for j < len(runes) && (isTerminal(runes[j]) || isClosingQuote(runes[j])) {
			j++
		}
		if j == len(runes) || unicode.IsSpace(runes[j]) {
			if s := utils.CollapseWhitespace(string(runes[start:j])); s != "" {
				sentences = append(sentences, s)
			}
			start = j
		}
		i = j - 1
	}
	if s := utils.CollapseWhitespace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func notLetter(r rune) bool {
	return !unicode.IsLetter(r)
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isClosingQuote(r rune) bool {
	return r == '"' || r == '\'' || r == '”' || r == '’' || r == '»'
}

// tokenize returns the lowercase letter-only words of text in order
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, notLetter)
	words := make([]string, len(fields))
	for i, f := range fields {
		words[i] = strings.ToLower(f)
	}
	return words
}

// findCharacters collects capitalized names that are either repeated mid-sentence
// or directly followed by a speech verb.
func findCharacters(sentences []string, location string) []string {
	counts := make(map[string]int)
	speakers := make(map[string]bool)
	excluded := make(map[string]bool)
	for _, w := range strings.Fields(location) {
		excluded[w] = true
	}

	for _, sentence := range sentences {
		tokens := strings.FieldsFunc(sentence, notLetter)
		for i, tok := range tokens {
			if !isCapitalized(tok) || stopWords[strings.ToLower(tok)] || excluded[tok] {
				continue
			}
			if i+1 < len(tokens) && speechVerbs[strings.ToLower(tokens[i+1])] {
				speakers[tok] = true
			}
			if i > 0 {
				counts[tok]++
			}
		}
	}

	names := make([]string, 0, len(counts)+len(speakers))
	seen := make(map[string]bool)
	for name, n := range counts {
		if n >= 2 || speakers[name] {
			names = append(names, name)
			seen[name] = true
		}
	}
	for name := range speakers {
		if !seen[name] {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	if len(names) > maxCharacters {
		names = names[:maxCharacters]
	}
	return names
}

func isCapitalized(tok string) bool {
	runes := []rune(tok)
	if len(runes) < 2 || !unicode.IsUpper(runes[0]) {
		return false
	}
	// all-caps tokens are shouting or acronyms, not names
	for _, r := range runes[1:] {
		if unicode.IsLower(r) {
			return true
		}
	}
	return false
}

// findLocation prefers "preposition + proper noun" and falls back to a place lexicon
func findLocation(text string, words []string) string {
	for _, m := range locationIntro.FindAllStringSubmatch(text, -1) {
		candidate := m[1]
		if first := strings.Fields(candidate)[0]; stopWords[strings.ToLower(first)] {
			continue
		}
		return candidate
	}

	for _, w := range words {
		if place, ok := placeWords[w]; ok {
			return place
		}
	}
	return ""
}

// findTimePeriod reports an explicit century or year, else the first time-of-day word
func findTimePeriod(text string, words []string) string {
	if m := centuryPattern.FindStringSubmatch(text); m != nil {
		return strings.ToLower(m[0])
	}
	if m := yearPattern.FindString(text); m != "" {
		return m
	}
	for _, w := range words {
		if period, ok := timeWords[w]; ok {
			return period
		}
	}
	return ""
}

func findEmotions(words []string) []string {
	found := make(map[string]bool)
	for _, w := range words {
		for _, entry := range emotionLexicon {
			if matchesStem(w, entry.stem) {
				found[entry.emotion] = true
			}
		}
	}

	emotions := make([]string, 0, len(found))
	for e := range found {
		emotions = append(emotions, e)
	}
	sort.Strings(emotions)
	return emotions
}

// actionLevel combines action verb density with exclamation density, clamped to [0,1]
func actionLevel(text string, words []string, sentenceCount int) float64 {
	if len(words) == 0 {
		return 0
	}

	actions := 0
	for _, w := range words {
		for _, stem := range actionStems {
			if matchesStem(w, stem) {
				actions++
				break
			}
		}
	}

	level := float64(actions) / float64(len(words)) * 10
	if sentenceCount > 0 {
		level += float64(strings.Count(text, "!")) / float64(sentenceCount) * 0.5
	}

	level = math.Max(0, math.Min(1, level))
	return math.Round(level*100) / 100
}

// matchesStem matches whole words for short stems and prefixes for longer ones
func matchesStem(word, stem string) bool {
	if len(stem) < 4 {
		return word == stem
	}
	return strings.HasPrefix(word, stem)
}
