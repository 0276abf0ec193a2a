// Package extract segments narrative text into ordered scene-level sequences.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"media-pipeline-go/pkg/config"
	"media-pipeline-go/pkg/job"
	"media-pipeline-go/pkg/utils"
)

const rulesetRevision = 1

var (
	breakMarker   = regexp.MustCompile(`^(?:(?:\*\s*){3,}|-{3,}|#+(?:\s.*)?)$`)
	chapterMarker = regexp.MustCompile(`^(?i:chapter|capitolo|part|parte)\s+(?:\d+|[IVXLCDM]+)(?:\s*[:.\-–]\s*.*)?$`)
	blankRuns     = regexp.MustCompile(`\n{3,}`)
)

// Ruleset holds every parameter that influences segmentation. Two extractors
// with equal rulesets produce identical output for identical input.
type Ruleset struct {
	TargetWords     int
	MinWords        int
	MaxSequences    int
	SummaryMaxChars int
}

// RulesetFor derives the ruleset for a pipeline mode
func RulesetFor(cfg config.ExtractionConfig, mode job.Mode) Ruleset {
	maxSequences := cfg.MaxSequencesTool
	if mode == job.ModeVeo {
		maxSequences = cfg.MaxSequencesVeo
	}

	r := Ruleset{
		TargetWords:     cfg.TargetWords,
		MinWords:        cfg.MinWords,
		MaxSequences:    maxSequences,
		SummaryMaxChars: cfg.SummaryMaxChars,
	}
	if r.TargetWords <= 0 {
		r.TargetWords = 350
	}
	if r.MinWords < 0 {
		r.MinWords = 0
	}
	if r.MaxSequences <= 0 {
		r.MaxSequences = 1
	}
	if r.SummaryMaxChars <= 0 {
		r.SummaryMaxChars = 200
	}
	return r
}

// Version identifies the ruleset, so stored sequences can be traced to the rules that made them
func (r Ruleset) Version() string {
	return fmt.Sprintf("r%d/t%d/m%d/c%d/s%d",
		rulesetRevision, r.TargetWords, r.MinWords, r.MaxSequences, r.SummaryMaxChars)
}

// Extractor turns text into sequences. It is stateless and safe for concurrent use.
type Extractor struct {
	rules Ruleset
}

// New creates an extractor for the given ruleset
func New(rules Ruleset) *Extractor {
	return &Extractor{rules: rules}
}

// Rules returns the ruleset in use
func (e *Extractor) Rules() Ruleset {
	return e.rules
}

// Normalize applies NFC normalization, unifies line endings and trims
// trailing whitespace so that equivalent inputs segment identically.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t ")
	}
	text = strings.Join(lines, "\n")
	text = blankRuns.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text)
}

// Extract segments text into ordered sequences with metadata
func (e *Extractor) Extract(text string) ([]job.Sequence, error) {
	normalized := Normalize(text)
	if normalized == "" {
		return nil, fmt.Errorf("%w: input is empty after normalization", job.ErrExtraction)
	}

	var scenes []scene
	for _, section := range splitSections(normalized) {
		scenes = append(scenes, e.groupParagraphs(section)...)
	}

	if len(scenes) == 0 {
		// only markers and headings, nothing narrative to segment
		return nil, fmt.Errorf("%w: no narrative text found", job.ErrExtraction)
	}

	scenes = mergeShort(scenes, e.rules.MinWords)
	scenes = capScenes(scenes, e.rules.MaxSequences)

	sequences := make([]job.Sequence, len(scenes))
	for i, sc := range scenes {
		sequences[i] = describe(i, sc.text(), e.rules.SummaryMaxChars)
	}

	return sequences, nil
}

// scene is a run of paragraphs that will become one sequence
type scene struct {
	paragraphs []string
	words      int
}

func (s scene) text() string {
	return strings.Join(s.paragraphs, "\n\n")
}

func (s *scene) add(paragraph string) {
	s.paragraphs = append(s.paragraphs, paragraph)
	s.words += utils.CountWords(paragraph)
}

func (s *scene) absorb(other scene) {
	s.paragraphs = append(s.paragraphs, other.paragraphs...)
	s.words += other.words
}

// splitSections cuts the text at explicit break markers and chapter headings.
// Marker lines themselves are dropped.
func splitSections(text string) [][]string {
	var (
		sections  [][]string
		current   []string
		paragraph []string
	)

	flushParagraph := func() {
		if len(paragraph) > 0 {
			current = append(current, utils.CollapseWhitespace(strings.Join(paragraph, " ")))
			paragraph = nil
		}
	}
	flushSection := func() {
		flushParagraph()
		if len(current) > 0 {
			sections = append(sections, current)
			current = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			flushParagraph()
		case breakMarker.MatchString(trimmed) || chapterMarker.MatchString(trimmed):
			flushSection()
		default:
			paragraph = append(paragraph, trimmed)
		}
	}
	flushSection()

	return sections
}

// groupParagraphs packs a section's paragraphs into scenes of roughly TargetWords.
// Paragraphs far above the target are split on sentence boundaries first.
func (e *Extractor) groupParagraphs(paragraphs []string) []scene {
	target := e.rules.TargetWords

	var pieces []string
	for _, p := range paragraphs {
		if utils.CountWords(p) > 2*target {
			pieces = append(pieces, chunkSentences(p, target)...)
			continue
		}
		pieces = append(pieces, p)
	}

	var (
		scenes  []scene
		current scene
	)
	for _, p := range pieces {
		current.add(p)
		if current.words >= target {
			scenes = append(scenes, current)
			current = scene{}
		}
	}
	if len(current.paragraphs) > 0 {
		scenes = append(scenes, current)
	}

	return scenes
}

// chunkSentences splits one long paragraph into pieces of about target words
func chunkSentences(paragraph string, target int) []string {
	var (
		chunks []string
		buf    []string
		words  int
	)
	for _, sentence := range splitSentences(paragraph) {
		buf = append(buf, sentence)
		words += utils.CountWords(sentence)
		if words >= target {
			chunks = append(chunks, strings.Join(buf, " "))
			buf, words = nil, 0
		}
	}
	if len(buf) > 0 {
		chunks = append(chunks, strings.Join(buf, " "))
	}
	return chunks
}

// mergeShort folds scenes below minWords into their predecessor, or into the
// following scene when the short one comes first.
func mergeShort(scenes []scene, minWords int) []scene {
	if minWords <= 0 || len(scenes) < 2 {
		return scenes
	}

	merged := make([]scene, 0, len(scenes))
	for _, sc := range scenes {
		if len(merged) > 0 && (sc.words < minWords || merged[len(merged)-1].words < minWords) {
			merged[len(merged)-1].absorb(sc)
			continue
		}
		merged = append(merged, sc)
	}
	return merged
}

// capScenes merges the adjacent pair with the fewest combined words until at
// most maxScenes remain. Ties go to the earliest pair.
func capScenes(scenes []scene, maxScenes int) []scene {
	for len(scenes) > maxScenes {
		best := 0
		bestWords := scenes[0].words + scenes[1].words
		for i := 1; i < len(scenes)-1; i++ {
			if w := scenes[i].words + scenes[i+1].words; w < bestWords {
				best, bestWords = i, w
			}
		}

		scenes[best].absorb(scenes[best+1])
		scenes = append(scenes[:best+1], scenes[best+2:]...)
	}
	return scenes
}
