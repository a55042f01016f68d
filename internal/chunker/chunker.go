// Package chunker splits flattened label sections into search passages.
package chunker

import (
	"strings"

	"github.com/dgallion1/splgest/internal/doctree"
	"github.com/dgallion1/splgest/internal/label"
)

// Config controls passage sizes, in words.
type Config struct {
	Words    int // Target passage size.
	Overlap  int // Words carried from the end of one passage into the next.
	MinWords int // Passages shorter than this are dropped.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Words:    300,
		Overlap:  40,
		MinWords: 3,
	}
}

// Split turns each section of res, in extraction order, into passages with
// the breadcrumb [drugName, sectionKey]. Indexes run across the whole label.
func Split(res *label.Result, cfg Config) []doctree.Passage {
	if cfg.Words <= 0 {
		cfg.Words = 300
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Words {
		cfg.Overlap = 0
	}
	if cfg.MinWords <= 0 {
		cfg.MinWords = 1
	}

	root := res.DrugName
	if root == "" {
		root = res.Title
	}

	var passages []doctree.Passage
	for _, key := range res.SectionKeys {
		for _, part := range splitText(res.Sections[key], cfg.Words, cfg.Overlap) {
			if CountWords(part) < cfg.MinWords {
				continue
			}
			passages = append(passages, doctree.Passage{
				Text:       part,
				Index:      len(passages),
				Breadcrumb: []string{root, key},
				SectionKey: key,
			})
		}
	}
	return passages
}

// CountWords counts whitespace-separated words.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// splitText breaks text into passages of about target words, with overlap.
func splitText(text string, target, overlap int) []string {
	paragraphs := splitByParagraphs(text)

	var result []string
	var current strings.Builder
	currentWords := 0

	for _, para := range paragraphs {
		paraWords := CountWords(para)

		// An oversized paragraph is split on sentences.
		if paraWords > target {
			if currentWords > 0 {
				result = append(result, current.String())
				current.Reset()
				currentWords = 0
			}
			result = append(result, splitBySentences(para, target, overlap)...)
			continue
		}

		if currentWords+paraWords > target && currentWords > 0 {
			result = append(result, current.String())

			tail := overlapText(current.String(), overlap)
			current.Reset()
			currentWords = 0
			if tail != "" {
				current.WriteString(tail)
				currentWords = CountWords(tail)
			}
		}

		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(para)
		currentWords += paraWords
	}

	if currentWords > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitByParagraphs splits on line breaks; section bodies carry one
// paragraph per line.
func splitByParagraphs(text string) []string {
	var result []string
	for _, p := range strings.Split(text, "\n") {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	return result
}

func splitBySentences(text string, target, overlap int) []string {
	var result []string
	var current strings.Builder
	currentWords := 0

	for _, sent := range splitSentences(text) {
		sentWords := CountWords(sent)

		if currentWords+sentWords > target && currentWords > 0 {
			result = append(result, current.String())
			tail := overlapText(current.String(), overlap)
			current.Reset()
			currentWords = 0
			if tail != "" {
				current.WriteString(tail)
				currentWords = CountWords(tail)
			}
		}

		// A single run-on sentence longer than target is cut on words.
		if sentWords > target {
			words := strings.Fields(sent)
			for len(words) > target {
				if current.Len() > 0 {
					current.WriteString(" ")
				}
				room := target - currentWords
				if room <= 0 {
					room = target
				}
				current.WriteString(strings.Join(words[:room], " "))
				result = append(result, current.String())
				words = words[room:]

				tail := overlapText(current.String(), overlap)
				current.Reset()
				currentWords = 0
				if tail != "" {
					current.WriteString(tail)
					currentWords = CountWords(tail)
				}
			}
			sent = strings.Join(words, " ")
			sentWords = len(words)
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		currentWords += sentWords
	}

	if currentWords > 0 {
		result = append(result, current.String())
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// overlapText returns the last n words of text.
func overlapText(text string, n int) string {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return ""
	}
	return strings.Join(words[len(words)-n:], " ")
}
