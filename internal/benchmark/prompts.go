// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import "strings"

// Kind groups prompts by what they exercise.
type Kind string

const (
	KindLatency     Kind = "latency"
	KindExplanation Kind = "explanation"
	KindQuiz        Kind = "quiz"
	KindSummary     Kind = "summary"
)

// Evaluator scores a response from 0 to 100.
type Evaluator func(response string) float64

// Prompt is one benchmark case.
type Prompt struct {
	Name      string
	Kind      Kind
	Text      string
	Evaluator Evaluator
}

// StandardSuite returns the full prompt set.
func StandardSuite() []Prompt {
	return []Prompt{
		{
			Name:      "Latency",
			Kind:      KindLatency,
			Text:      "Reply with the single word: ready",
			Evaluator: keywordScore("ready"),
		},
		{
			Name:      "Explanation",
			Kind:      KindExplanation,
			Text:      "Explain photosynthesis to a high school student in three sentences.",
			Evaluator: keywordScore("light", "energy", "glucose", "carbon dioxide", "oxygen"),
		},
		{
			Name: "Quiz",
			Kind: KindQuiz,
			Text: "Write three short quiz questions about the water cycle.",
			Evaluator: func(response string) float64 {
				n := strings.Count(response, "?")
				if n >= 3 {
					return 100
				}
				return float64(n) * 30
			},
		},
		{
			Name: "Summary",
			Kind: KindSummary,
			Text: "Summarize the causes of the French Revolution in one paragraph.",
			Evaluator: func(response string) float64 {
				score := keywordScore("debt", "tax", "estates", "bread", "enlightenment")(response)
				if strings.Count(strings.TrimSpace(response), "\n\n") > 0 {
					// More than one paragraph.
					score *= 0.8
				}
				return score
			},
		},
	}
}

// QuickSuite returns a two-prompt subset for fast checks.
func QuickSuite() []Prompt {
	return FilterByKind(StandardSuite(), KindLatency, KindExplanation)
}

// FilterByKind keeps prompts of the given kinds, in order.
func FilterByKind(prompts []Prompt, kinds ...Kind) []Prompt {
	var out []Prompt
	for _, p := range prompts {
		for _, k := range kinds {
			if p.Kind == k {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// keywordScore gives equal credit for each keyword found, case-insensitively.
func keywordScore(keywords ...string) Evaluator {
	return func(response string) float64 {
		lower := strings.ToLower(response)
		hits := 0
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				hits++
			}
		}
		return 100 * float64(hits) / float64(len(keywords))
	}
}
