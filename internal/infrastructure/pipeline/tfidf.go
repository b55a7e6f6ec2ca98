// Package pipeline implements the offline feature-engineering stage: text
// statistics over the post corpus and the derived like-ratio features the
// serving model consumes. Runs in the pipeline binary, never at serve time.
package pipeline

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/feed-hub/feed-recommender/pkg/workerpool"
)

// ══════════════════════════════════════════════════════════════════════════════
// TF-IDF TEXT STATISTICS
// ══════════════════════════════════════════════════════════════════════════════

// TextStats summarizes one document against the whole corpus.
type TextStats struct {
	// TFIDFMean is the mean TF-IDF weight over the full vocabulary,
	// counting vocabulary terms absent from the document as zero.
	TFIDFMean float64

	// TFIDFMax is the largest TF-IDF weight in the document.
	TFIDFMax float64

	// Length is the raw character length of the cleaned text.
	Length int
}

// Vectorizer computes corpus-wide TF-IDF statistics. Weighting is smooth:
// idf = ln((1+n)/(1+df)) + 1, and each document vector is L2-normalized
// before the per-document statistics are taken.
type Vectorizer struct {
	stopWords map[string]struct{}
	pool      *workerpool.Pool
}

// NewVectorizer creates a Vectorizer. pool may be nil to weight documents
// sequentially.
func NewVectorizer(pool *workerpool.Pool) *Vectorizer {
	return &Vectorizer{
		stopWords: englishStopWords(),
		pool:      pool,
	}
}

// CleanText lowercases the text and strips punctuation and newlines,
// keeping only letters, digits and single spaces.
func CleanText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && b.Len() > 0 {
				b.WriteByte(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// tokenize splits cleaned text into terms, dropping single-character
// tokens and stop words.
func (v *Vectorizer) tokenize(text string) []string {
	fields := strings.Fields(CleanText(text))
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if _, stop := v.stopWords[f]; stop {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

// Fit computes per-document text statistics over the corpus.
func (v *Vectorizer) Fit(ctx context.Context, docs []string) ([]TextStats, error) {
	n := len(docs)
	out := make([]TextStats, n)
	if n == 0 {
		return out, nil
	}

	// Pass 1: term counts per document and document frequencies.
	counts := make([]map[string]int, n)
	df := make(map[string]int)
	for i, doc := range docs {
		tc := make(map[string]int)
		for _, term := range v.tokenize(doc) {
			tc[term]++
		}
		counts[i] = tc
		for term := range tc {
			df[term]++
		}
	}

	vocabSize := len(df)
	idf := make(map[string]float64, vocabSize)
	for term, freq := range df {
		idf[term] = math.Log(float64(1+n)/float64(1+freq)) + 1
	}

	// Pass 2: weight, normalize, and summarize each document.
	weigh := func(i int) {
		cleaned := CleanText(docs[i])
		stats := TextStats{Length: len(cleaned)}

		var norm float64
		weights := make(map[string]float64, len(counts[i]))
		for term, count := range counts[i] {
			w := float64(count) * idf[term]
			weights[term] = w
			norm += w * w
		}
		if norm > 0 && vocabSize > 0 {
			norm = math.Sqrt(norm)
			var sum, max float64
			for _, w := range weights {
				w /= norm
				sum += w
				if w > max {
					max = w
				}
			}
			stats.TFIDFMean = sum / float64(vocabSize)
			stats.TFIDFMax = max
		}
		out[i] = stats
	}

	if v.pool == nil {
		for i := range docs {
			weigh(i)
		}
		return out, nil
	}

	// Chunk across the pool; each chunk writes a disjoint slice of out.
	chunk := (n + v.pool.Size() - 1) / v.pool.Size()
	var tasks []workerpool.Task
	for start := 0; start < n; start += chunk {
		end := start + chunk
		if end > n {
			end = n
		}
		start, end := start, end
		tasks = append(tasks, func(ctx context.Context) error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				weigh(i)
			}
			return nil
		})
	}
	if err := v.pool.RunAll(ctx, tasks); err != nil {
		return nil, err
	}
	return out, nil
}

// englishStopWords returns the stop word set used for post texts.
func englishStopWords() map[string]struct{} {
	words := []string{
		"a", "about", "above", "after", "again", "against", "all", "am",
		"an", "and", "any", "are", "as", "at", "be", "because", "been",
		"before", "being", "below", "between", "both", "but", "by", "can",
		"could", "did", "do", "does", "doing", "down", "during", "each",
		"few", "for", "from", "further", "had", "has", "have", "having",
		"he", "her", "here", "hers", "herself", "him", "himself", "his",
		"how", "i", "if", "in", "into", "is", "it", "its", "itself",
		"just", "me", "more", "most", "my", "myself", "no", "nor", "not",
		"now", "of", "off", "on", "once", "only", "or", "other", "our",
		"ours", "ourselves", "out", "over", "own", "same", "she",
		"should", "so", "some", "such", "than", "that", "the", "their",
		"theirs", "them", "themselves", "then", "there", "these", "they",
		"this", "those", "through", "to", "too", "under", "until", "up",
		"very", "was", "we", "were", "what", "when", "where", "which",
		"while", "who", "whom", "why", "will", "with", "would", "you",
		"your", "yours", "yourself", "yourselves",
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
