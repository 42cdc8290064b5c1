package knowledge

import (
	"fmt"
	"strings"

	"github.com/tiktoken-go/tokenizer"
)

// DefaultChunkTokens is the default token budget per chunk.
const DefaultChunkTokens = 400

// Chunk is one ordered segment of the ingested document.
type Chunk struct {
	Ordinal   int
	Text      string
	Tokens    int
	Embedding []float32
}

// Chunker splits text into paragraph-aligned chunks under a token budget.
type Chunker struct {
	codec     tokenizer.Codec
	maxTokens int
}

// NewChunker creates a chunker using the GPT-4 encoding.
func NewChunker(maxTokens int) (*Chunker, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultChunkTokens
	}
	codec, err := tokenizer.ForModel(tokenizer.GPT4)
	if err != nil {
		return nil, fmt.Errorf("failed to create tokenizer codec: %w", err)
	}
	return &Chunker{codec: codec, maxTokens: maxTokens}, nil
}

// Count returns the token count of text, estimating 4 chars per token if the
// codec fails.
func (c *Chunker) Count(text string) int {
	if c.codec == nil {
		return len(text) / 4
	}
	n, err := c.codec.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return n
}

// Split breaks text into chunks. Paragraphs are kept whole when they fit;
// oversized paragraphs are split on word boundaries.
func (c *Chunker) Split(text string) []Chunk {
	var (
		chunks  []Chunk
		current []string
		used    int
	)

	flush := func() {
		if len(current) == 0 {
			return
		}
		body := strings.Join(current, "\n\n")
		chunks = append(chunks, Chunk{Ordinal: len(chunks), Text: body, Tokens: c.Count(body)})
		current = current[:0]
		used = 0
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}

		n := c.Count(para)
		if n > c.maxTokens {
			flush()
			for _, piece := range c.splitWords(para) {
				current = append(current, piece)
				flush()
			}
			continue
		}
		if used+n > c.maxTokens {
			flush()
		}
		current = append(current, para)
		used += n
	}
	flush()

	return chunks
}

func (c *Chunker) splitWords(para string) []string {
	var (
		pieces []string
		words  []string
		used   int
	)
	for _, w := range strings.Fields(para) {
		n := c.Count(w + " ")
		if used+n > c.maxTokens && len(words) > 0 {
			pieces = append(pieces, strings.Join(words, " "))
			words = words[:0]
			used = 0
		}
		words = append(words, w)
		used += n
	}
	if len(words) > 0 {
		pieces = append(pieces, strings.Join(words, " "))
	}
	return pieces
}
