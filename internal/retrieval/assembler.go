package retrieval

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gopherai-docqa/internal/model"
)

const (
	charsPerToken     = 4
	structureHeader   = "Document structure:\n"
	chunkSeparator    = "\n\n"
	DefaultMaxChunks  = 10
	DefaultTokenLimit = 4000
)

type AssembleOptions struct {
	// TokenBudget <= 0 means unlimited.
	TokenBudget              int  `json:"token_budget"`
	MaxChunks                int  `json:"max_chunks"`
	IncludePageNumbers       bool `json:"include_page_numbers"`
	IncludeElementTypes      bool `json:"include_element_types"`
	IncludeStructuralContext bool `json:"include_structural_context"`
}

// DefaultAssembleOptions annotates lines with type and page and skips the
// structure preamble.
func DefaultAssembleOptions() AssembleOptions {
	return AssembleOptions{
		TokenBudget:         DefaultTokenLimit,
		MaxChunks:           DefaultMaxChunks,
		IncludePageNumbers:  true,
		IncludeElementTypes: true,
	}
}

// ContextSource is one chunk included in the assembled context.
type ContextSource struct {
	ContextIndex int                `json:"context_index"`
	ChunkID      string             `json:"chunk_id"`
	DocumentID   string             `json:"document_id"`
	DocumentName string             `json:"document_name"`
	ChunkIndex   int                `json:"chunk_index"`
	Content      string             `json:"content"`
	ElementType  *model.ElementType `json:"element_type"`
	PageNumber   *int               `json:"page_number"`
	BoundingBox  *model.BoundingBox `json:"bounding_box"`
	Similarity   float64            `json:"similarity"`
	RerankScore  *float64           `json:"rerank_score,omitempty"`
	WasReranked  bool               `json:"was_reranked"`
}

type SearchStats struct {
	// TotalResults counts the facet-filtered candidates that were scored,
	// before threshold and top-k.
	TotalResults int    `json:"total_results"`
	SearchTimeMs int64  `json:"search_time_ms"`
	RerankTimeMs *int64 `json:"rerank_time_ms,omitempty"`
	Algorithm    string `json:"algorithm"`
}

// ContextResult is the output handed to the answer-generation step.
type ContextResult struct {
	FormattedContext        string          `json:"formatted_context"`
	Sources                 []ContextSource `json:"sources"`
	TotalTokens             int             `json:"total_tokens"`
	SearchStats             SearchStats     `json:"search_stats"`
	Truncated               bool            `json:"truncated"`
	ElementTypeDistribution map[string]int  `json:"element_type_distribution"`
}

// EmptyContext is the result for a query with nothing searchable.
func EmptyContext(algorithm string) *ContextResult {
	return &ContextResult{
		Sources:                 []ContextSource{},
		ElementTypeDistribution: map[string]int{},
		SearchStats:             SearchStats{Algorithm: algorithm},
	}
}

// EstimateTokens approximates the token count of s as one token per four
// characters, rounded up.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + charsPerToken - 1) / charsPerToken
}

// Assemble formats ranked chunks into a context blob. titles are the title
// chunks of the searched documents in document order, used for the optional
// structure preamble. The preamble and each chunk are costed separately and
// the sum never exceeds the budget. Reaching MaxChunks is not truncation;
// running out of budget is.
func Assemble(ranked []RankedChunk, titles []model.Chunk, opts AssembleOptions) *ContextResult {
	result := EmptyContext(AlgorithmCosine)
	budget := opts.TokenBudget
	used := 0
	fits := func(tokens int) bool {
		return budget <= 0 || used+tokens <= budget
	}

	var sb strings.Builder
	if opts.IncludeStructuralContext && len(titles) > 0 {
		pre := structureHeader
		added := 0
		for i := range titles {
			next := pre + titleLine(&titles[i], opts)
			if !fits(EstimateTokens(next + "\n")) {
				result.Truncated = true
				break
			}
			pre = next
			added++
		}
		if added > 0 {
			pre += "\n"
			used += EstimateTokens(pre)
			sb.WriteString(pre)
		}
	}

	maxChunks := opts.MaxChunks
	if maxChunks <= 0 {
		maxChunks = len(ranked)
	}
	for i := range ranked {
		if len(result.Sources) >= maxChunks {
			break
		}
		piece := FormatLine(&ranked[i].Chunk, opts) + chunkSeparator
		tokens := EstimateTokens(piece)
		if !fits(tokens) {
			result.Truncated = true
			break
		}
		used += tokens
		sb.WriteString(piece)

		rc := ranked[i]
		result.Sources = append(result.Sources, ContextSource{
			ContextIndex: len(result.Sources),
			ChunkID:      rc.Chunk.ID,
			DocumentID:   rc.Chunk.DocumentID,
			DocumentName: rc.DocumentName,
			ChunkIndex:   rc.Chunk.ChunkIndex,
			Content:      rc.Chunk.Content,
			ElementType:  rc.Chunk.ElementType,
			PageNumber:   rc.Chunk.PageNumber,
			BoundingBox:  rc.Chunk.Box(),
			Similarity:   rc.Similarity,
			RerankScore:  rc.RerankScore,
			WasReranked:  rc.WasReranked,
		})
		result.ElementTypeDistribution[model.DistributionKey(rc.Chunk.ElementType)]++
	}

	result.FormattedContext = strings.TrimRight(sb.String(), "\n")
	result.TotalTokens = used
	return result
}

// FormatLine renders "[TYPE] (Page N) content", dropping the parts the
// options turn off or the chunk lacks.
func FormatLine(c *model.Chunk, opts AssembleOptions) string {
	var prefix []string
	if opts.IncludeElementTypes && c.ElementType != nil {
		prefix = append(prefix, "["+c.ElementType.Label()+"]")
	}
	if opts.IncludePageNumbers && c.PageNumber != nil {
		prefix = append(prefix, fmt.Sprintf("(Page %d)", *c.PageNumber))
	}
	content := strings.TrimSpace(c.Content)
	if len(prefix) == 0 {
		return content
	}
	return strings.Join(prefix, " ") + " " + content
}

func titleLine(c *model.Chunk, opts AssembleOptions) string {
	line := "- " + strings.TrimSpace(c.Content)
	if opts.IncludePageNumbers && c.PageNumber != nil {
		line += fmt.Sprintf(" (Page %d)", *c.PageNumber)
	}
	return line + "\n"
}
