package app

import (
	"context"
	"strings"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/retrieval"
)

// NoKnowledgeAnswer is returned when nothing searchable matches the question.
const NoKnowledgeAnswer = "I could not find anything about this in your processed documents yet."

const askSystemPrompt = "You are a helpful assistant. Answer the user's question based only on the following context. " +
	"Lines may start with the element type and page of the source, e.g. [TITLE] (Page 2). " +
	"If the context does not contain enough information, say so. Do not make up facts."

type AskResult struct {
	Answer  string                   `json:"answer"`
	Context *retrieval.ContextResult `json:"context"`
}

// AskService answers a question from the assembled context.
type AskService struct {
	query *QueryService
	chat  ChatModel
}

func NewAskService(query *QueryService, chat ChatModel) *AskService {
	return &AskService{query: query, chat: chat}
}

func (s *AskService) Ask(ctx context.Context, req QueryRequest) (*AskResult, error) {
	res, err := s.query.Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(res.Sources) == 0 || s.chat == nil {
		return &AskResult{Answer: NoKnowledgeAnswer, Context: res}, nil
	}

	messages := []ai.ChatMessage{
		{Role: "system", Content: askSystemPrompt},
		{Role: "user", Content: "Context:\n---\n" + res.FormattedContext + "\n---\n\nQuestion: " + strings.TrimSpace(req.Query) + "\n\nAnswer:"},
	}
	answer, err := s.chat.Complete(ctx, messages)
	if err != nil {
		return nil, err
	}
	return &AskResult{Answer: strings.TrimSpace(answer), Context: res}, nil
}
