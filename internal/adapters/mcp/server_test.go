package mcpadapter

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/docuquery/retrieval-engine/internal/core/domain"
)

type retrieverFake struct {
	lastQuestion string
	lastScope    domain.SearchScope
	lastOpts     domain.RetrievalOptions
}

func (f *retrieverFake) Retrieve(_ context.Context, question string, scope domain.SearchScope, opts domain.RetrievalOptions) (*domain.RetrievalResult, error) {
	f.lastQuestion = question
	f.lastScope = scope
	f.lastOpts = opts
	return &domain.RetrievalResult{
		Chunks:   []domain.FusedChunk{{ID: "c-1", Text: "clause text", FusedScore: 0.9, BestScore: 0.9}},
		Strategy: domain.StrategyStandard,
	}, nil
}

type usageFake struct{}

func (usageFake) Snapshot() domain.UsageSnapshot {
	return domain.UsageSnapshot{Queries: 3, HydeActivated: 1}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textContent(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatalf("empty tool result")
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		t.Fatalf("expected text content, got %T", result.Content[0])
	}
	return text.Text
}

func TestRetrieveToolReturnsResultJSON(t *testing.T) {
	fake := &retrieverFake{}
	srv := NewServer(fake, usageFake{}, domain.DefaultRetrievalOptions(), nil)

	result, err := srv.handleRetrieve(context.Background(), callRequest(map[string]any{
		"question":    "what is a warranty?",
		"document_id": "d-1",
		"top_k":       float64(5),
	}))
	if err != nil {
		t.Fatalf("handleRetrieve() error = %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %v", result.Content)
	}

	if fake.lastScope.DocumentID != "d-1" {
		t.Fatalf("scope not forwarded: %+v", fake.lastScope)
	}
	if fake.lastOpts.TopKFinal != 5 {
		t.Fatalf("top_k not forwarded: %+v", fake.lastOpts)
	}

	var decoded domain.RetrievalResult
	if err := json.Unmarshal([]byte(textContent(t, result)), &decoded); err != nil {
		t.Fatalf("decode tool payload: %v", err)
	}
	if len(decoded.Chunks) != 1 || decoded.Chunks[0].ID != "c-1" {
		t.Fatalf("unexpected payload: %+v", decoded)
	}
}

func TestRetrieveToolRequiresQuestion(t *testing.T) {
	srv := NewServer(&retrieverFake{}, usageFake{}, domain.DefaultRetrievalOptions(), nil)

	result, err := srv.handleRetrieve(context.Background(), callRequest(map[string]any{
		"question": "   ",
	}))
	if err != nil {
		t.Fatalf("handleRetrieve() error = %v", err)
	}
	if !result.IsError {
		t.Fatalf("blank question must produce a tool error")
	}
}

func TestUsageStatsTool(t *testing.T) {
	srv := NewServer(&retrieverFake{}, usageFake{}, domain.DefaultRetrievalOptions(), nil)

	result, err := srv.handleUsageStats(context.Background(), mcp.CallToolRequest{})
	if err != nil {
		t.Fatalf("handleUsageStats() error = %v", err)
	}

	var snap domain.UsageSnapshot
	if err := json.Unmarshal([]byte(textContent(t, result)), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Queries != 3 || snap.HydeActivated != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}
