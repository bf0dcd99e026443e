// Package rpc exposes the question-answering engine over Connect so other
// services can call it without going through the REST surface.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/google/uuid"

	"github.com/paperlens-ai/paperlens/internal/answer"
	"github.com/paperlens-ai/paperlens/internal/observability"
)

// QueryServicePath is the Connect route prefix for the query service.
const QueryServicePath = "/paperlens.v1.QueryService/"

// AskRequest is the Connect request message.
type AskRequest struct {
	Question    string   `json:"question"`
	TopK        int32    `json:"top_k,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
}

// AskResponse is the Connect response message.
type AskResponse struct {
	Answer    string       `json:"answer"`
	Sources   []*AskSource `json:"sources"`
	Degraded  bool         `json:"degraded,omitempty"`
	Cached    bool         `json:"cached,omitempty"`
	LatencyMs int64        `json:"latency_ms"`
}

// AskSource is one cited record in the response.
type AskSource struct {
	DocumentID string  `json:"document_id"`
	RecordID   string  `json:"record_id"`
	Filename   string  `json:"filename"`
	Page       int32   `json:"page"`
	Similarity float64 `json:"similarity"`
	Excerpt    string  `json:"excerpt,omitempty"`
}

// QueryService implements the Connect query service over the answer engine.
type QueryService struct {
	engine *answer.Engine
	log    *observability.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(engine *answer.Engine, log *observability.Logger) *QueryService {
	return &QueryService{engine: engine, log: log}
}

// AskHandler returns the procedure path and handler to register on a mux.
func (s *QueryService) AskHandler() (string, http.Handler) {
	path := QueryServicePath + "Ask"
	return path, connect.NewUnaryHandler(path, s.Ask)
}

// Ask answers a question against the ingested corpus.
func (s *QueryService) Ask(ctx context.Context, req *connect.Request[AskRequest]) (*connect.Response[AskResponse], error) {
	msg := req.Msg

	if msg.Question == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("question is required"))
	}

	documentIDs := make([]uuid.UUID, 0, len(msg.DocumentIDs))
	for _, raw := range msg.DocumentIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				fmt.Errorf("invalid document id %q", raw))
		}
		documentIDs = append(documentIDs, id)
	}

	result, err := s.engine.Ask(ctx, answer.Request{
		Question:    msg.Question,
		TopK:        int(msg.TopK),
		DocumentIDs: documentIDs,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, connect.NewError(connect.CodeCanceled, ctx.Err())
		}
		s.log.Error().Err(err).Msg("Ask failed")
		return nil, connect.NewError(connect.CodeInternal, err)
	}

	return connect.NewResponse(toAskResponse(result)), nil
}

func toAskResponse(result *answer.Result) *AskResponse {
	resp := &AskResponse{
		Answer:    result.Answer,
		Sources:   make([]*AskSource, 0, len(result.Sources)),
		Degraded:  result.Degraded,
		Cached:    result.Cached,
		LatencyMs: result.LatencyMS,
	}
	for _, src := range result.Sources {
		resp.Sources = append(resp.Sources, &AskSource{
			DocumentID: src.DocumentID,
			RecordID:   src.RecordID,
			Filename:   src.Filename,
			Page:       int32(src.Page),
			Similarity: src.Similarity,
			Excerpt:    src.Excerpt,
		})
	}
	return resp
}
