package relay

import (
	"context"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
)

// handlePost handles the relay.post service request.
func (m *Module) handlePost(ctx context.Context, req PostRequest, _ *mono.Msg) (PostResponse, error) {
	source := req.Source
	if source == "" {
		source = SourcePoll
	}
	msg, err := m.coordinator.Post(ctx, req.Message, source)
	if err != nil {
		return PostResponse{ErrorCode: chat.ErrorCode(err), Error: err.Error()}, nil
	}
	return PostResponse{Message: msg}, nil
}

// handleHistory handles the relay.history service request.
func (m *Module) handleHistory(ctx context.Context, req HistoryRequest, _ *mono.Msg) (HistoryResponse, error) {
	messages, err := m.coordinator.History(ctx, req.RoomID)
	if err != nil {
		return HistoryResponse{ErrorCode: chat.ErrorCode(err), Error: err.Error()}, nil
	}
	return HistoryResponse{Messages: messages}, nil
}
