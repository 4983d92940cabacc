package store

import (
	"context"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
)

// handleAppend handles the store.append service request.
func (m *Module) handleAppend(ctx context.Context, req AppendRequest, _ *mono.Msg) (AppendResponse, error) {
	msg, err := m.driver.Append(ctx, req.Message)
	if err != nil {
		m.logger.Warn("Append failed", "roomID", req.Message.RoomID, "error", err)
		return AppendResponse{ErrorCode: chat.ErrorCode(err), Error: err.Error()}, nil
	}
	return AppendResponse{Message: msg}, nil
}

// handleList handles the store.list service request.
func (m *Module) handleList(ctx context.Context, req ListRequest, _ *mono.Msg) (ListResponse, error) {
	messages, err := m.driver.ListAll(ctx, req.RoomID)
	if err != nil {
		m.logger.Warn("List failed", "roomID", req.RoomID, "error", err)
		return ListResponse{ErrorCode: chat.ErrorCode(err), Error: err.Error()}, nil
	}
	return ListResponse{Messages: messages}, nil
}
