package store

import (
	"context"
	"encoding/json"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Adapter implements chat.MessageStore by calling the store module services.
type Adapter struct {
	container mono.ServiceContainer
}

var _ chat.MessageStore = (*Adapter)(nil)

// NewAdapter creates an Adapter over the store module's service container.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("store: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// Append calls store.append.
func (a *Adapter) Append(ctx context.Context, msg chat.NewMessage) (*chat.Message, error) {
	req := AppendRequest{Message: msg}
	var resp AppendResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceAppend,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, unavailable("append", err)
	}
	if resp.ErrorCode != "" {
		return nil, chat.ErrorFromCode(resp.ErrorCode, resp.Error)
	}
	return resp.Message, nil
}

// ListAll calls store.list.
func (a *Adapter) ListAll(ctx context.Context, roomID string) ([]*chat.Message, error) {
	req := ListRequest{RoomID: roomID}
	var resp ListResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceList,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, unavailable("list", err)
	}
	if resp.ErrorCode != "" {
		return nil, chat.ErrorFromCode(resp.ErrorCode, resp.Error)
	}
	if resp.Messages == nil {
		resp.Messages = []*chat.Message{}
	}
	return resp.Messages, nil
}
