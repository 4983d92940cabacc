package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/example/chat-relay/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// Adapter calls the relay module services. It gives other modules the
// post and history operations without a direct reference to the module.
type Adapter struct {
	container mono.ServiceContainer
}

// NewAdapter creates an Adapter over the relay module's service container.
func NewAdapter(container mono.ServiceContainer) *Adapter {
	if container == nil {
		panic("relay: ServiceContainer is nil")
	}
	return &Adapter{container: container}
}

// Post calls relay.post.
func (a *Adapter) Post(ctx context.Context, msg chat.NewMessage, source string) (*chat.Message, error) {
	req := PostRequest{Message: msg, Source: source}
	var resp PostResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePost,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%w: post: %w", chat.ErrStoreUnavailable, err)
	}
	if resp.ErrorCode != "" {
		return nil, chat.ErrorFromCode(resp.ErrorCode, resp.Error)
	}
	return resp.Message, nil
}

// History calls relay.history.
func (a *Adapter) History(ctx context.Context, roomID string) ([]*chat.Message, error) {
	req := HistoryRequest{RoomID: roomID}
	var resp HistoryResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServiceHistory,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return nil, fmt.Errorf("%w: history: %w", chat.ErrStoreUnavailable, err)
	}
	if resp.ErrorCode != "" {
		return nil, chat.ErrorFromCode(resp.ErrorCode, resp.Error)
	}
	if resp.Messages == nil {
		resp.Messages = []*chat.Message{}
	}
	return resp.Messages, nil
}
