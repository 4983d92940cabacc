package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// Message sources carried by MessagePostedEvent.
const (
	SourcePoll = "poll"
	SourcePush = "push"
)

// Leave reasons carried by UserLeftEvent.
const (
	ReasonLeave      = "leave"
	ReasonRejoin     = "rejoin"
	ReasonDisconnect = "disconnect"
	ReasonEvicted    = "evicted"
)

// MessagePostedEvent is emitted after a message has been stored and fanned out.
type MessagePostedEvent struct {
	RoomID    string    `json:"room_id"`
	Seq       int64     `json:"seq"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Source    string    `json:"source"` // "poll" or "push"
	Timestamp time.Time `json:"timestamp"`
}

// UserJoinedEvent is emitted when a push subscriber joins a room.
type UserJoinedEvent struct {
	RoomID       string    `json:"room_id"`
	SubscriberID string    `json:"subscriber_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserLeftEvent is emitted when a push subscriber leaves a room or disconnects.
type UserLeftEvent struct {
	RoomID       string    `json:"room_id"`
	SubscriberID string    `json:"subscriber_id"`
	UserID       string    `json:"user_id"`
	Username     string    `json:"username"`
	Reason       string    `json:"reason"` // "leave", "rejoin", "disconnect", "evicted"
	Timestamp    time.Time `json:"timestamp"`
}

// Event definitions for the relay domain.
var (
	MessagePostedV1 = helper.EventDefinition[MessagePostedEvent](
		"relay",
		"MessagePosted",
		"v1",
	)

	UserJoinedV1 = helper.EventDefinition[UserJoinedEvent](
		"relay",
		"UserJoined",
		"v1",
	)

	UserLeftV1 = helper.EventDefinition[UserLeftEvent](
		"relay",
		"UserLeft",
		"v1",
	)
)
