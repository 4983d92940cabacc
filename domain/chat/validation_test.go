package chat

import (
	"errors"
	"strings"
	"testing"
)

func TestNewMessage_Normalize(t *testing.T) {
	n := NewMessage{
		RoomID:   "  room1 ",
		UserID:   " u1",
		Username: "   ",
		Body:     "\n hello \t",
	}.Normalize()

	if n.RoomID != "room1" {
		t.Errorf("RoomID = %q, want %q", n.RoomID, "room1")
	}
	if n.UserID != "u1" {
		t.Errorf("UserID = %q, want %q", n.UserID, "u1")
	}
	if n.Username != DefaultUsername {
		t.Errorf("Username = %q, want %q", n.Username, DefaultUsername)
	}
	if n.Body != "hello" {
		t.Errorf("Body = %q, want %q", n.Body, "hello")
	}
}

func TestNewMessage_Validate(t *testing.T) {
	tests := []struct {
		name    string
		msg     NewMessage
		wantErr error
	}{
		{
			name: "valid message",
			msg:  NewMessage{RoomID: "room1", Username: "alice", Body: "hello"},
		},
		{
			name: "unicode at the limit",
			msg:  NewMessage{RoomID: "room1", Username: strings.Repeat("é", 50), Body: "hi"},
		},
		{
			name:    "missing room id",
			msg:     NewMessage{Username: "alice", Body: "hello"},
			wantErr: ErrRoomIDRequired,
		},
		{
			name:    "room id too long",
			msg:     NewMessage{RoomID: strings.Repeat("r", 257), Body: "hello"},
			wantErr: ErrRoomIDTooLong,
		},
		{
			name:    "empty body",
			msg:     NewMessage{RoomID: "room1", Username: "alice"},
			wantErr: ErrMessageEmpty,
		},
		{
			name:    "whitespace body after normalize",
			msg:     NewMessage{RoomID: "room1", Body: "   \n\t "}.Normalize(),
			wantErr: ErrMessageEmpty,
		},
		{
			name:    "body too long",
			msg:     NewMessage{RoomID: "room1", Body: strings.Repeat("a", 5001)},
			wantErr: ErrMessageTooLong,
		},
		{
			name:    "username too long",
			msg:     NewMessage{RoomID: "room1", Username: strings.Repeat("u", 51), Body: "hi"},
			wantErr: ErrUsernameTooLong,
		},
		{
			name:    "user id too long",
			msg:     NewMessage{RoomID: "room1", UserID: strings.Repeat("i", 129), Body: "hi"},
			wantErr: ErrUserIDTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() error = %v, want %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidRequest) {
				t.Errorf("Validate() error %v does not wrap ErrInvalidRequest", err)
			}
		})
	}
}
