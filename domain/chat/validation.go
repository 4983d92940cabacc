package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultUsername is used when a client does not provide one.
const DefaultUsername = "anonymous"

var validate = validator.New()

// Normalize trims every field and fills in the default username.
func (n NewMessage) Normalize() NewMessage {
	n.RoomID = strings.TrimSpace(n.RoomID)
	n.UserID = strings.TrimSpace(n.UserID)
	n.Username = strings.TrimSpace(n.Username)
	n.Body = strings.TrimSpace(n.Body)
	if n.Username == "" {
		n.Username = DefaultUsername
	}
	return n
}

// Validate checks a normalized message. Every returned error wraps
// ErrInvalidRequest.
func (n NewMessage) Validate() error {
	err := validate.Struct(n)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	fe := fieldErrs[0]
	switch fe.Field() {
	case "RoomID":
		if fe.Tag() == "required" {
			return ErrRoomIDRequired
		}
		return ErrRoomIDTooLong
	case "Body":
		if fe.Tag() == "required" {
			return ErrMessageEmpty
		}
		return ErrMessageTooLong
	case "Username":
		return ErrUsernameTooLong
	case "UserID":
		return ErrUserIDTooLong
	}
	return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, fe.Field(), fe.Tag())
}

// ValidateRoomID checks a trimmed room identifier.
func ValidateRoomID(roomID string) error {
	if err := validate.Var(roomID, "required,max=256"); err != nil {
		if roomID == "" {
			return ErrRoomIDRequired
		}
		return ErrRoomIDTooLong
	}
	return nil
}

// ValidateUsername checks a trimmed display name. Empty is allowed.
func ValidateUsername(username string) error {
	if err := validate.Var(username, "max=50"); err != nil {
		return ErrUsernameTooLong
	}
	return nil
}
