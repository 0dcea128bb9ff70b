package transport

import "github.com/google/uuid"

type ListTasksRequest struct {
	BookingID string `form:"bookingId" validate:"omitempty,uuid"`
}

// ApproveTaskRequest carries an optional replacement text. An empty or
// whitespace-only edit sends the original draft.
type ApproveTaskRequest struct {
	EditedText *string `json:"editedText,omitempty" validate:"omitempty,max=8000"`
}

type RejectTaskRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=2000"`
	// NotifyClient sends the rejection notice to the client right away.
	NotifyClient bool `json:"notifyClient,omitempty"`
}

// ParseBookingID returns nil for an empty filter.
func (r ListTasksRequest) ParseBookingID() *uuid.UUID {
	if r.BookingID == "" {
		return nil
	}
	id, err := uuid.Parse(r.BookingID)
	if err != nil {
		return nil
	}
	return &id
}
