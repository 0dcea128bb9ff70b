package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/repository"
)

// Messages

type SendMessageRequest struct {
	Message string `json:"message" validate:"required,notblank,max=8000"`
}

// Bookings

type ListBookingsRequest struct {
	ThreadState string `form:"threadState" validate:"omitempty,oneof=awaiting_client waiting_on_review idle"`
	Limit       int    `form:"limit" validate:"omitempty,min=1,max=200"`
}

type BookingSummaryResponse struct {
	ID          uuid.UUID `json:"id"`
	CurrentStep int       `json:"currentStep"`
	ThreadState string    `json:"threadState"`
	Version     int64     `json:"version"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type BookingListResponse struct {
	Items []BookingSummaryResponse `json:"items"`
	Total int                      `json:"total"`
}

// BookingResponse is the reviewer view of a booking. Working state of the
// engine (hashes, presented choices, the last raw message) is left out.
type BookingResponse struct {
	ID           uuid.UUID                  `json:"id"`
	CurrentStep  int                        `json:"currentStep"`
	CallerStep   *domain.Step               `json:"callerStep,omitempty"`
	ThreadState  string                     `json:"threadState"`
	Event        domain.EventDetails        `json:"event"`
	Requirements domain.Requirements        `json:"requirements"`
	LockedRoomID string                     `json:"lockedRoomId,omitempty"`
	Products     []domain.ProductLine       `json:"products"`
	Offer        *domain.Offer              `json:"offer,omitempty"`
	Billing      domain.BillingRequirements `json:"billing"`
	Deposit      domain.DepositState        `json:"deposit"`
	SiteVisit    domain.SiteVisitState      `json:"siteVisit"`
	Contact      domain.ContactInfo         `json:"contact"`
	Confirmed    bool                       `json:"confirmed"`
	ConfirmedAt  *time.Time                 `json:"confirmedAt,omitempty"`
	Deferred     []domain.DeferredIntent    `json:"deferred"`
	TurnCount    int                        `json:"turnCount"`
	Audit        []domain.AuditEntry        `json:"audit"`
	CreatedAt    time.Time                  `json:"createdAt"`
	UpdatedAt    time.Time                  `json:"updatedAt"`
}

// ToBookingResponse maps a record onto its response.
func ToBookingResponse(rec *domain.Record) (BookingResponse, error) {
	var resp BookingResponse
	if err := copier.CopyWithOption(&resp, rec, copier.Option{DeepCopy: true}); err != nil {
		return BookingResponse{}, err
	}
	if resp.Products == nil {
		resp.Products = []domain.ProductLine{}
	}
	if resp.Deferred == nil {
		resp.Deferred = []domain.DeferredIntent{}
	}
	if resp.Audit == nil {
		resp.Audit = []domain.AuditEntry{}
	}
	return resp, nil
}

// ToBookingListResponse maps listing rows onto their response.
func ToBookingListResponse(items []repository.Summary) (BookingListResponse, error) {
	out := make([]BookingSummaryResponse, 0, len(items))
	if err := copier.Copy(&out, &items); err != nil {
		return BookingListResponse{}, err
	}
	return BookingListResponse{Items: out, Total: len(out)}, nil
}
