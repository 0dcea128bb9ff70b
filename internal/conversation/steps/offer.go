package steps

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"venue_booking_backend/internal/conversation/domain"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/router"
	"venue_booking_backend/internal/conversation/shortcut"
)

// OfferHandler owns step 4: building the offer and sending it for review.
type OfferHandler struct {
	deps Deps
}

func (h *OfferHandler) Handle(_ context.Context, rec *domain.Record, turn *domain.TurnContext) (router.Outcome, error) {
	if !rec.RoomLocked() {
		return router.Advance(domain.StepRoom, "offer needs a locked room"), nil
	}
	addProducts(h.deps.Policy, rec, turn.Signals.Entities)

	offer := rec.Offer
	if offer != nil && !rec.OfferStale() {
		switch offer.Status {
		case domain.OfferSent:
			switch turn.Signals.Intent {
			case domain.IntentAcceptOffer, domain.IntentCounterOffer, domain.IntentDeclineOffer:
				return router.Advance(domain.StepNegotiation, "client answered the offer"), nil
			}
			return router.Reply(draft(domain.StepOffer, KindOfferStatus,
				"Your offer is waiting for you. Let us know if you would like to accept it or if anything should change.")), nil
		case domain.OfferPendingReview:
			return router.Reply(draft(domain.StepOffer, KindOfferStatus,
				"Your offer is being finalised by our team and will reach you shortly.")), nil
		case domain.OfferAccepted, domain.OfferDeclined:
			return router.Advance(domain.StepNegotiation, "offer already answered"), nil
		}
	}

	built := buildOffer(h.deps.Policy, rec, turn)
	rec.Offer = built

	d := draft(domain.StepOffer, KindOffer, renderOffer(rec, built))
	d.RequiresApproval = true
	d.Summary = map[string]any{
		"offerId":    built.ID.String(),
		"version":    built.Version,
		"totalCents": built.TotalCents,
	}
	return router.Reply(d), nil
}

func addProducts(pol *policy.Policy, rec *domain.Record, ent domain.Entities) {
	var known []domain.ProductLine
	for _, line := range ent.Products {
		if _, ok := pol.Product(line.Code); ok {
			known = append(known, line)
		}
	}
	if len(known) > 0 {
		rec.Products = shortcut.MergeProducts(rec.Products, known)
	}
}

func buildOffer(pol *policy.Policy, rec *domain.Record, turn *domain.TurnContext) *domain.Offer {
	guests := max(rec.Requirements.Participants, 1)

	var lines []domain.OfferLine
	if room, ok := pol.Room(rec.LockedRoomID); ok {
		lines = append(lines, offerLine(room.Name+" (day rate)", 1, room.DailyRateCents))
	}
	for _, p := range rec.Products {
		product, ok := pol.Product(p.Code)
		if !ok {
			continue
		}
		qty := max(p.Quantity, 1)
		if product.PerPerson {
			qty = guests
		}
		lines = append(lines, offerLine(product.Name, qty, product.PriceCents))
	}

	var total int64
	for _, l := range lines {
		total += l.TotalCents
	}

	version := 1
	if rec.Offer != nil {
		version = rec.Offer.Version + 1
	}
	return &domain.Offer{
		ID:         uuid.New(),
		Status:     domain.OfferPendingReview,
		Hash:       rec.CurrentOfferHash(),
		Lines:      lines,
		TotalCents: total,
		Version:    version,
		CreatedAt:  turn.ReceivedAt,
	}
}

func offerLine(desc string, qty int, unit int64) domain.OfferLine {
	return domain.OfferLine{Description: desc, Quantity: qty, UnitCents: unit, TotalCents: int64(qty) * unit}
}

func renderOffer(rec *domain.Record, offer *domain.Offer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is your offer for %s (%d guests):\n",
		domain.FormatDate(*rec.Event.ChosenDate), rec.Requirements.Participants)
	for _, l := range offer.Lines {
		fmt.Fprintf(&b, "- %s: %d x %s = %s\n", l.Description, l.Quantity, money(l.UnitCents), money(l.TotalCents))
	}
	fmt.Fprintf(&b, "Total: %s\n", money(offer.TotalCents))
	b.WriteString("Would you like to confirm this offer?")
	return b.String()
}

func money(cents int64) string {
	return fmt.Sprintf("CHF %d.%02d", cents/100, cents%100)
}
