package domain

import (
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const dateLayout = "2006-01-02"

func digest(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:16])
}

// RequirementsHash fingerprints capacity and feature requirements. Feature
// order and case do not matter.
func RequirementsHash(req Requirements) string {
	features := make([]string, 0, len(req.Features))
	for _, f := range req.Features {
		if f = strings.ToLower(strings.TrimSpace(f)); f != "" {
			features = append(features, f)
		}
	}
	slices.Sort(features)
	features = slices.Compact(features)
	return digest(
		"req",
		strconv.Itoa(req.Participants),
		strings.ToLower(strings.TrimSpace(req.Layout)),
		strings.Join(features, ","),
	)
}

// RoomEvaluationHash fingerprints the outcome of evaluating a room. The date is
// deliberately absent: the same room staying valid on another date yields the
// same hash.
func RoomEvaluationHash(roomID string, available bool, requirementsHash string) string {
	return digest("room", strings.ToLower(roomID), strconv.FormatBool(available), requirementsHash)
}

// OfferHash fingerprints every input of an offer.
func OfferHash(date time.Time, roomID, requirementsHash string, products []ProductLine) string {
	lines := make([]string, 0, len(products))
	for _, p := range products {
		lines = append(lines, fmt.Sprintf("%s:%d", strings.ToLower(p.Code), p.Quantity))
	}
	slices.Sort(lines)
	return digest("offer", date.Format(dateLayout), strings.ToLower(roomID), requirementsHash, strings.Join(lines, ","))
}

// CurrentOfferHash computes the offer hash from the record's committed inputs.
// It returns "" while the date or room is not committed.
func (r *Record) CurrentOfferHash() string {
	if !r.DateConfirmed() || !r.RoomLocked() {
		return ""
	}
	return OfferHash(*r.Event.ChosenDate, r.LockedRoomID, r.RequirementsHash, r.Products)
}

// OfferStale reports whether an existing offer no longer matches its inputs.
func (r *Record) OfferStale() bool {
	return r.Offer != nil && r.Offer.Hash != r.CurrentOfferHash()
}

// RoomEvaluationStale reports whether the cached room evaluation was computed
// for other requirements than the current ones.
func (r *Record) RoomEvaluationStale() bool {
	return r.RoomEval != nil && r.RoomEval.RequirementsHash != r.RequirementsHash
}

// ContentHash fingerprints draft text, ignoring whitespace differences.
func ContentHash(text string) string {
	return digest("content", strings.Join(strings.Fields(text), " "))
}

// ReviewSignature is the dedupe key for a review task: one pending decision per
// booking, step and draft content.
func ReviewSignature(bookingID uuid.UUID, step Step, contentHash string) string {
	return digest("review", bookingID.String(), strconv.Itoa(int(step)), contentHash)
}

// FormatDate renders a date the way replies show it (25.06.2026).
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}
