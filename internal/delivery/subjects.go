package delivery

const subjectDefault = "Your event booking"

var subjects = map[string]string{
	"offer":            "Your offer",
	"counter_offer":    "About your offer",
	"decline":          "Your enquiry",
	"billing_request":  "Billing details for your booking",
	"deposit_request":  "Deposit for your booking",
	"deposit_reminder": "Reminder: deposit for your booking",
	"confirmation":     "Booking confirmed",
	"site_visit":       "Your visit to the venue",
	"room_options":     "Available rooms for your event",
}

func subjectFor(kind string) string {
	if s, ok := subjects[kind]; ok {
		return s
	}
	return subjectDefault
}
