// Package domain holds the booking record, the per-turn context and the value
// types exchanged between the pipeline, the router and the step handlers.
package domain

import "fmt"

// Step identifies a booking phase. Steps 2..7 are routable; step 1 is intake.
type Step int

const (
	StepIntake       Step = 1
	StepDate         Step = 2
	StepRoom         Step = 3
	StepOffer        Step = 4
	StepNegotiation  Step = 5
	StepTransition   Step = 6
	StepConfirmation Step = 7
)

// FirstRoutable and LastRoutable bound the steps that have a handler.
const (
	FirstRoutable = StepDate
	LastRoutable  = StepConfirmation
)

var stepNames = map[Step]string{
	StepIntake:       "intake",
	StepDate:         "date_confirmation",
	StepRoom:         "room_availability",
	StepOffer:        "offer",
	StepNegotiation:  "negotiation",
	StepTransition:   "transition",
	StepConfirmation: "confirmation",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Valid reports whether s is one of the seven booking steps.
func (s Step) Valid() bool {
	return s >= StepIntake && s <= StepConfirmation
}

// Routable reports whether a step handler owns s.
func (s Step) Routable() bool {
	return s >= FirstRoutable && s <= LastRoutable
}

// BlocksOnReview reports whether drafts requiring approval at this step must
// wait for a reviewer before anything reaches the client. Only steps 2..5 do.
func (s Step) BlocksOnReview() bool {
	return s >= StepDate && s <= StepNegotiation
}

// StepPtr returns a pointer to s.
func StepPtr(s Step) *Step {
	return &s
}

// ThreadState describes who the conversation is waiting on.
type ThreadState string

const (
	ThreadAwaitingClient  ThreadState = "awaiting_client"
	ThreadWaitingOnReview ThreadState = "waiting_on_review"
	ThreadIdle            ThreadState = "idle"
)
