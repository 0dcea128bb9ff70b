package nlu

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/agent/llmagent"
	"google.golang.org/adk/model"
	"google.golang.org/adk/runner"
	"google.golang.org/adk/session"
	"google.golang.org/genai"

	"venue_booking_backend/internal/conversation/domain"
)

const llmAppName = "venue-booking-nlu"

// llmOutput is the JSON object the model must return.
type llmOutput struct {
	Intent           string      `json:"intent" jsonschema:"enum=event_request,enum=confirm_date,enum=select_room,enum=add_products,enum=accept_offer,enum=counter_offer,enum=decline_offer,enum=provide_billing,enum=confirm_deposit,enum=site_visit,enum=update_contact,enum=change_request,enum=general_question,enum=none"`
	Confidence       float64     `json:"confidence" jsonschema:"minimum=0,maximum=1"`
	Date             string      `json:"date,omitempty" jsonschema:"description=Event date as YYYY-MM-DD if the message states one"`
	DateText         string      `json:"dateText,omitempty"`
	Room             string      `json:"room,omitempty" jsonschema:"description=Room letter or name such as B"`
	Participants     int         `json:"participants,omitempty"`
	Layout           string      `json:"layout,omitempty"`
	Features         []string    `json:"features,omitempty"`
	Products         []string    `json:"products,omitempty" jsonschema:"description=Product codes from coffee lunch apero and tech"`
	Billing          *llmBilling `json:"billing,omitempty"`
	Contact          llmContact  `json:"contact"`
	OptionIndex      int         `json:"optionIndex,omitempty" jsonschema:"description=1-based position when the client picks from a list"`
	IsManagerRequest bool        `json:"isManagerRequest"`
	IsQuestion       bool        `json:"isQuestion"`
	Language         string      `json:"language" jsonschema:"description=ISO 639-1 code"`
}

type llmBilling struct {
	Name       string `json:"name,omitempty"`
	Company    string `json:"company,omitempty"`
	Street     string `json:"street,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	City       string `json:"city,omitempty"`
	Country    string `json:"country,omitempty"`
	VATNumber  string `json:"vatNumber,omitempty"`
}

type llmContact struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// LLM detects signals with a language model through an ADK agent. One call is
// made per message.
type LLM struct {
	runner         *runner.Runner
	sessionService session.Service
	runMu          sync.Mutex
}

// NewLLM builds the detection agent on top of llm.
func NewLLM(llm model.LLM) (*LLM, error) {
	schema, err := outputSchema()
	if err != nil {
		return nil, err
	}

	detector, err := llmagent.New(llmagent.Config{
		Name:        "SignalDetector",
		Model:       llm,
		Description: "Classifies venue booking messages into intent and entities.",
		Instruction: detectorInstruction(schema),
		GenerateContentConfig: &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("nlu: create agent: %w", err)
	}

	sessionService := session.InMemoryService()
	r, err := runner.New(runner.Config{
		AppName:        llmAppName,
		Agent:          detector,
		SessionService: sessionService,
	})
	if err != nil {
		return nil, fmt.Errorf("nlu: create runner: %w", err)
	}

	return &LLM{runner: r, sessionService: sessionService}, nil
}

// Detect implements Provider.
func (l *LLM) Detect(ctx context.Context, message string, hints Hints) (domain.Signals, error) {
	l.runMu.Lock()
	defer l.runMu.Unlock()

	userID := "booking"
	sessionID := uuid.New().String()
	if _, err := l.sessionService.Create(ctx, &session.CreateRequest{
		AppName:   llmAppName,
		UserID:    userID,
		SessionID: sessionID,
	}); err != nil {
		return domain.Signals{}, fmt.Errorf("nlu: create session: %w", err)
	}
	defer func() {
		_ = l.sessionService.Delete(context.WithoutCancel(ctx), &session.DeleteRequest{
			AppName:   llmAppName,
			UserID:    userID,
			SessionID: sessionID,
		})
	}()

	content := &genai.Content{
		Role:  "user",
		Parts: []*genai.Part{{Text: detectorPrompt(message, hints)}},
	}

	var raw strings.Builder
	for event, err := range l.runner.Run(ctx, userID, sessionID, content, agent.RunConfig{StreamingMode: agent.StreamingModeNone}) {
		if err != nil {
			return domain.Signals{}, fmt.Errorf("nlu: run: %w", err)
		}
		if event.Content == nil {
			continue
		}
		for _, part := range event.Content.Parts {
			raw.WriteString(part.Text)
		}
	}

	now := hints.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return parseLLMOutput(raw.String(), message, now)
}

func outputSchema() (string, error) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&llmOutput{})
	data, err := schema.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("nlu: output schema: %w", err)
	}
	return string(data), nil
}

func detectorInstruction(schema string) string {
	return `You classify messages sent by clients of an event venue during a booking conversation.
Return exactly one JSON object matching this schema and nothing else:
` + schema + `
Rules:
- Use "change_request" only when the client revises something already agreed (e.g. "actually", "instead", "change the date").
- Set isManagerRequest only when the client explicitly asks for a human.
- Leave fields empty rather than guessing.`
}

func detectorPrompt(message string, hints Hints) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current booking step: %d (%s)\n", int(hints.CurrentStep), hints.CurrentStep)
	if hints.ChoiceKind != "" {
		fmt.Fprintf(&b, "The client was just shown a numbered list of %s options.\n", hints.ChoiceKind)
	}
	if !hints.Now.IsZero() {
		fmt.Fprintf(&b, "Today is %s.\n", hints.Now.Format("2006-01-02"))
	}
	b.WriteString("Message:\n")
	b.WriteString(message)
	return b.String()
}

// parseLLMOutput decodes the model answer. Values the model could not
// resolve stay absent; BareNumber is always taken from the raw message.
func parseLLMOutput(raw, message string, now time.Time) (domain.Signals, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return domain.Signals{}, fmt.Errorf("%w: no JSON object in model output", ErrUnavailable)
	}

	var out llmOutput
	if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err != nil {
		return domain.Signals{}, fmt.Errorf("%w: decode model output: %v", ErrUnavailable, err)
	}

	ent := domain.Entities{
		DateText:     out.DateText,
		Participants: out.Participants,
		Layout:       strings.ToLower(out.Layout),
		Features:     out.Features,
		Name:         out.Contact.Name,
		Email:        strings.ToLower(out.Contact.Email),
		Phone:        out.Contact.Phone,
		Company:      out.Contact.Company,
		OptionIndex:  out.OptionIndex,
		BareNumber:   ExtractEntities(message, now).BareNumber,
	}
	if out.Date != "" {
		if t, err := time.Parse("2006-01-02", out.Date); err == nil {
			ent.Date = &t
		}
	}
	if room := strings.TrimSpace(out.Room); room != "" {
		room = strings.ToLower(strings.TrimPrefix(strings.ToLower(room), "room"))
		ent.RoomID = "room-" + strings.Trim(strings.TrimSpace(room), "-")
	}
	for _, code := range out.Products {
		ent.Products = append(ent.Products, domain.ProductLine{Code: strings.ToLower(code), Quantity: 1})
	}
	if out.Billing != nil {
		ent.Billing = &domain.BillingDetails{
			Name:       out.Billing.Name,
			Company:    out.Billing.Company,
			Street:     out.Billing.Street,
			PostalCode: out.Billing.PostalCode,
			City:       out.Billing.City,
			Country:    out.Billing.Country,
			VATNumber:  out.Billing.VATNumber,
		}
	}

	intent := domain.Intent(out.Intent)
	if out.Intent == "none" {
		intent = domain.IntentNone
	}
	return domain.Signals{
		Intent:           intent,
		Confidence:       out.Confidence,
		Entities:         ent,
		IsManagerRequest: out.IsManagerRequest,
		IsQuestion:       out.IsQuestion,
		Language:         out.Language,
	}, nil
}
