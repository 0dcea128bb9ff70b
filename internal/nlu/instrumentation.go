package nlu

import "go.opentelemetry.io/otel"

const scopeName = "venue_booking_backend/internal/nlu"

var tracer = otel.Tracer(scopeName)
