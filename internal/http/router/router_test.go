package router_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"venue_booking_backend/internal/conversation"
	"venue_booking_backend/internal/conversation/lock"
	"venue_booking_backend/internal/conversation/policy"
	"venue_booking_backend/internal/conversation/repository"
	"venue_booking_backend/internal/conversation/service"
	"venue_booking_backend/internal/events"
	"venue_booking_backend/internal/hil"
	hilrepo "venue_booking_backend/internal/hil/repository"
	"venue_booking_backend/internal/hil/review"
	apphttp "venue_booking_backend/internal/http"
	"venue_booking_backend/internal/http/router"
	"venue_booking_backend/internal/nlu"
	"venue_booking_backend/platform/config"
	"venue_booking_backend/platform/logger"
	"venue_booking_backend/platform/validator"
)

const secret = "test-reviewer-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	log := logger.Discard()
	bus := events.NewInMemoryBus(log)
	svc, err := service.New(service.Deps{
		Store:    repository.NewMemory(),
		Locker:   lock.NewLocal(),
		Detector: nlu.NewResilient(nlu.NewRules(), time.Second, log),
		Queue:    hil.NewQueue(hilrepo.NewMemory(), bus, log),
		Policy:   policy.Default(),
		Bus:      bus,
		Log:      log,
		Now:      func() time.Time { return time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	cfg := &config.Config{
		JWTReviewerSecret: secret,
		CORSAllowAll:      true,
		MessageRateLimit:  100,
		MessageRateBurst:  100,
	}
	val := validator.New()
	return router.New(&apphttp.App{
		Config: cfg,
		Logger: log,
		Modules: []apphttp.Module{
			conversation.NewModule(svc, val),
			review.NewModule(svc, val),
		},
	})
}

func token(t *testing.T, roles ...string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   uuid.New().String(),
		"type":  "access",
		"roles": roles,
		"name":  "Mia Keller",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, engine *gin.Engine, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	rec := do(t, newEngine(t), http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSendMessage_Validation(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, http.MethodPost, "/api/v1/bookings/not-a-uuid/messages", "", map[string]string{"message": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, engine, http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/messages", "", map[string]string{"message": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation failed", decode(t, rec)["error"])
}

func TestReviewRoutes_RequireReviewerToken(t *testing.T) {
	engine := newEngine(t)

	rec := do(t, engine, http.MethodGet, "/api/v1/review/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, engine, http.MethodGet, "/api/v1/review/tasks", token(t, "client"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, engine, http.MethodGet, "/api/v1/bookings/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOfferReviewRoundTrip(t *testing.T) {
	engine := newEngine(t)
	reviewer := token(t, "reviewer")
	bookingID := uuid.NewString()

	rec := do(t, engine, http.MethodPost, "/api/v1/bookings/"+bookingID+"/messages", "",
		map[string]string{"message": "Room B for 25 people on May 7, 2026. You can reach me at jane@example.com"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	turn := decode(t, rec)
	assert.Equal(t, true, turn["pendingApproval"])
	assert.EqualValues(t, 4, turn["step"])
	taskID, ok := turn["taskId"].(string)
	require.True(t, ok, "a blocking review task must be reported")

	rec = do(t, engine, http.MethodGet, "/api/v1/review/tasks?bookingId="+bookingID, reviewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])

	rec = do(t, engine, http.MethodPost, "/api/v1/review/tasks/"+taskID+"/approve", reviewer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode(t, rec)
	assert.Contains(t, approved["reply"], "Here is your offer")
	task := approved["task"].(map[string]any)
	assert.Equal(t, "Mia Keller", task["reviewer"])

	rec = do(t, engine, http.MethodPost, "/api/v1/review/tasks/"+taskID+"/reject", reviewer, map[string]any{"notes": "too late"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	conflict := decode(t, rec)
	details := conflict["details"].(map[string]any)
	assert.Equal(t, "approved", details["status"])

	rec = do(t, engine, http.MethodGet, "/api/v1/bookings/"+bookingID, reviewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	booking := decode(t, rec)
	assert.Equal(t, "room-b", booking["lockedRoomId"])
	assert.Equal(t, "awaiting_client", booking["threadState"])
	assert.NotEmpty(t, booking["audit"])
	assert.NotContains(t, booking, "lastClientMessage")
}

func TestDepositPaid_UnknownBooking(t *testing.T) {
	rec := do(t, newEngine(t), http.MethodPost, "/api/v1/bookings/"+uuid.NewString()+"/deposit-paid", token(t, "reviewer"), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
