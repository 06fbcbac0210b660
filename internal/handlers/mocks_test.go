package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/inzira/ticketing-core/internal/middleware"
	"github.com/inzira/ticketing-core/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBookings struct{ mock.Mock }

func (m *mockBookings) Create(ctx context.Context, req *models.CreateBookingRequest) (*models.Booking, error) {
	args := m.Called(ctx, req)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Confirm(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Cancel(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	args := m.Called(ctx, id)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	args := m.Called(ctx, reference)
	b, _ := args.Get(0).(*models.Booking)
	return b, args.Error(1)
}

func (m *mockBookings) ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]models.Booking, error) {
	args := m.Called(ctx, customerID, limit, offset)
	b, _ := args.Get(0).([]models.Booking)
	return b, args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) Initiate(ctx context.Context, req *models.InitiatePaymentRequest, meta models.RequestMeta) (*models.InitiatePaymentResponse, error) {
	args := m.Called(ctx, req, meta)
	r, _ := args.Get(0).(*models.InitiatePaymentResponse)
	return r, args.Error(1)
}

func (m *mockPayments) HandleWebhook(ctx context.Context, providerName string, body []byte, signature string, meta models.RequestMeta) (*models.TransitionResult, error) {
	args := m.Called(ctx, providerName, body, signature, meta)
	r, _ := args.Get(0).(*models.TransitionResult)
	return r, args.Error(1)
}

func (m *mockPayments) ConfirmWithProvider(ctx context.Context, providerName, sessionID, reference string, meta models.RequestMeta) (*models.TransitionResult, error) {
	args := m.Called(ctx, providerName, sessionID, reference, meta)
	r, _ := args.Get(0).(*models.TransitionResult)
	return r, args.Error(1)
}

func (m *mockPayments) CheckStatus(ctx context.Context, reference string) (*models.PaymentStatusView, error) {
	args := m.Called(ctx, reference)
	r, _ := args.Get(0).(*models.PaymentStatusView)
	return r, args.Error(1)
}

func (m *mockPayments) HandleCallback(ctx context.Context, providerName, reference string, body []byte, meta models.RequestMeta) (*models.TransitionResult, error) {
	args := m.Called(ctx, providerName, reference, body, meta)
	r, _ := args.Get(0).(*models.TransitionResult)
	return r, args.Error(1)
}

func (m *mockPayments) Refund(ctx context.Context, reference string, req *models.RefundRequest, meta models.RequestMeta) (*models.TransitionResult, error) {
	args := m.Called(ctx, reference, req, meta)
	r, _ := args.Get(0).(*models.TransitionResult)
	return r, args.Error(1)
}

func (m *mockPayments) Cancel(ctx context.Context, reference string, meta models.RequestMeta) (*models.TransitionResult, error) {
	args := m.Called(ctx, reference, meta)
	r, _ := args.Get(0).(*models.TransitionResult)
	return r, args.Error(1)
}

func (m *mockPayments) AuditTrail(ctx context.Context, reference string) ([]models.PaymentAudit, error) {
	args := m.Called(ctx, reference)
	r, _ := args.Get(0).([]models.PaymentAudit)
	return r, args.Error(1)
}

type mockTickets struct{ mock.Mock }

func (m *mockTickets) Redeem(ctx context.Context, checker models.Checker, req *models.VerifyTicketRequest) (*models.TicketVerificationResponse, error) {
	args := m.Called(ctx, checker, req)
	r, _ := args.Get(0).(*models.TicketVerificationResponse)
	return r, args.Error(1)
}

func (m *mockTickets) TripManifest(ctx context.Context, checker models.Checker, tripID uuid.UUID) ([]models.ManifestEntry, error) {
	args := m.Called(ctx, checker, tripID)
	r, _ := args.Get(0).([]models.ManifestEntry)
	return r, args.Error(1)
}

type mockReaper struct{ mock.Mock }

func (m *mockReaper) RunOnce(ctx context.Context) (*models.ReapResult, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*models.ReapResult)
	return r, args.Error(1)
}

type mockSweeper struct{ mock.Mock }

func (m *mockSweeper) RunOnce(ctx context.Context) (*models.TripStatusSweepResult, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*models.TripStatusSweepResult)
	return r, args.Error(1)
}

func (m *mockSweeper) Stats(ctx context.Context) (*models.TripStatusStats, error) {
	args := m.Called(ctx)
	r, _ := args.Get(0).(*models.TripStatusStats)
	return r, args.Error(1)
}

type mockTripDeleter struct{ mock.Mock }

func (m *mockTripDeleter) DeleteTrip(ctx context.Context, tripID uuid.UUID) error {
	return m.Called(ctx, tripID).Error(0)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// newTestRouter returns an engine that authenticates every request as user
func newTestRouter(user middleware.UserContext) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(middleware.UserContextKey, user)
		c.Next()
	})
	return router
}

func passenger() middleware.UserContext {
	return middleware.UserContext{UserID: uuid.New(), Roles: []string{"passenger"}}
}

func agencyUser(roles ...string) middleware.UserContext {
	agencyID := uuid.New()
	return middleware.UserContext{UserID: uuid.New(), Roles: roles, AgencyID: &agencyID}
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "handler-test")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var anyCtx = mock.Anything

func assertStatus(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	require.Equal(t, status, w.Code, w.Body.String())
	if code != "" {
		require.Equal(t, code, decode(t, w)["code"])
	}
}
