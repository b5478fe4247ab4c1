package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/advoflow/advoflow/internal/gateway"
	"github.com/advoflow/advoflow/internal/logging"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gateway.Stub, *fakeOrders) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := gateway.NewStub("whsec_test")
	orders := &fakeOrders{}
	processor := NewProcessor(gw, NewMemoryStore(), orders, &fakePayouts{}, logging.Discard())

	r := gin.New()
	NewHandler(processor).RegisterRoutes(r.Group("/v1"))
	return r, gw, orders
}

func postWebhook(r *gin.Engine, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/gateway/webhook", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestWebhookEndpointAcknowledgesValidEvent(t *testing.T) {
	r, gw, orders := newTestRouter(t)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	w := postWebhook(r, payload, gw.Sign(payload))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"received":true`)
	require.Len(t, orders.calls, 1)
}

func TestWebhookEndpointRejectsBadSignature(t *testing.T) {
	r, _, orders := newTestRouter(t)

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	w := postWebhook(r, payload, "t=1,v1=deadbeef")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_signature")
	assert.Empty(t, orders.calls)
}

func TestWebhookEndpointRejectsMalformedPayload(t *testing.T) {
	r, gw, _ := newTestRouter(t)

	payload := []byte(`{"id":"evt_1"}`)
	w := postWebhook(r, payload, gw.Sign(payload))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_payload")
}

func TestWebhookEndpointReturns500OnDispatchFailure(t *testing.T) {
	r, gw, orders := newTestRouter(t)
	orders.err = assert.AnError

	payload := chargeEvent("evt_1", TypeChargeSucceeded, "pi_42")
	w := postWebhook(r, payload, gw.Sign(payload))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
