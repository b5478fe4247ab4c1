package payee

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(newDirectory()).RegisterRoutes(r.Group("/v1"))
	return r
}

func postJSON(r *gin.Engine, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestRegisterPayeeEndpoint(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/v1/payees", `{"lawyerId":"lw_1","displayName":"A. Counsel","email":"a@firm.example"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"verified":false`) {
		t.Errorf("registration must not verify the account: %s", w.Body.String())
	}
}

func TestRegisterPayeeRejectsInvalidProfile(t *testing.T) {
	r := newTestRouter()

	w := postJSON(r, "/v1/payees", `{"lawyerId":"lw_1","displayName":"","email":"not-an-email"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestVerifyPayeeEndpoint(t *testing.T) {
	r := newTestRouter()
	postJSON(r, "/v1/payees", `{"lawyerId":"lw_1","displayName":"A. Counsel","email":"a@firm.example"}`)

	w := postJSON(r, "/v1/payees/lw_1/verify", `{"accountRef":"acct_123"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"verified":true`) {
		t.Errorf("verify did not mark account verified: %s", w.Body.String())
	}

	w = postJSON(r, "/v1/payees/lw_1/verify", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty accountRef: status = %d, want 400", w.Code)
	}
}

func TestGetPayeeNotFound(t *testing.T) {
	r := newTestRouter()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/payees/lw_missing", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
