package rules

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sfex/internal/logger"
	"sfex/pkg/errors"
	"sfex/pkg/models"
)

type fakeProfiles struct {
	ruleSets map[string]*RuleSet
	configs  map[string][]Config
}

func (f *fakeProfiles) RuleSet(vendorID string) (*RuleSet, error) {
	rs, ok := f.ruleSets[vendorID]
	if !ok {
		return nil, errors.ErrVendorNotFound.WithDetail("vendor_id", vendorID)
	}
	return rs, nil
}

func (f *fakeProfiles) RuleConfigs(vendorID string) ([]Config, error) {
	cfg, ok := f.configs[vendorID]
	if !ok {
		return nil, errors.ErrVendorNotFound.WithDetail("vendor_id", vendorID)
	}
	return cfg, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	configs := []Config{
		{Field: "Id", Kind: "required"},
		{Field: "Amount", Kind: "range", Min: floatPtr(0), Max: floatPtr(100)},
	}
	ruleSet, err := CompileRules(configs)
	require.NoError(t, err)

	profiles := &fakeProfiles{
		ruleSets: map[string]*RuleSet{"acme": ruleSet},
		configs:  map[string][]Config{"acme": configs},
	}

	router := gin.New()
	handler := NewHandler(NewEngine(profiles, logger.NopLogger()), profiles, logger.NopLogger())
	handler.RegisterRoutes(router)
	return router
}

func postValidate(t *testing.T, router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestValidateEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := postValidate(t, router, ValidateRequest{
		VendorID: "acme",
		Records: []models.Record{
			makeRecord("record_0", "Id", "1", "Amount", "50"),
			makeRecord("record_1", "Id", "2", "Amount", "500"),
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.IsValid)
	require.Len(t, result.Discrepancies, 1)
	assert.Equal(t, "record_1", result.Discrepancies[0].RecordID)
	assert.Equal(t, "Amount", result.Discrepancies[0].FieldName)
	assert.NotEmpty(t, result.CorrelationID)
}

func TestValidateEndpointCorrelationID(t *testing.T) {
	router := newTestRouter(t)

	// Body-supplied correlation id is echoed back.
	w := postValidate(t, router, ValidateRequest{
		VendorID:      "acme",
		CorrelationID: "corr-body",
		Records:       []models.Record{makeRecord("record_0", "Id", "1", "Amount", "50")},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result models.ValidationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "corr-body", result.CorrelationID)

	// The X-Correlation-ID header takes precedence over the body.
	payload, err := json.Marshal(ValidateRequest{
		VendorID:      "acme",
		CorrelationID: "corr-body",
		Records:       []models.Record{makeRecord("record_0", "Id", "1", "Amount", "50")},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Correlation-ID", "corr-header")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "corr-header", result.CorrelationID)
}

func TestValidateEndpointUnknownVendor(t *testing.T) {
	router := newTestRouter(t)

	w := postValidate(t, router, ValidateRequest{
		VendorID: "nobody",
		Records:  []models.Record{makeRecord("record_0", "Id", "1")},
	})
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "VENDOR_NOT_FOUND", body["error_code"])
}

func TestValidateEndpointRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t)

	w := postValidate(t, router, map[string]interface{}{"vendor_id": "acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVendorRules(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors/acme/rules", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		VendorID string   `json:"vendor_id"`
		Rules    []Config `json:"rules"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "acme", body.VendorID)
	require.Len(t, body.Rules, 2)
	assert.Equal(t, "Id", body.Rules[0].Field)
	assert.Equal(t, "range", body.Rules[1].Kind)
}

func TestGetVendorRulesUnknownVendor(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/vendors/nobody/rules", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
