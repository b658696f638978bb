package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medscout/rxsearch/pkg/config"
	"github.com/medscout/rxsearch/pkg/grouping"
	"github.com/medscout/rxsearch/pkg/index"
	"github.com/medscout/rxsearch/pkg/rxerr"
	"github.com/medscout/rxsearch/pkg/search"
)

type stubService struct {
	searchResp *search.Response
	searchErr  error
	drugResp   *search.DrugResponse
	drugErr    error
	altResp    *search.AlternativesResponse
	altErr     error

	lastRequest *search.Request
	lastNDC     string
}

func (s *stubService) Search(ctx context.Context, req *search.Request) (*search.Response, error) {
	s.lastRequest = req
	return s.searchResp, s.searchErr
}

func (s *stubService) Drug(ctx context.Context, ndc string) (*search.DrugResponse, error) {
	s.lastNDC = ndc
	return s.drugResp, s.drugErr
}

func (s *stubService) Alternatives(ctx context.Context, ndc string) (*search.AlternativesResponse, error) {
	s.lastNDC = ndc
	return s.altResp, s.altErr
}

func newTestServer(t *testing.T, svc SearchService) http.Handler {
	t.Helper()
	cfg := config.NewDefaultConfig()
	return New(cfg, svc, nil).Handler()
}

func decodeError(t *testing.T, body *bytes.Buffer) errorBody {
	t.Helper()
	var eb errorBody
	require.NoError(t, json.NewDecoder(body).Decode(&eb))
	return eb
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearchEndpoint(t *testing.T) {
	svc := &stubService{
		searchResp: &search.Response{
			Results: []grouping.Family{{
				GroupKey:    "brand:CRESTOR",
				DisplayName: "CRESTOR",
				MatchType:   grouping.MatchExact,
			}},
			Query:   search.QueryInfo{Original: "crestor", Expanded: "crestor rosuvastatin"},
			Metrics: search.Metrics{TotalMS: 42},
		},
	}
	h := newTestServer(t, svc)

	body := bytes.NewBufferString(`{"query": "crestor", "max_results": 5}`)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	require.NotNil(t, svc.lastRequest)
	assert.Equal(t, "crestor", svc.lastRequest.Query)
	assert.Equal(t, 5, svc.lastRequest.MaxResults)

	var resp search.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "brand:CRESTOR", resp.Results[0].GroupKey)
	assert.Equal(t, int64(42), resp.Metrics.TotalMS)
}

func TestSearchMalformedBody(t *testing.T) {
	h := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString("{not json")))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	eb := decodeError(t, rec.Body)
	assert.Equal(t, "invalid_input", eb.Error.Code)
}

func TestSearchErrorCarriesMetrics(t *testing.T) {
	svc := &stubService{
		searchResp: &search.Response{Metrics: search.Metrics{TotalMS: 7}},
		searchErr:  rxerr.New(rxerr.KindServiceUnavailable, "index unreachable"),
	}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/search", bytes.NewBufferString(`{"query":"crestor"}`)))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	eb := decodeError(t, rec.Body)
	assert.Equal(t, "service_unavailable", eb.Error.Code)
	require.NotNil(t, eb.Metrics)
	assert.Equal(t, int64(7), eb.Metrics.TotalMS)
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		kind       rxerr.Kind
		wantStatus int
		wantCode   string
	}{
		{rxerr.KindInvalidInput, http.StatusBadRequest, "invalid_input"},
		{rxerr.KindNotFound, http.StatusNotFound, "not_found"},
		{rxerr.KindThrottled, http.StatusTooManyRequests, "throttled"},
		{rxerr.KindUpstreamUnavailable, http.StatusBadGateway, "upstream_unavailable"},
		{rxerr.KindServiceUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			svc := &stubService{drugErr: rxerr.New(tt.kind, "boom")}
			h := newTestServer(t, svc)

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/drugs/00310075530", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			eb := decodeError(t, rec.Body)
			assert.Equal(t, tt.wantCode, eb.Error.Code)
			assert.Contains(t, eb.Error.Message, "boom")
		})
	}
}

func TestInternalErrorIsOpaque(t *testing.T) {
	svc := &stubService{drugErr: rxerr.New(rxerr.KindInternal, "corrupt payload for ndc 00310075530")}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/drugs/00310075530", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	eb := decodeError(t, rec.Body)
	assert.Equal(t, "internal", eb.Error.Code)
	assert.Equal(t, "internal error", eb.Error.Message)
	assert.NotEmpty(t, eb.Error.ID)
	assert.NotContains(t, eb.Error.Message, "corrupt")
}

func TestDrugEndpoint(t *testing.T) {
	svc := &stubService{
		drugResp: &search.DrugResponse{
			Document: &index.DrugDocument{NDC: "00310075530", DrugName: "CRESTOR 5 MG TABLET"},
		},
	}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/drugs/00310075530", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "00310075530", svc.lastNDC)

	var resp search.DrugResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Document)
	assert.Equal(t, "CRESTOR 5 MG TABLET", resp.Document.DrugName)
}

func TestAlternativesEndpoint(t *testing.T) {
	svc := &stubService{
		altResp: &search.AlternativesResponse{
			Drug: &index.DrugDocument{NDC: "00310075530"},
			Alternatives: search.Alternatives{
				GenericOptions: []grouping.Variant{{NDC: "00093505598"}},
				TotalCount:     1,
			},
		},
	}
	h := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/drugs/00310075530/alternatives", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "00310075530", svc.lastNDC)

	var resp search.AlternativesResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Alternatives.GenericOptions, 1)
	assert.Equal(t, 1, resp.Alternatives.TotalCount)
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &stubService{})

	req := httptest.NewRequest(http.MethodOptions, "/v1/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}
