package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Geniuskaa/maraton_registration/internal/config"
	"github.com/Geniuskaa/maraton_registration/pkg/api"
	"github.com/Geniuskaa/maraton_registration/pkg/auth"
	"github.com/Geniuskaa/maraton_registration/pkg/metrics"
)

const testPassword = "correcto"

type fakeBackend struct {
	registers    atomic.Int32
	registerCode int
	registerBody string
	registerType string
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/register/":
		b.registers.Add(1)
		w.Header().Set("Content-Type", b.registerType)
		if b.registerType == api.PDF_CONTENT_TYPE {
			w.Header().Set("Content-Disposition", `attachment; filename="Primaria0001.pdf"`)
		}
		w.WriteHeader(b.registerCode)
		_, _ = io.WriteString(w, b.registerBody)
	case "/api/participants/":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `[{"id":7,"clave":"Primaria0007","plantel":"Primaria","full_name":"ANA LOPEZ",
			"child_name":"LUIS","grado":"2do Grado Primaria","role":"ABUELITO","created_at":"2025-11-03T18:22:00Z"}]`)
	case "/api/participants/export/":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="participantes_2025.csv"`)
		_, _ = io.WriteString(w, "id,clave\n7,Primaria0007\n")
	case "/api/participants/stats/":
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"total":1,"por_plantel":[{"plantel":"Primaria","total":1}],"por_role":[]}`)
	default:
		http.NotFound(w, r)
	}
}

func newTestServer(t *testing.T, backend *fakeBackend) *Server {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	require.NoError(t, err)

	conf := &config.Entity{
		App:   config.Application{Timezone: "America/Mexico_City"},
		Admin: config.Admin{PasswordHash: string(hash), TokenSecret: "s3cret", TokenTTLMinutes: 60},
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)
	client := api.NewClient(srv.URL+"/api", time.Second, zap.NewNop(), api.WithObserver(collector))

	s := NewServer(context.Background(), zap.NewNop(), chi.NewRouter(), nil, conf, client, collector)
	s.Init(zap.NewAtomicLevel(), reg)
	return s
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func validForm() url.Values {
	return url.Values{
		"full_name":  {"  Ana López "},
		"plantel":    {"Primaria"},
		"child_name": {"Luis"},
		"grado":      {"2do Grado Primaria"},
		"role":       {"abuelito"},
	}
}

func login(t *testing.T, s *Server) *http.Cookie {
	t.Helper()
	req := postForm("/admin/login", url.Values{"password": {testPassword}})
	w := do(s, req)
	require.Equal(t, http.StatusSeeOther, w.Code)

	for _, c := range w.Result().Cookies() {
		if c.Name == auth.COOKIE_NAME {
			return c
		}
	}
	t.Fatal("no session cookie")
	return nil
}

func adminGet(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req.AddCookie(login(t, s))
	return do(s, req)
}

func TestForm(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `<optgroup label="Secundaria">`)
	assert.Contains(t, body, `value="ACOMPAÑANTE MUJER"`)
	assert.Contains(t, body, "Generar gafete PDF")
}

func TestRegister_Badge(t *testing.T) {
	backend := &fakeBackend{registerCode: http.StatusOK, registerType: api.PDF_CONTENT_TYPE, registerBody: "%PDF-1.4 badge"}
	s := newTestServer(t, backend)

	w := do(s, postForm("/register", validForm()))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, api.PDF_CONTENT_TYPE, w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="credencial.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "%PDF-1.4 badge", w.Body.String())
}

func TestRegister_FieldErrors(t *testing.T) {
	backend := &fakeBackend{
		registerCode: http.StatusBadRequest,
		registerType: "application/json",
		registerBody: `{"full_name":["This field is required."]}`,
	}
	s := newTestServer(t, backend)

	w := do(s, postForm("/register", validForm()))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "form-status-error")
	assert.Contains(t, body, "full_name: This field is required.")
	assert.Contains(t, body, `value="  Ana López "`, "entered values stay in the form")
}

func TestRegister_MissingFieldsNeverSent(t *testing.T) {
	backend := &fakeBackend{registerCode: http.StatusOK, registerType: api.PDF_CONTENT_TYPE}
	s := newTestServer(t, backend)

	form := validForm()
	form.Set("full_name", "   ")
	w := do(s, postForm("/register", form))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Revisa los campos obligatorios: full_name")
	assert.Zero(t, backend.registers.Load())
}

func TestAdmin_RequiresLogin(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, LOGIN_PATH, w.Header().Get("Location"))

	w = do(s, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdmin_WrongPassword(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(s, postForm("/admin/login", url.Values{"password": {"lma2025"}}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), MSG_LOGIN_INVALID)
	assert.Empty(t, w.Result().Cookies())
}

func TestAdmin_ListLoadsOnFirstVisit(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := adminGet(t, s, "/admin")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Primaria0007")
	assert.Contains(t, body, "03/11/2025, 12:22 p.m.")
	assert.NotContains(t, body, "Sin registros")
}

func TestAdmin_Reprint(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := adminGet(t, s, "/admin/reprint?q="+url.QueryEscape("Primaria 0007"))
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, s.client.Base()+"/participants/reprint/?q=Primaria+0007", w.Header().Get("Location"))

	w = adminGet(t, s, "/admin/reprint?q=+++")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Escribe un folio o id")
}

func TestAdmin_ExportCSV(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := adminGet(t, s, "/admin/export")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="participantes_2025.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "id,clave\n7,Primaria0007\n", w.Body.String())
}

func TestAdmin_ExportXLSX(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := adminGet(t, s, "/admin/export.xlsx")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="participantes.xlsx"`, w.Header().Get("Content-Disposition"))
	assert.NotZero(t, w.Body.Len())
}

func TestAdmin_ReportDisabled(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	req := httptest.NewRequest(http.MethodPost, "/admin/report", nil)
	req.AddCookie(login(t, s))
	w := do(s, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), MSG_REPORT_DISABLED)
}

func TestAdmin_Stats(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := adminGet(t, s, "/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats api.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.Total)
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	w := do(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "maraton_http_requests_total")
}

func TestLogLevel(t *testing.T) {
	s := newTestServer(t, &fakeBackend{})

	req := httptest.NewRequest(http.MethodPut, "/internal/log-level", strings.NewReader(`{"level":"debug"}`))
	w := do(s, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(s, httptest.NewRequest(http.MethodGet, "/internal/log-level", nil))
	assert.JSONEq(t, `{"level":"debug"}`, w.Body.String())
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", clientKey(req))

	req.RemoteAddr = "10.1.2.3"
	assert.Equal(t, "10.1.2.3", clientKey(req))
}
