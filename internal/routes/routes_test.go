package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	svix "github.com/svix/svix-webhooks/go"

	"curanova-server/internal/catalog"
	"curanova-server/internal/config"
	"curanova-server/internal/gateways"
	"curanova-server/internal/handlers"
	"curanova-server/internal/metrics"
	"curanova-server/internal/models"
	"curanova-server/internal/notify"
	"curanova-server/internal/services"
	"curanova-server/internal/store"
	"curanova-server/internal/utils"
)

const (
	jwtSecret     = "routes-test-secret"
	webhookSecret = "whsec_MfKQ9r8GKYqrTwjUPD8ILPZIo2LaLaSw"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []notify.Message
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return fmt.Sprintf("msg_%d", len(m.sent)), nil
}

type testEnv struct {
	router *gin.Engine
	mailer *recordingMailer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := zerolog.Nop()

	db, err := models.InitDB(models.DatabaseConfig{Driver: "sqlite", DSN: "file::memory:?_pragma=foreign_keys(1)"})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := models.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	triage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"type":"test","testId":"fasting_glucose_blood_test","testName":"Fasting Glucose Blood Test","reply":"A fasting glucose test is recommended."}`)
	}))
	t.Cleanup(triage.Close)
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"prediction":1,"probability":0.82}`)
	}))
	t.Cleanup(classifier.Close)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	cat := catalog.Default()
	st := store.New(db)
	repos := st.Repositories()
	mailer := &recordingMailer{}

	identity := services.NewIdentityService(repos.Patients, nil, m, log)
	diagnostics := services.NewDiagnosticService(repos, st, cat, nil, m, log, services.DiagnosticOptions{AtomicWrites: true})
	appointments := services.NewAppointmentService(repos, notify.NewDispatcher(mailer, log), nil, m, log)
	predictor := gateways.NewPredictionGateway(config.UpstreamConfig{URL: classifier.URL, Timeout: time.Second}, log, m)
	predictions := services.NewPredictionService(predictor, repos, cat, log)

	webhooks, err := handlers.NewWebhookHandler(webhookSecret, identity, log)
	if err != nil {
		t.Fatalf("webhook handler: %v", err)
	}

	router := gin.New()
	SetupRoutes(router, Dependencies{
		JWTSecret:    jwtSecret,
		Identity:     identity,
		Gatherer:     reg,
		Diagnostics:  handlers.NewDiagnosticHandler(diagnostics),
		Appointments: handlers.NewAppointmentHandler(appointments),
		Chat:         handlers.NewChatHandler(gateways.NewTriageGateway(config.UpstreamConfig{URL: triage.URL, Timeout: time.Second}, log, m)),
		Predictions:  handlers.NewPredictionHandler(predictions),
		Tests:        handlers.NewTestHandler(diagnostics, cat),
		Patients:     handlers.NewPatientHandler(identity),
		Webhooks:     webhooks,
	})
	return &testEnv{router: router, mailer: mailer}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func bearer(t *testing.T, externalID string, role models.Role) string {
	t.Helper()
	tok, err := utils.GenerateToken(utils.TokenSubject{ExternalID: externalID, Email: externalID + "@example.com", Role: role}, jwtSecret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return "Bearer " + tok
}

func (e *testEnv) call(t *testing.T, method, path, auth string, body any) (int, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
	return v
}

func (e *testEnv) patientID(t *testing.T, auth string) string {
	t.Helper()
	code, env := e.call(t, http.MethodGet, "/api/v1/patients/me", auth, nil)
	if code != http.StatusOK {
		t.Fatalf("GET /patients/me: %d %s", code, env.Error)
	}
	return decode[models.Patient](t, env.Data).ID
}

func TestDiagnosticWorkflowEndToEnd(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_ana", models.RolePatient)
	provider := bearer(t, "user_dr", models.RoleProvider)
	patientID := e.patientID(t, patient)

	code, env := e.call(t, http.MethodPost, "/api/v1/diagnostics", patient, map[string]any{
		"patientId":     patientID,
		"symptom":       "excessive thirst",
		"aiSummary":     "possible hyperglycaemia",
		"hospital":      "General Hospital",
		"scheduledDate": "2030-05-01",
		"selectedTests": []string{"fasting_glucose_blood_test", "kidney_function_test"},
	})
	if code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, env.Error)
	}
	created := decode[services.DiagnosticCreation](t, env.Data)
	if !created.TestsAttached || len(created.Diagnostic.Tests) != 2 || created.Appointment == nil {
		t.Fatalf("unexpected creation %+v", created)
	}
	if created.Diagnostic.TestName != "Fasting Glucose Blood Test, Kidney Function Test" {
		t.Errorf("test name = %q", created.Diagnostic.TestName)
	}

	code, env = e.call(t, http.MethodGet, "/api/v1/diagnostics?patientId="+patientID, patient, nil)
	if code != http.StatusOK || len(decode[[]models.Diagnostic](t, env.Data)) != 1 {
		t.Fatalf("list: %d %s", code, env.Data)
	}

	code, env = e.call(t, http.MethodPatch, "/api/v1/appointments", patient, map[string]any{
		"appointmentId": created.Appointment.ID,
		"status":        "confirmed",
		"notifyEmail":   "ana@example.com",
	})
	if code != http.StatusOK {
		t.Fatalf("confirm: %d %s", code, env.Error)
	}
	updated := decode[services.UpdateResult](t, env.Data)
	if updated.Appointment.Status != models.StatusConfirmed || !updated.NotificationSent {
		t.Errorf("unexpected update %+v", updated)
	}
	if len(e.mailer.sent) != 1 || e.mailer.sent[0].To[0] != "ana@example.com" || !strings.Contains(e.mailer.sent[0].Text, "General Hospital") {
		t.Errorf("confirmation email not sent as expected: %+v", e.mailer.sent)
	}

	for _, test := range created.Diagnostic.Tests {
		if code, env := e.call(t, http.MethodPost, "/api/v1/provider/tests/"+test.ID+"/start", provider, nil); code != http.StatusOK {
			t.Fatalf("start %s: %d %s", test.TestID, code, env.Error)
		}
		ref := "https://results.example.com/" + test.TestID + ".pdf"
		if code, env := e.call(t, http.MethodPut, "/api/v1/provider/tests/"+test.ID+"/result", provider, map[string]string{"resultRef": ref}); code != http.StatusOK {
			t.Fatalf("result %s: %d %s", test.TestID, code, env.Error)
		}
	}

	code, env = e.call(t, http.MethodGet, "/api/v1/diagnostics/"+created.Diagnostic.ID, patient, nil)
	if code != http.StatusOK {
		t.Fatalf("get: %d %s", code, env.Error)
	}
	if got := decode[models.Diagnostic](t, env.Data); got.Status != models.DiagnosticCompleted {
		t.Errorf("diagnostic should complete with its last test, got %s", got.Status)
	}

	first := created.Diagnostic.Tests[0]
	code, env = e.call(t, http.MethodGet, "/api/v1/tests/"+first.ID+"/result", patient, nil)
	if code != http.StatusOK || !strings.Contains(string(env.Data), first.TestID+".pdf") {
		t.Errorf("result url: %d %s", code, env.Data)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/provider/appointments/"+created.Appointment.ID+"/complete", provider, nil)
	if code != http.StatusOK {
		t.Errorf("complete: %d %s", code, env.Error)
	}
}

func TestDiagnosticErrors(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_ana", models.RolePatient)
	e.patientID(t, patient)

	code, env := e.call(t, http.MethodPost, "/api/v1/diagnostics", patient, map[string]any{
		"patientId": "someone-else", "symptom": "x", "aiSummary": "y", "hospital": "z", "scheduledDate": "2030-05-01", "testName": "kidney_function_test",
	})
	if code != http.StatusForbidden || env.Code != "FORBIDDEN" {
		t.Errorf("mismatched patient: %d %s", code, env.Code)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/diagnostics", patient, map[string]any{"symptom": "x"})
	if code != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" || !strings.Contains(env.Error, "hospital") {
		t.Errorf("missing fields: %d %s %q", code, env.Code, env.Error)
	}

	code, env = e.call(t, http.MethodGet, "/api/v1/diagnostics/does-not-exist", patient, nil)
	if code != http.StatusNotFound {
		t.Errorf("unknown diagnostic: %d", code)
	}

	code, _ = e.call(t, http.MethodGet, "/api/v1/diagnostics", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("anonymous: %d", code)
	}
}

func TestAppointmentTransitionsOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_ana", models.RolePatient)
	patientID := e.patientID(t, patient)

	_, env := e.call(t, http.MethodPost, "/api/v1/diagnostics", patient, map[string]any{
		"patientId": patientID, "symptom": "x", "aiSummary": "y", "hospital": "z", "scheduledDate": "2030-05-01", "testName": "kidney_function_test",
	})
	appt := decode[services.DiagnosticCreation](t, env.Data).Appointment

	code, env := e.call(t, http.MethodPatch, "/api/v1/appointments", patient, map[string]any{"appointmentId": appt.ID, "status": "confirmed"})
	if code != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Errorf("confirm without email: %d %s", code, env.Code)
	}

	code, _ = e.call(t, http.MethodPatch, "/api/v1/appointments", patient, map[string]any{"appointmentId": appt.ID, "status": "cancelled"})
	if code != http.StatusOK {
		t.Fatalf("cancel: %d", code)
	}

	code, env = e.call(t, http.MethodPatch, "/api/v1/appointments", patient, map[string]any{"appointmentId": appt.ID, "status": "confirmed", "notifyEmail": "ana@example.com"})
	if code != http.StatusBadRequest || env.Code != "INVALID_TRANSITION" {
		t.Errorf("cancelled to confirmed: %d %s", code, env.Code)
	}
	if len(e.mailer.sent) != 0 {
		t.Error("no email may be sent")
	}

	other := bearer(t, "user_ben", models.RolePatient)
	code, _ = e.call(t, http.MethodPatch, "/api/v1/appointments", other, map[string]any{"appointmentId": appt.ID, "status": "cancelled"})
	if code != http.StatusNotFound {
		t.Errorf("other patient's appointment: %d", code)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/appointments", patient, map[string]any{"diagnosticId": appt.DiagnosticID, "preferredTime": "02:00 PM"})
	if code != http.StatusCreated || decode[models.Appointment](t, env.Data).AppointmentTime != "02:00 PM" {
		t.Errorf("book: %d %s", code, env.Data)
	}
}

func TestChatAndPredict(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_ana", models.RolePatient)

	code, env := e.call(t, http.MethodPost, "/api/v1/chat", patient, map[string]any{
		"messages": []map[string]string{{"role": "user", "content": "I am always thirsty"}},
	})
	if code != http.StatusOK {
		t.Fatalf("chat: %d %s", code, env.Error)
	}
	if c := decode[gateways.Classification](t, env.Data); c.Kind != gateways.TriageTest || c.TestID != "fasting_glucose_blood_test" {
		t.Errorf("unexpected classification %+v", c)
	}

	code, _ = e.call(t, http.MethodPost, "/api/v1/chat", patient, map[string]any{"messages": []any{}})
	if code != http.StatusBadRequest {
		t.Errorf("empty conversation: %d", code)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/predict/diabetes", patient, map[string]any{
		"pregnancies": 2, "glucose": 148, "blood_pressure": 72, "skin_thickness": 35,
		"insulin": 0, "bmi": 33.6, "diabetes_pedigree": 0.627, "age": 50,
	})
	if code != http.StatusOK {
		t.Fatalf("predict: %d %s", code, env.Error)
	}
	if p := decode[services.PredictionResult](t, env.Data); p.Prediction != 1 || p.Probability != 0.82 {
		t.Errorf("unexpected prediction %+v", p)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/predict/diabetes", patient, map[string]any{"glucose": 148})
	if code != http.StatusBadRequest || !strings.Contains(env.Error, "bmi") {
		t.Errorf("missing features: %d %q", code, env.Error)
	}

	code, env = e.call(t, http.MethodGet, "/api/v1/tests/catalog", patient, nil)
	if code != http.StatusOK || len(decode[[]catalog.Test](t, env.Data)) != 5 {
		t.Errorf("catalog: %d %s", code, env.Data)
	}
}

func TestOnboarding(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_new", models.RolePatient)

	code, env := e.call(t, http.MethodGet, "/api/v1/onboarding/status", patient, nil)
	if s := decode[services.OnboardingStatus](t, env.Data); code != http.StatusOK || s.UserExists {
		t.Fatalf("status before first request: %d %+v", code, s)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/onboarding", patient, map[string]string{"phoneNumber": "555"})
	if code != http.StatusBadRequest {
		t.Errorf("partial onboarding: %d", code)
	}

	code, env = e.call(t, http.MethodPost, "/api/v1/onboarding", patient, map[string]string{
		"phoneNumber": "555-0100", "streetAddress": "1 Main St", "city": "Springfield", "state": "IL", "zipCode": "62701",
	})
	if code != http.StatusOK {
		t.Fatalf("onboarding: %d %s", code, env.Error)
	}

	_, env = e.call(t, http.MethodGet, "/api/v1/onboarding/status", patient, nil)
	if s := decode[services.OnboardingStatus](t, env.Data); !s.UserExists || !s.OnboardingCompleted {
		t.Errorf("status after onboarding: %+v", s)
	}
}

func TestProviderRoutesRequireRole(t *testing.T) {
	e := newTestEnv(t)
	code, env := e.call(t, http.MethodPost, "/api/v1/provider/tests/any/start", bearer(t, "user_ana", models.RolePatient), nil)
	if code != http.StatusForbidden {
		t.Errorf("patient on provider route: %d %s", code, env.Error)
	}
}

func (e *testEnv) webhook(t *testing.T, payload string, sign bool) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/identity", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	msgID := "msg_2Lh9KRb0pzN4LePd3XiA4dtXjU7"
	ts := time.Now()
	req.Header.Set("svix-id", msgID)
	req.Header.Set("svix-timestamp", fmt.Sprint(ts.Unix()))
	if sign {
		wh, err := svix.NewWebhook(webhookSecret)
		if err != nil {
			t.Fatalf("svix: %v", err)
		}
		sig, err := wh.Sign(msgID, ts, []byte(payload))
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		req.Header.Set("svix-signature", sig)
	} else {
		req.Header.Set("svix-signature", "v1,bm90LWEtc2lnbmF0dXJl")
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w.Code
}

func TestIdentityWebhook(t *testing.T) {
	e := newTestEnv(t)
	payload := `{"type":"user.created","data":{"id":"user_hook","email_addresses":[{"id":"e1","email_address":"hook@example.com"}],"primary_email_address_id":"e1","first_name":"Hook","created_at":1700000000000}}`

	if code := e.webhook(t, payload, false); code != http.StatusBadRequest {
		t.Errorf("bad signature: expected 400, got %d", code)
	}
	if code := e.webhook(t, payload, true); code != http.StatusOK {
		t.Fatalf("signed event: expected 200, got %d", code)
	}
	if code := e.webhook(t, `{"type":"user.created","data":"broken"}`, true); code != http.StatusServiceUnavailable {
		t.Errorf("unparseable payload: expected 503, got %d", code)
	}

	code, env := e.call(t, http.MethodGet, "/api/v1/patients/me", bearer(t, "user_hook", models.RolePatient), nil)
	if p := decode[models.Patient](t, env.Data); code != http.StatusOK || p.Email != "hook@example.com" || p.FirstName != "Hook" {
		t.Errorf("webhook profile not applied: %d %+v", code, p)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	patient := bearer(t, "user_ana", models.RolePatient)
	patientID := e.patientID(t, patient)
	e.call(t, http.MethodPost, "/api/v1/diagnostics", patient, map[string]any{
		"patientId": patientID, "symptom": "x", "aiSummary": "y", "hospital": "z", "scheduledDate": "2030-05-01", "testName": "kidney_function_test",
	})

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "UP") {
		t.Errorf("health: %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	e.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "curanova_diagnostics_created_total 1") {
		t.Errorf("metrics missing diagnostics counter:\n%s", w.Body.String())
	}
}
