package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/email-analyzer/internal/config"
	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/core/usecase"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/analysisapi"
	"github.com/kirillkom/email-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/email-analyzer/internal/observability/metrics"
)

type backendCall struct {
	path        string
	contentType string
	body        string
}

type backendFake struct {
	mu     sync.Mutex
	calls  []backendCall
	status int
	body   string
	gate   chan struct{}
}

func (b *backendFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	b.mu.Lock()
	b.calls = append(b.calls, backendCall{path: r.URL.Path, contentType: r.Header.Get("Content-Type"), body: string(raw)})
	status, body, gate := b.status, b.body, b.gate
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if status == 0 {
		status = http.StatusOK
	}
	if body == "" {
		body = `{"category":"Productive","suggested_response":"Vamos verificar o chamado."}`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *backendFake) snapshot() []backendCall {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]backendCall(nil), b.calls...)
}

type testClient struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newTestClient(t *testing.T, cfg config.Config, backend *backendFake, opts ...RouterOption) *testClient {
	t.Helper()
	server := httptest.NewServer(backend)
	t.Cleanup(server.Close)

	storage, err := localfs.New(t.TempDir())
	if err != nil {
		t.Fatalf("localfs.New() error = %v", err)
	}
	api := analysisapi.New(analysisapi.Config{BaseURL: server.URL}, nil)
	registry := usecase.NewSessionRegistry(time.Hour, func() *usecase.FormController {
		return usecase.NewFormController(api, storage, usecase.FormControllerOptions{MaxUploadBytes: 1 << 20})
	})
	t.Cleanup(func() { registry.Close(context.Background()) })

	router, err := NewRouter(cfg, registry, opts...)
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	return &testClient{t: t, handler: router.Handler()}
}

func (c *testClient) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	res := httptest.NewRecorder()
	c.handler.ServeHTTP(res, req)
	for _, cookie := range res.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			c.cookie = cookie
		}
	}
	return res
}

func (c *testClient) openSession() {
	c.t.Helper()
	res := c.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK || c.cookie == nil {
		c.t.Fatalf("expected page with session cookie, got %d", res.Code)
	}
}

func (c *testClient) putText(text string) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(map[string]string{"email_text": text})
	req := httptest.NewRequest(http.MethodPut, "/api/form/text", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *testClient) putFile(name, content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, _ := writer.CreateFormFile("file", name)
	_, _ = part.Write([]byte(content))
	_ = writer.Close()

	req := httptest.NewRequest(http.MethodPut, "/api/form/file", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req)
}

func (c *testClient) submit(query string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodPost, "/api/form/submit"+query, nil))
}

func decodeForm(t *testing.T, res *httptest.ResponseRecorder) formResponse {
	t.Helper()
	var out formResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode form response: %v", err)
	}
	return out
}

func TestHealthzEndpoint(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})
	res := client.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %s", res.Body.String())
	}
}

type breakerStatesFake map[string]string

func (f breakerStatesFake) BreakerStates() map[string]string { return f }

func TestHealthzReportsBreakerStates(t *testing.T) {
	reporter := breakerStatesFake{"analyze_text": "open", "analyze_file": "closed"}
	client := newTestClient(t, config.Config{}, &backendFake{}, WithBreakerReporter(reporter))

	res := client.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("open breaker must not fail health, got %d", res.Code)
	}
	var out healthResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if out.Status != "ok" || out.AnalysisBreaker["analyze_text"] != "open" || out.AnalysisBreaker["analyze_file"] != "closed" {
		t.Fatalf("unexpected health %+v", out)
	}
}

func TestHealthzWithAnalysisClient(t *testing.T) {
	api := analysisapi.New(analysisapi.Config{BaseURL: "http://127.0.0.1:1"}, nil)
	client := newTestClient(t, config.Config{}, &backendFake{}, WithBreakerReporter(api))

	res := client.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var out healthResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	for _, op := range []string{analysisapi.OperationText, analysisapi.OperationFile} {
		if out.AnalysisBreaker[op] != "disabled" {
			t.Fatalf("expected %s breaker disabled, got %+v", op, out.AnalysisBreaker)
		}
	}
}

func TestPageRendersInitialView(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})
	res := client.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	if client.cookie == nil || !client.cookie.HttpOnly {
		t.Fatalf("expected http-only session cookie")
	}
	body := res.Body.String()
	for _, want := range []string{domain.LabelSubmit, domain.LabelFilePrompt, `accept=".txt,.pdf"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in page", want)
		}
	}
	if strings.Contains(body, "<button id=\"submit-button\" type=\"submit\" class=\"form__button\" disabled") {
		t.Fatalf("submit must be enabled initially")
	}

	again := client.do(httptest.NewRequest(http.MethodGet, "/", nil))
	if len(again.Result().Cookies()) != 0 {
		t.Fatalf("known session must not be reissued")
	}
}

func TestAPIRequiresKnownSession(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})
	res := client.do(httptest.NewRequest(http.MethodGet, "/api/form", nil))
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without session, got %d", res.Code)
	}
}

func TestSubmitWithoutInputReturns422(t *testing.T) {
	backend := &backendFake{}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()

	res := client.submit("?wait=true")
	if res.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", res.Code)
	}
	form := decodeForm(t, res)
	if form.View.Error != domain.MsgMissingInput || !form.View.ShowError {
		t.Fatalf("unexpected view %+v", form.View)
	}
	if len(backend.snapshot()) != 0 {
		t.Fatalf("backend must not be called")
	}
}

func TestSubmitTextAndWait(t *testing.T) {
	backend := &backendFake{}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()

	if res := client.putText("  Preciso de ajuda com a fatura  "); res.Code != http.StatusOK {
		t.Fatalf("expected 200 on text update, got %d: %s", res.Code, res.Body.String())
	}
	res := client.submit("?wait=true")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	form := decodeForm(t, res)
	if !form.View.ShowResult || form.View.CategoryClass != "productive" || form.View.SuggestedResponse != "Vamos verificar o chamado." {
		t.Fatalf("unexpected view %+v", form.View)
	}

	calls := backend.snapshot()
	if len(calls) != 1 || calls[0].path != analysisapi.DefaultTextPath {
		t.Fatalf("unexpected backend calls %+v", calls)
	}
	if calls[0].body != `{"email_text":"  Preciso de ajuda com a fatura  "}` {
		t.Fatalf("text must be sent untrimmed, got %s", calls[0].body)
	}
}

func TestSubmitFileUsesUploadEndpoint(t *testing.T) {
	backend := &backendFake{}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()
	client.putText("será descartado")

	res := client.putFile("mail.txt", "conteúdo do arquivo")
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 on file upload, got %d: %s", res.Code, res.Body.String())
	}
	form := decodeForm(t, res)
	if form.View.FileLabel != domain.LabelFileSelected+"mail.txt" || form.View.EmailText != "" || !form.View.ShowRemoveFile {
		t.Fatalf("unexpected view after file selection %+v", form.View)
	}

	if res := client.submit("?wait=true"); res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	calls := backend.snapshot()
	if len(calls) != 1 || calls[0].path != analysisapi.DefaultFilePath {
		t.Fatalf("unexpected backend calls %+v", calls)
	}
	if !strings.HasPrefix(calls[0].contentType, "multipart/form-data") || !strings.Contains(calls[0].body, "conteúdo do arquivo") {
		t.Fatalf("unexpected upload %+v", calls[0])
	}
}

func TestRemoveFileRestoresPrompt(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})
	client.openSession()
	client.putFile("mail.pdf", "%PDF-1.4")

	res := client.do(httptest.NewRequest(http.MethodDelete, "/api/form/file", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	form := decodeForm(t, res)
	if form.View.FileLabel != domain.LabelFilePrompt || form.View.ShowRemoveFile {
		t.Fatalf("unexpected view %+v", form.View)
	}
}

func TestServerErrorDetailIsShown(t *testing.T) {
	backend := &backendFake{status: http.StatusBadRequest, body: `{"detail":"Invalid file type"}`}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()
	client.putFile("mail.doc", "x")

	res := client.submit("?wait=true")
	if res.Code != http.StatusOK {
		t.Fatalf("settled failures are form state, expected 200, got %d", res.Code)
	}
	form := decodeForm(t, res)
	if form.View.Error != "Invalid file type" || form.View.ShowResult || form.View.ShowLoader {
		t.Fatalf("unexpected view %+v", form.View)
	}
}

func TestAsyncSubmitReportsLoadingAndRejectsOverlap(t *testing.T) {
	gate := make(chan struct{})
	backend := &backendFake{gate: gate}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()
	client.putText("olá")

	res := client.submit("")
	if res.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", res.Code)
	}
	form := decodeForm(t, res)
	if !form.View.ShowLoader || !form.View.SubmitDisabled || form.View.SubmitLabel != domain.LabelSubmitting {
		t.Fatalf("expected loading view, got %+v", form.View)
	}

	if overlap := client.submit(""); overlap.Code != http.StatusConflict {
		t.Fatalf("expected 409 for overlapping submit, got %d", overlap.Code)
	}
	close(gate)

	deadline := time.Now().Add(2 * time.Second)
	for {
		current := decodeForm(t, client.do(httptest.NewRequest(http.MethodGet, "/api/form", nil)))
		if !current.State.IsLoading {
			if !current.View.ShowResult || current.View.SubmitDisabled {
				t.Fatalf("unexpected settled view %+v", current.View)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("submission did not settle")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if len(backend.snapshot()) != 1 {
		t.Fatalf("expected exactly one backend call")
	}
}

func TestNoScriptFormPostSubmitsAndRedirects(t *testing.T) {
	backend := &backendFake{}
	client := newTestClient(t, config.Config{}, backend)
	client.openSession()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	_ = writer.WriteField("email_text", "Bom dia, segue o relatório.")
	_ = writer.Close()
	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	res := client.do(req)
	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	page := client.do(httptest.NewRequest(http.MethodGet, "/", nil)).Body.String()
	if !strings.Contains(page, "Vamos verificar o chamado.") || !strings.Contains(page, "Bom dia, segue o relatório.") {
		t.Fatalf("expected result and text on page")
	}
	if len(backend.snapshot()) != 1 {
		t.Fatalf("expected one backend call")
	}
}

func TestStaticAssetsAndOpenAPIDocument(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{})

	for path, want := range map[string]string{
		"/static/app.js": "/api/form/submit",
		"/openapi.yaml":  "openapi: 3.0.3",
	} {
		res := client.do(httptest.NewRequest(http.MethodGet, path, nil))
		if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), want) {
			t.Fatalf("%s: expected 200 containing %q, got %d", path, want, res.Code)
		}
	}
}

func TestFileSelectionDropsPendingTextSync(t *testing.T) {
	raw, err := assets.ReadFile("assets/static/app.js")
	if err != nil {
		t.Fatalf("read app.js: %v", err)
	}
	script := string(raw)

	start := strings.Index(script, "fileInput.addEventListener('change'")
	if start < 0 {
		t.Fatalf("file change handler not found")
	}
	handler := script[start:]
	if end := strings.Index(handler, "removeButton.addEventListener"); end > 0 {
		handler = handler[:end]
	}
	drop := strings.Index(handler, "dropPendingText();")
	upload := strings.Index(handler, "'/api/form/file'")
	if drop < 0 || upload < 0 || drop > upload {
		t.Fatalf("pending text must be dropped before the file upload:\n%s", handler)
	}

	_, helper, ok := strings.Cut(script, "function dropPendingText()")
	if !ok {
		t.Fatalf("dropPendingText not found")
	}
	helper, _, _ = strings.Cut(helper, "\n  }\n")
	for _, want := range []string{"clearTimeout(textTimer)", "textTimer = null", "pendingText = null"} {
		if !strings.Contains(helper, want) {
			t.Fatalf("dropPendingText must contain %q", want)
		}
	}
}

func TestMetricsEndpointWhenEnabled(t *testing.T) {
	client := newTestClient(t, config.Config{}, &backendFake{}, WithMetrics(metrics.NewHTTPServerMetrics("web")))
	client.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))

	res := client.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "analyzer_http_requests_total") {
		t.Fatalf("expected metrics exposition, got %d", res.Code)
	}
}
