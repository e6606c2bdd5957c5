package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/config"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/handlers"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/middleware"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/models"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/analysis"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/llm"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/pdf"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/session"
	"github.com/Shimizu-Technology/ad-analysis-dashboard/internal/services/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// scriptedProvider answers each kind with a canned reply. The color
// analysis fails so every run exercises the partial-failure path. When
// release is non-nil every call waits on it first.
type scriptedProvider struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (p *scriptedProvider) Name() string  { return "scripted" }
func (p *scriptedProvider) Model() string { return "scripted-1" }

func (p *scriptedProvider) Generate(ctx context.Context, req *llm.Request) (string, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	if p.release != nil {
		select {
		case <-p.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	switch {
	case strings.Contains(req.Prompt, `"marketing_4p"`):
		return "```json\n" + `{"marketing_4p": {"product": {"score": 70, "analysis": "Clear offer"}}}` + "\n```", nil
	case strings.Contains(req.Prompt, `"dominant_colors"`):
		return "", errors.New("upstream timeout")
	case strings.Contains(req.Prompt, `"impressions"`):
		return `{"impressions": {"first_impression": "Bright"}, "effectiveness_score": 82}`, nil
	default:
		return `{"layout_score": 75, "strengths": ["Large headline"]}`, nil
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type testServer struct {
	engine   *gin.Engine
	handler  *handlers.Handler
	provider *scriptedProvider
}

func newTestServer(t *testing.T, provider *scriptedProvider, passwordHash string) *testServer {
	t.Helper()

	slots, err := config.ParseImageSlots(config.DefaultImageSlots)
	require.NoError(t, err)

	cfg := &config.Config{
		GinMode:               gin.TestMode,
		ResponseLanguage:      "English",
		AnalysisInput:         config.InputText,
		MaxPromptChars:        15000,
		ImageSlots:            slots,
		MaxUploadBytes:        1 << 20,
		SoftUploadBytes:       512 << 10,
		DefaultDisplayWidth:   800,
		WorkerCount:           1,
		JobQueueSize:          4,
		SessionSecret:         "test-secret",
		SessionTTL:            time.Hour,
		DashboardPasswordHash: passwordHash,
	}

	svc, err := analysis.NewFromConfig(cfg, provider)
	require.NoError(t, err)

	store := session.NewStore(cfg.SessionTTL)
	pool := worker.NewPool(cfg.WorkerCount, cfg.JobQueueSize, store, svc)
	pool.Start()
	t.Cleanup(func() {
		if provider.release != nil {
			select {
			case <-provider.release:
			default:
				close(provider.release)
			}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		pool.Stop(ctx)
		store.Close()
	})

	h := handlers.NewHandler(cfg, store, pool, provider)
	wide := testPNG(t, 400, 200)
	small := testPNG(t, 60, 60)
	h.Extract = func(_ context.Context, data []byte) (*pdf.ExtractionResult, error) {
		if bytes.Contains(data, []byte("BROKEN")) {
			return nil, models.NewDocumentParseError("the PDF could not be opened", nil)
		}
		return &pdf.ExtractionResult{
			Text:      "Summer sale. Everything 30% off.",
			PageCount: 3,
			WordCount: 5,
			Images: []models.ExtractedImage{
				{Index: 0, Page: 1, PageImage: 1, Format: "png", MIMEType: "image/png", Width: 400, Height: 200, Data: wide},
				{Index: 1, Page: 3, PageImage: 2, Format: "png", MIMEType: "image/png", Width: 60, Height: 60, Data: small},
			},
		}, nil
	}

	r, err := Setup(h)
	require.NoError(t, err)
	return &testServer{engine: r, handler: h, provider: provider}
}

// client remembers the session cookie like a browser would.
type client struct {
	t      *testing.T
	srv    http.Handler
	cookie *http.Cookie
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.srv.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == middleware.SessionCookie {
			c.cookie = ck
		}
	}
	return w
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) upload(path, filename string, content []byte, fields url.Values) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for key, values := range fields {
		for _, v := range values {
			require.NoError(c.t, mw.WriteField(key, v))
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(c.t, err)
	_, err = fw.Write(content)
	require.NoError(c.t, err)
	require.NoError(c.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req)
}

func (c *client) waitFor(runID string, status models.RunStatus) *models.AnalysisRun {
	var run models.AnalysisRun
	require.Eventually(c.t, func() bool {
		w := c.get("/api/v1/analyses/" + runID)
		if w.Code != http.StatusOK {
			return false
		}
		run = models.AnalysisRun{}
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &run))
		return run.Status == status
	}, 5*time.Second, 10*time.Millisecond)
	return &run
}

var fakePDF = []byte("%PDF-1.4\n% test fixture\n")

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	w := c.get("/api/v1/health")
	require.Equal(t, http.StatusOK, w.Code)

	var health models.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, "scripted/scripted-1", health.Provider)
	assert.Equal(t, 1, health.Workers)
}

func TestOptions(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	w := c.get("/api/v1/options")
	require.Equal(t, http.StatusOK, w.Code)

	var opts models.OptionsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &opts))
	assert.Len(t, opts.TargetMarkets, 5)
	assert.Len(t, opts.Industries, 6)
	assert.Equal(t, models.WidthRange{Min: 300, Max: 1200, Step: 100, Default: 800}, opts.DisplayWidth)
	assert.Len(t, opts.ImageSlots, 2)
}

func TestAnalysisLifecycle(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	w := c.upload("/api/v1/analyses", "summer_ad.pdf", fakePDF, url.Values{
		"target_markets": {"若年層", "ファミリー"},
		"industry":       {"小売"},
		"display_width":  {"650"},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var created models.AnalysisRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/api/v1/analyses/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, []string{"若年層", "ファミリー"}, created.Settings.TargetMarkets)
	assert.Equal(t, 600, created.Settings.DisplayWidth)
	assert.Len(t, created.Images, 2)

	run := c.waitFor(created.ID, models.RunCompleted)
	assert.Equal(t, 100, run.Progress)
	assert.Contains(t, run.KindErrors, models.KindColor)
	assert.NotContains(t, run.KindErrors, models.KindVisual)

	t.Run("json report has exactly four keys", func(t *testing.T) {
		w := c.get("/api/v1/analyses/" + created.ID + "/report?format=json")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Disposition"), "analysis_report.json")

		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Len(t, doc, 4)
		for _, kind := range models.AnalysisKinds {
			assert.Contains(t, doc, string(kind))
		}
		assert.Equal(t, "null", string(doc[string(models.KindColor)]))
		assert.JSONEq(t, `{"impressions": {"first_impression": "Bright"}, "effectiveness_score": 82}`,
			string(doc[string(models.KindOverall)]))
	})

	t.Run("markdown and pdf reports", func(t *testing.T) {
		w := c.get("/api/v1/analyses/" + created.ID + "/report?format=md")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "# Ad Analysis Report")
		assert.Contains(t, w.Header().Get("Content-Disposition"), "summer_ad_analysis.md")

		w = c.get("/api/v1/analyses/" + created.ID + "/report?format=pdf")
		require.Equal(t, http.StatusOK, w.Code)
		assert.True(t, pdf.ValidatePDF(w.Body.Bytes()))
	})

	t.Run("invalid report format", func(t *testing.T) {
		w := c.get("/api/v1/analyses/" + created.ID + "/report?format=docx")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sections render every tab", func(t *testing.T) {
		w := c.get("/api/v1/analyses/" + created.ID + "/sections?width=900")
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Tabs   []json.RawMessage `json:"tabs"`
			Images json.RawMessage   `json:"images"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.Tabs, 4)
		assert.Contains(t, string(resp.Images), "width=900")
	})

	t.Run("run page renders", func(t *testing.T) {
		w := c.get("/runs/" + created.ID)
		require.Equal(t, http.StatusOK, w.Code)
		body := w.Body.String()
		assert.Contains(t, body, "summer_ad.pdf")
		assert.Contains(t, body, "Visual Analysis")
	})

	t.Run("index lists the run", func(t *testing.T) {
		w := c.get("/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "/runs/"+created.ID)
	})
}

func TestImageEndpoint(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	w := c.upload("/api/v1/analyses", "ad.pdf", fakePDF, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var created models.AnalysisRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	base := "/api/v1/analyses/" + created.ID + "/images/"

	w = c.get(base + "0")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))

	w = c.get(base + "0?width=300")
	require.Equal(t, http.StatusOK, w.Code)
	cfg, err := png.DecodeConfig(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
	assert.Equal(t, 150, cfg.Height)

	assert.Equal(t, http.StatusNotFound, c.get(base+"2").Code)
	assert.Equal(t, http.StatusNotFound, c.get(base+"-1").Code)
	assert.Equal(t, http.StatusBadRequest, c.get(base+"0?width=wide").Code)
}

func TestUploadValidation(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	tests := []struct {
		name     string
		filename string
		content  []byte
		fields   url.Values
		status   int
		code     string
	}{
		{"not a pdf extension", "ad.png", fakePDF, nil, http.StatusBadRequest, "invalid_file_type"},
		{"garbage bytes", "ad.pdf", []byte("hello world"), nil, http.StatusUnprocessableEntity, "invalid_pdf"},
		{"unreadable document", "ad.pdf", []byte("%PDF-1.4 BROKEN"), nil, http.StatusUnprocessableEntity, "document_parse_error"},
		{"unknown target market", "ad.pdf", fakePDF, url.Values{"target_markets": {"martians"}}, http.StatusBadRequest, "invalid_settings"},
		{"too large", "ad.pdf", append(append([]byte{}, fakePDF...), make([]byte, 2<<20)...), nil, http.StatusRequestEntityTooLarge, "file_too_large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := c.upload("/api/v1/analyses", tt.filename, tt.content, tt.fields)
			require.Equal(t, tt.status, w.Code, w.Body.String())

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error)
		})
	}
	assert.Zero(t, ts.provider.calls)
}

func TestConcurrentUploadIsRejected(t *testing.T) {
	provider := &scriptedProvider{release: make(chan struct{})}
	ts := newTestServer(t, provider, "")
	c := &client{t: t, srv: ts.engine}

	w := c.upload("/api/v1/analyses", "first.pdf", fakePDF, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var first models.AnalysisRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))

	w = c.upload("/api/v1/analyses", "second.pdf", fakePDF, nil)
	require.Equal(t, http.StatusConflict, w.Code)
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "analysis_in_progress", resp.Error)

	// A report is not available until the run finishes.
	assert.Equal(t, http.StatusConflict, c.get("/api/v1/analyses/"+first.ID+"/report").Code)

	close(provider.release)
	c.waitFor(first.ID, models.RunCompleted)

	w = c.upload("/api/v1/analyses", "second.pdf", fakePDF, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestRunsAreIsolatedBySession(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	alice := &client{t: t, srv: ts.engine}
	bob := &client{t: t, srv: ts.engine}

	w := alice.upload("/api/v1/analyses", "ad.pdf", fakePDF, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))
	alice.waitFor(run.ID, models.RunCompleted)

	for _, path := range []string{
		"/api/v1/analyses/" + run.ID,
		"/api/v1/analyses/" + run.ID + "/sections",
		"/api/v1/analyses/" + run.ID + "/report",
		"/api/v1/analyses/" + run.ID + "/images/0",
	} {
		assert.Equal(t, http.StatusNotFound, bob.get(path).Code, path)
	}
	assert.Equal(t, http.StatusNotFound, bob.get("/runs/"+run.ID).Code)

	// A second upload from bob is not blocked by alice's session.
	w = bob.upload("/api/v1/analyses", "ad.pdf", fakePDF, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDashboardFormRedirectsToRun(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	w := c.upload("/analyze", "ad.pdf", fakePDF, url.Values{"target_markets": {"ビジネス"}})
	require.Equal(t, http.StatusSeeOther, w.Code, w.Body.String())
	location := w.Header().Get("Location")
	require.True(t, strings.HasPrefix(location, "/runs/"), location)

	w = c.upload("/analyze", "ad.txt", fakePDF, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Only .pdf files are accepted")
}

func TestPasswordGateProtectsDashboard(t *testing.T) {
	hash, err := middleware.HashPassword("open sesame")
	require.NoError(t, err)
	ts := newTestServer(t, &scriptedProvider{}, hash)
	c := &client{t: t, srv: ts.engine}

	assert.Equal(t, http.StatusOK, c.get("/api/v1/health").Code)
	assert.Equal(t, http.StatusUnauthorized, c.get("/api/v1/options").Code)

	w := c.get("/")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/login?next=%2F", w.Header().Get("Location"))

	login := func(password string) *httptest.ResponseRecorder {
		form := url.Values{"password": {password}, "next": {"/"}}
		req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return c.do(req)
	}

	w = login("wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect password.")

	w = login("open sesame")
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/", w.Header().Get("Location"))
	assert.Equal(t, http.StatusOK, c.get("/").Code)
	assert.Equal(t, http.StatusOK, c.get("/api/v1/options").Code)

	w = c.do(httptest.NewRequest(http.MethodPost, "/logout", nil))
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, http.StatusUnauthorized, c.get("/api/v1/options").Code)
}

func TestProgressWebSocket(t *testing.T) {
	provider := &scriptedProvider{release: make(chan struct{})}
	ts := newTestServer(t, provider, "")
	c := &client{t: t, srv: ts.engine}

	w := c.upload("/api/v1/analyses", "ad.pdf", fakePDF, nil)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	var run models.AnalysisRun
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &run))

	srv := httptest.NewServer(ts.engine)
	defer srv.Close()

	header := http.Header{}
	header.Add("Cookie", c.cookie.String())
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/analyses/" + run.ID + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	close(provider.release)

	var last models.ProgressEvent
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var ev models.ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), err.Error())
			break
		}
		assert.Equal(t, run.ID, ev.RunID)
		assert.GreaterOrEqual(t, ev.Progress, last.Progress)
		last = ev
	}
	assert.Equal(t, models.RunCompleted, last.Status)
	assert.Equal(t, 100, last.Progress)
}

func TestProgressWebSocketUnknownRun(t *testing.T) {
	ts := newTestServer(t, &scriptedProvider{}, "")
	c := &client{t: t, srv: ts.engine}

	assert.Equal(t, http.StatusNotFound, c.get("/api/v1/analyses/missing/ws").Code)
}
