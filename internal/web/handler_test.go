package web

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"birthdayadmin/internal/birthday"
	"birthdayadmin/internal/dashboard"
	"birthdayadmin/internal/fakeapi"
	"birthdayadmin/internal/gateway"
	"birthdayadmin/internal/httpmiddleware"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

var sessionAttr = regexp.MustCompile(`hx-headers='\{"X-Session":"([0-9a-f-]+)"\}'`)

// png returns a PNG-headed file of exactly n bytes.
func png(n int) []byte {
	data := make([]byte, n)
	copy(data, pngHeader)
	return data
}

var bob = birthday.Record{
	ID:               "65a1b2c3d4e5f6a7b8c9d0e1",
	Name:             "Bob",
	Class:            "ECE",
	Section:          "B",
	HallTicketNumber: "21B7",
	BirthDate:        "2003-11-20T00:00:00.000Z",
}

func annForm() url.Values {
	return url.Values{
		"name":             {"Ann"},
		"class":            {"CSE"},
		"section":          {"A"},
		"hallTicketNumber": {"21A1"},
		"photo":            {""},
		"birthDate":        {"2004-05-01"},
	}
}

type HandlerSuite struct {
	suite.Suite
	api    *fakeapi.Server
	reg    *Registry
	router *gin.Engine
	sid    string
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.api = fakeapi.New(bob)
	s.router = s.newRouter(Options{}, nil)
	s.sid = ""
}

func (s *HandlerSuite) TearDownTest() {
	s.reg.CloseAll()
	s.api.Close()
}

func (s *HandlerSuite) newRouter(opts Options, limiter gin.HandlerFunc) *gin.Engine {
	gw := gateway.New(s.api.URL(), 2*time.Second)
	s.reg = NewRegistry(func() *dashboard.Session {
		return dashboard.New(gw, dashboard.Options{Logger: zerolog.Nop()})
	}, time.Minute)
	opts.Logger = zerolog.Nop()
	return NewRouter(NewHandler(s.reg, gw, opts), limiter)
}

func (s *HandlerSuite) do(req *http.Request, htmx bool) *httptest.ResponseRecorder {
	if htmx {
		req.Header.Set("HX-Request", "true")
		if s.sid != "" {
			req.Header.Set(SessionHeader, s.sid)
		}
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	if m := sessionAttr.FindStringSubmatch(rec.Body.String()); m != nil {
		s.sid = m[1]
	}
	return rec
}

func (s *HandlerSuite) get(path string, htmx bool) *httptest.ResponseRecorder {
	return s.do(httptest.NewRequest(http.MethodGet, path, nil), htmx)
}

// post sends a urlencoded form. Without htmx the session travels in the hidden
// field, as it does for a plain browser post.
func (s *HandlerSuite) post(path string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	if !htmx && s.sid != "" {
		if form == nil {
			form = url.Values{}
		}
		form.Set(SessionField, s.sid)
	}
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, htmx)
}

func (s *HandlerSuite) upload(data []byte) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "photo.png")
	s.Require().NoError(err)
	_, err = fw.Write(data)
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/draft/photo", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return s.do(req, true)
}

func (s *HandlerSuite) session() *dashboard.Session {
	return s.sessionByID(s.sid)
}

func (s *HandlerSuite) sessionByID(id string) *dashboard.Session {
	s.Require().NotEmpty(id)
	sess, ok := s.reg.Get(id)
	s.Require().True(ok)
	return sess
}

func (s *HandlerSuite) snapshot() dashboard.Snapshot {
	return s.snapshotOf(s.sid)
}

func (s *HandlerSuite) snapshotOf(id string) dashboard.Snapshot {
	snap, err := s.sessionByID(id).Snapshot(context.Background())
	s.Require().NoError(err)
	return snap
}

func (s *HandlerSuite) TestIndexRendersRecords() {
	rec := s.get("/", false)

	s.Equal(http.StatusOK, rec.Code)
	s.Require().NotEmpty(s.sid)
	body := rec.Body.String()
	s.Contains(body, `<input type="hidden" name="session" value="`+s.sid+`">`)
	s.Contains(body, "<!DOCTYPE html>")
	s.Contains(body, "Birthday Admin Dashboard")
	s.Contains(body, "Bob")
	s.Contains(body, "ECE - Section B")
	s.Contains(body, "20 Nov 2003")
	s.Contains(body, birthday.PlaceholderPhoto)
	s.Contains(body, "/birthdays/"+bob.ID+"/delete")
	s.Equal("nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func (s *HandlerSuite) TestReloadStartsFreshSession() {
	s.get("/", false)
	first := s.sid
	s.post("/draft/field", url.Values{"name": {"Ann"}}, true)

	s.get("/", false)
	s.NotEqual(first, s.sid)
	s.Empty(s.snapshot().Draft.Name, "draft lost on reload")
}

func (s *HandlerSuite) TestTabsHaveIndependentSessions() {
	s.get("/", false)
	tab1 := s.sid
	s.post("/draft/field", url.Values{"name": {"Ann"}}, true)

	s.get("/", false)
	tab2 := s.sid
	s.Equal(2, s.reg.Len())

	s.sid = tab1
	rec := s.post("/draft/field", url.Values{"class": {"EEE"}}, true)
	s.Equal(http.StatusNoContent, rec.Code)

	one := s.snapshotOf(tab1)
	s.Equal("Ann", one.Draft.Name)
	s.Equal("EEE", one.Draft.Class)
	s.True(s.snapshotOf(tab2).Draft.IsEmpty())
}

func (s *HandlerSuite) TestIndexFetchFailure() {
	s.api.Fail(fakeapi.OpList, fakeapi.Failure{Status: http.StatusInternalServerError})

	rec := s.get("/", false)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), dashboard.MsgFetchFailed)
	s.Contains(rec.Body.String(), `class="snackbar error"`)
}

func (s *HandlerSuite) TestLoadingPlaceholderPolls() {
	hold := make(chan struct{})
	s.api.Fail(fakeapi.OpList, fakeapi.Failure{Hold: hold, Times: 1})
	s.router = s.newRouter(Options{LoadWait: 20 * time.Millisecond}, nil)

	rec := s.get("/", false)
	s.Contains(rec.Body.String(), "Loading birthdays...")
	s.Contains(rec.Body.String(), `hx-get="/records"`)

	close(hold)
	s.Eventually(func() bool {
		return strings.Contains(s.get("/records", true).Body.String(), "Bob")
	}, 2*time.Second, 10*time.Millisecond)
	s.NotContains(s.get("/records", true).Body.String(), "<html")
}

func (s *HandlerSuite) TestMissingSession() {
	rec := s.get("/records", true)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("/", rec.Header().Get("HX-Redirect"))

	rec = s.post("/birthdays", annForm(), false)
	s.Equal(http.StatusSeeOther, rec.Code)
	s.Equal("/", rec.Header().Get("Location"))
	s.Empty(s.api.Created())
}

func (s *HandlerSuite) TestSetFieldMergesDraft() {
	s.get("/", false)

	rec := s.post("/draft/field", url.Values{"name": {"Ann"}, "class": {"AIML"}, "unknown": {"x"}}, true)
	s.Equal(http.StatusNoContent, rec.Code)

	snap := s.snapshot()
	s.Equal("Ann", snap.Draft.Name)
	s.Equal("AIML", snap.Draft.Class)
	s.Empty(snap.Draft.Section)
}

func (s *HandlerSuite) TestSubmitSuccess() {
	s.get("/", false)

	rec := s.post("/birthdays", annForm(), true)
	s.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	s.NotContains(body, "<html", "htmx gets the app fragment")
	s.Contains(body, `id="app"`)
	s.Contains(body, dashboard.MsgAdded)
	s.Contains(body, "Ann")
	s.Contains(body, "Bob")

	s.Require().Len(s.api.Created(), 1)
	s.Equal("21A1", s.api.Created()[0].HallTicketNumber)
	s.True(s.snapshot().Draft.IsEmpty())
}

func (s *HandlerSuite) TestSubmitWithoutHTMXRendersPage() {
	s.get("/", false)

	rec := s.post("/birthdays", annForm(), false)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "<!DOCTYPE html>")
	s.Contains(rec.Body.String(), dashboard.MsgAdded)
}

func (s *HandlerSuite) TestSubmitMissingFields() {
	s.get("/", false)
	form := annForm()
	form.Set("hallTicketNumber", "")
	form.Set("birthDate", "")

	rec := s.post("/birthdays", form, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Please fill in: hall ticket number, birth date")
	s.Contains(rec.Body.String(), `value="Ann"`, "typing kept")
	s.Empty(s.api.Created())
	s.Equal(0, s.api.Calls(fakeapi.OpCreate))

	rec = s.post("/birthdays", form, false)
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *HandlerSuite) TestSubmitRejectsUnknownClass() {
	s.get("/", false)
	form := annForm()
	form.Set("class", "MECH")

	rec := s.post("/birthdays", form, true)
	s.Contains(rec.Body.String(), "class must be one of CSE AIML ECE EEE")
	s.Empty(s.api.Created())
}

func (s *HandlerSuite) TestSubmitFailureKeepsDraft() {
	s.get("/", false)
	s.api.Fail(fakeapi.OpCreate, fakeapi.Failure{Status: http.StatusBadRequest})

	rec := s.post("/birthdays", annForm(), true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), dashboard.MsgAddFailed)
	s.Contains(rec.Body.String(), `value="21A1"`)

	snap := s.snapshot()
	s.Equal("Ann", snap.Draft.Name)
	s.Len(snap.Records, 1)
}

func (s *HandlerSuite) TestDelete() {
	s.get("/", false)

	rec := s.post("/birthdays/"+bob.ID+"/delete", nil, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), dashboard.MsgDeleted)
	s.NotContains(rec.Body.String(), "Bob")
	s.Empty(s.api.Records())
}

func (s *HandlerSuite) TestDeleteUnknown() {
	s.get("/", false)

	rec := s.post("/birthdays/nope/delete", nil, true)
	s.Contains(rec.Body.String(), dashboard.MsgDeleteFailed)
	s.Contains(rec.Body.String(), "Bob")
	s.Len(s.snapshot().Records, 1)
}

func (s *HandlerSuite) TestUploadPhoto() {
	s.get("/", false)

	rec := s.upload(pngHeader)
	s.Equal(http.StatusOK, rec.Code)
	body := rec.Body.String()
	s.Contains(body, `id="draft"`)
	s.Contains(body, `class="preview" src="data:image/png;base64,`)

	snap := s.snapshot()
	s.True(strings.HasPrefix(snap.Draft.Photo, "data:image/png;base64,"))
	s.Equal(snap.Draft.Photo, snap.Preview)
}

func (s *HandlerSuite) TestUploadThenSubmitSendsPhoto() {
	s.get("/", false)

	rec := s.upload(pngHeader)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), `name="photo" value="" placeholder="Using uploaded photo"`)

	// The browser posts the re-rendered form: the URL input is blank.
	rec = s.post("/birthdays", annForm(), true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), dashboard.MsgAdded)

	created := s.api.Created()
	s.Require().Len(created, 1)
	s.True(strings.HasPrefix(created[0].Photo, "data:image/png;base64,"))
	s.Len(s.api.Records(), 2)
}

func (s *HandlerSuite) TestLargestPhotoStillSubmits() {
	s.get("/", false)

	rec := s.upload(png(dashboard.DefaultMaxPhotoBytes))
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "too large")

	rec = s.post("/birthdays", annForm(), true)
	s.Contains(rec.Body.String(), dashboard.MsgAdded)
	s.NotContains(rec.Body.String(), "Please fill in")

	created := s.api.Created()
	s.Require().Len(created, 1)
	s.Greater(len(created[0].Photo), dashboard.DefaultMaxPhotoBytes)
}

func (s *HandlerSuite) TestPhotoOverLimitRejected() {
	s.get("/", false)

	rec := s.upload(png(dashboard.DefaultMaxPhotoBytes + 1))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Selected photo is too large")
	s.Empty(s.snapshot().Draft.Photo)
}

func (s *HandlerSuite) TestSubmitUnreadableForm() {
	s.get("/", false)
	form := annForm()
	form.Set("name", strings.Repeat("a", 10<<20))

	rec := s.post("/birthdays", form, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "could not read form")
	s.NotContains(rec.Body.String(), "Please fill in")
	s.Equal(0, s.api.Calls(fakeapi.OpCreate))
}

func (s *HandlerSuite) TestTypedURLOnSubmitReplacesUpload() {
	s.get("/", false)
	s.upload(pngHeader)

	form := annForm()
	form.Set("photo", "https://example.com/a.jpg")
	s.post("/birthdays", form, true)

	created := s.api.Created()
	s.Require().Len(created, 1)
	s.Equal("https://example.com/a.jpg", created[0].Photo)
}

func (s *HandlerSuite) TestUploadRejectsNonImage() {
	s.get("/", false)

	rec := s.upload([]byte("just some text"))
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Selected file is not an image")
	s.Empty(s.snapshot().Draft.Photo)
}

func (s *HandlerSuite) TestPhotoURLOverridesUpload() {
	s.get("/", false)
	s.upload(pngHeader)

	rec := s.post("/draft/photo-url", url.Values{"photo": {"https://example.com/a.jpg"}}, true)
	s.Equal(http.StatusNoContent, rec.Code)

	snap := s.snapshot()
	s.Equal("https://example.com/a.jpg", snap.Draft.Photo)
	s.NotEmpty(snap.Preview, "preview is only replaced by a file")
}

func (s *HandlerSuite) TestNotificationDismiss() {
	s.get("/", false)
	s.post("/birthdays", annForm(), true)

	rec := s.get("/notification", true)
	s.Contains(rec.Body.String(), dashboard.MsgAdded)
	s.Contains(rec.Body.String(), `hx-trigger="load delay:6100ms"`)

	rec = s.post("/notification/dismiss", nil, true)
	s.Equal(`<div id="notification"></div>`, rec.Body.String())
	s.False(s.snapshot().Notification.Visible)
}

func (s *HandlerSuite) TestHealthz() {
	rec := s.get("/healthz", false)
	s.Equal(http.StatusOK, rec.Code)
	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("ok", body["status"])
	s.Equal(true, body["api"])

	s.api.Close()
	rec = s.get("/healthz", false)
	s.Equal(http.StatusServiceUnavailable, rec.Code)
	s.Contains(rec.Body.String(), "degraded")
	s.api = fakeapi.New()
}

func (s *HandlerSuite) TestMetrics() {
	s.get("/", false)
	rec := s.get("/metrics", false)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "birthdayadmin_gateway_requests_total")
	s.Contains(rec.Body.String(), "birthdayadmin_sessions")
}

func (s *HandlerSuite) TestRateLimited() {
	limiter := httpmiddleware.RateLimit(httpmiddleware.NewTokenBucket(1, 1), zerolog.Nop())
	s.reg.CloseAll()
	s.router = s.newRouter(Options{}, limiter)

	s.Equal(http.StatusOK, s.get("/", false).Code)
	s.Equal(http.StatusTooManyRequests, s.get("/", false).Code)
	s.Equal(http.StatusOK, s.get("/healthz", false).Code, "health checks are not limited")
}

func TestDescribeBindErrorNonValidation(t *testing.T) {
	assert.Equal(t, "could not read form", describeBindError(io.ErrUnexpectedEOF))
}

func TestViewsEscape(t *testing.T) {
	var buf bytes.Buffer
	snap := dashboard.Snapshot{Records: []birthday.Record{{ID: "a/b", Name: `<script>x</script>`, Photo: "javascript:alert(1)"}}}
	require.NoError(t, RecordList(snap).Render(context.Background(), &buf))

	out := buf.String()
	assert.NotContains(t, out, "<script>")
	assert.Contains(t, out, "&lt;script&gt;")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "/birthdays/a%2Fb/delete")
}
