package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"birthdayadmin/internal/birthday"
	"birthdayadmin/internal/dashboard"
	"birthdayadmin/internal/notify"
	"birthdayadmin/internal/store"
)

const sessionKey = "session"

// Pinger reports whether the birthdays API is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// Handler serves the dashboard.
type Handler struct {
	reg           *Registry
	api           Pinger
	redis         *store.Redis // nil when rate limiting is in memory
	log           zerolog.Logger
	notifyTimeout time.Duration
	loadWait      time.Duration
	actionWait    time.Duration
}

// Options configure a Handler. Zero durations pick defaults.
type Options struct {
	Redis         *store.Redis
	Logger        zerolog.Logger
	NotifyTimeout time.Duration
	// LoadWait bounds how long a page load waits for the first refresh
	// before rendering the loading placeholder.
	LoadWait time.Duration
	// ActionWait bounds how long submit and delete wait before rendering
	// whatever state the session has reached.
	ActionWait time.Duration
}

// NewHandler creates a handler over a session registry.
func NewHandler(reg *Registry, api Pinger, opts Options) *Handler {
	h := &Handler{
		reg:           reg,
		api:           api,
		redis:         opts.Redis,
		log:           opts.Logger,
		notifyTimeout: opts.NotifyTimeout,
		loadWait:      opts.LoadWait,
		actionWait:    opts.ActionWait,
	}
	if h.notifyTimeout <= 0 {
		h.notifyTimeout = notify.DefaultTimeout
	}
	if h.loadWait <= 0 {
		h.loadWait = 2 * time.Second
	}
	if h.actionWait <= 0 {
		h.actionWait = 10 * time.Second
	}
	return h
}

// draftForm is the submitted form. Binding enforces what the browser's
// "required" attributes would.
type draftForm struct {
	Name             string `form:"name" binding:"required"`
	Class            string `form:"class" binding:"required,oneof=CSE AIML ECE EEE"`
	Section          string `form:"section" binding:"required,oneof=A B C D"`
	HallTicketNumber string `form:"hallTicketNumber" binding:"required"`
	Photo            string `form:"photo"`
	BirthDate        string `form:"birthDate" binding:"required"`
}

var draftFields = []string{
	birthday.FieldName,
	birthday.FieldClass,
	birthday.FieldSection,
	birthday.FieldHallTicketNumber,
	birthday.FieldPhoto,
	birthday.FieldBirthDate,
}

var wireNames = map[string]string{
	"Name":             "name",
	"Class":            "class",
	"Section":          "section",
	"HallTicketNumber": "hall ticket number",
	"BirthDate":        "birth date",
}

// ---------- Page ----------

// Index starts a fresh session for every full page load, like reopening the
// app, and populates it from the backend. Each page carries its own session
// id, so tabs are independent; a session left behind by a reload is reclaimed
// by idle pruning.
func (h *Handler) Index(c *gin.Context) {
	sess := h.reg.Create()

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.loadWait)
	defer cancel()
	_ = sess.Refresh(ctx)

	h.respond(c, sess, http.StatusOK, "", nil)
}

// requireSession loads the page's session from the htmx header, or from the
// hidden form field of a plain post. Requests from a page whose session is
// gone are sent back to a fresh page load.
func (h *Handler) requireSession(c *gin.Context) {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		id = c.Query(SessionField)
	}
	if id == "" && c.Request.Method == http.MethodPost {
		id = c.PostForm(SessionField)
	}
	sess, ok := h.reg.Get(id)
	if !ok {
		if isHTMX(c) {
			c.Header("HX-Redirect", "/")
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
		c.Abort()
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func session(c *gin.Context) *dashboard.Session {
	return c.MustGet(sessionKey).(*dashboard.Session)
}

// ---------- Fragments ----------

// Records returns the list, or the loading placeholder while a refresh runs.
func (h *Handler) Records(c *gin.Context) {
	h.respond(c, session(c), http.StatusOK, "", func(s dashboard.Snapshot) templ.Component {
		return RecordList(s)
	})
}

// Notification returns the snackbar slot.
func (h *Handler) Notification(c *gin.Context) {
	h.respond(c, session(c), http.StatusOK, "", h.notificationFragment)
}

// Dismiss hides the snackbar.
func (h *Handler) Dismiss(c *gin.Context) {
	sess := session(c)
	if err := sess.Dismiss(c.Request.Context()); err != nil {
		h.log.Warn().Err(err).Msg("dismiss failed")
	}
	h.respond(c, sess, http.StatusOK, "", h.notificationFragment)
}

func (h *Handler) notificationFragment(s dashboard.Snapshot) templ.Component {
	return Notification(s.Notification, h.notifyTimeout)
}

// ---------- Draft ----------

// SetField merges posted draft fields. htmx posts the whole enclosing form on
// every change, so every known field present is merged.
func (h *Handler) SetField(c *gin.Context) {
	sess := session(c)
	if err := c.Request.ParseForm(); err != nil {
		h.respond(c, sess, problemStatus(c), "could not read form", formFragment)
		return
	}
	if err := h.mergeDraft(c.Request.Context(), sess, c.Request.PostForm); err != nil {
		h.respond(c, sess, problemStatus(c), err.Error(), formFragment)
		return
	}
	if isHTMX(c) {
		c.Status(http.StatusNoContent)
		return
	}
	h.respond(c, sess, http.StatusOK, "", nil)
}

// SetPhotoURL writes a typed photo URL into the draft.
func (h *Handler) SetPhotoURL(c *gin.Context) {
	sess := session(c)
	if err := sess.SetPhotoFromURL(c.Request.Context(), c.PostForm(birthday.FieldPhoto)); err != nil {
		h.log.Warn().Err(err).Msg("set photo url failed")
	}
	if isHTMX(c) {
		c.Status(http.StatusNoContent)
		return
	}
	h.respond(c, sess, http.StatusOK, "", nil)
}

// UploadPhoto reads a selected image into the draft and returns the form with
// its preview.
func (h *Handler) UploadPhoto(c *gin.Context) {
	sess := session(c)
	file, _, err := c.Request.FormFile("file")
	if err != nil {
		h.respond(c, sess, problemStatus(c), "photo file is required", formFragment)
		return
	}
	defer file.Close()

	err = sess.SetPhotoFromFile(c.Request.Context(), file)
	switch {
	case errors.Is(err, dashboard.ErrNotImage):
		h.respond(c, sess, problemStatus(c), "Selected file is not an image", formFragment)
		return
	case errors.Is(err, dashboard.ErrPhotoTooLarge):
		h.respond(c, sess, problemStatus(c), "Selected photo is too large", formFragment)
		return
	case err != nil:
		h.log.Error().Err(err).Msg("read photo failed")
		h.respond(c, sess, problemStatus(c), "Could not read photo", formFragment)
		return
	}
	h.respond(c, sess, http.StatusOK, "", formFragment)
}

// ---------- Mutations ----------

// Submit merges the posted form into the draft and submits it.
func (h *Handler) Submit(c *gin.Context) {
	sess := session(c)
	if err := c.Request.ParseForm(); err != nil {
		h.log.Warn().Err(err).Str("session", sess.ID).Msg("read submitted form failed")
		h.respond(c, sess, problemStatus(c), "could not read form", nil)
		return
	}
	if err := h.mergeDraft(c.Request.Context(), sess, c.Request.PostForm); err != nil {
		h.respond(c, sess, problemStatus(c), err.Error(), nil)
		return
	}

	var form draftForm
	if err := c.ShouldBind(&form); err != nil {
		h.respond(c, sess, problemStatus(c), describeBindError(err), nil)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.actionWait)
	defer cancel()
	err := sess.Submit(ctx)
	if errors.Is(err, dashboard.ErrIncomplete) {
		h.respond(c, sess, problemStatus(c), "Please fill in every required field", nil)
		return
	}
	h.respond(c, sess, http.StatusOK, "", nil)
}

// Delete removes a record.
func (h *Handler) Delete(c *gin.Context) {
	sess := session(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.actionWait)
	defer cancel()
	_ = sess.Delete(ctx, c.Param("id"))
	h.respond(c, sess, http.StatusOK, "", nil)
}

// ---------- Health ----------

// Healthz reports backend reachability and, when used, Redis.
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	apiHealthy := h.api == nil || h.api.Health(ctx) == nil
	body := gin.H{"status": "ok", "api": apiHealthy, "sessions": h.reg.Len()}
	healthy := apiHealthy
	if h.redis != nil {
		redisHealthy := h.redis.Healthy(ctx)
		body["redis"] = redisHealthy
		healthy = healthy && redisHealthy
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}

// ---------- helpers ----------

// mergeDraft writes every posted draft field into the session. An empty photo
// is skipped: the URL input is blank while an uploaded photo is in use, and
// clearing a typed URL goes through SetPhotoURL.
func (h *Handler) mergeDraft(ctx context.Context, sess *dashboard.Session, form map[string][]string) error {
	for _, f := range draftFields {
		vals, ok := form[f]
		if !ok || len(vals) == 0 {
			continue
		}
		var err error
		if f == birthday.FieldPhoto {
			if vals[0] == "" {
				continue
			}
			err = sess.SetPhotoFromURL(ctx, vals[0])
		} else {
			err = sess.SetField(ctx, f, vals[0])
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// respond renders fragment for htmx requests and the full page otherwise. A
// nil fragment means the whole app body.
func (h *Handler) respond(c *gin.Context, sess *dashboard.Session, status int, problem string, fragment func(dashboard.Snapshot) templ.Component) {
	snap, err := sess.Snapshot(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Str("session", sess.ID).Msg("snapshot failed")
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	}

	var content templ.Component
	switch {
	case !isHTMX(c):
		content = Layout(App(snap, problem, h.notifyTimeout))
	case fragment == nil:
		content = App(snap, problem, h.notifyTimeout)
	default:
		content = fragment(snap)
		if problem != "" {
			content = Form(snap.Draft, snap.Preview, problem)
		}
	}

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := content.Render(withSession(c.Request.Context(), sess.ID), c.Writer); err != nil {
		h.log.Error().Err(err).Msg("render failed")
	}
}

func formFragment(s dashboard.Snapshot) templ.Component {
	return Form(s.Draft, s.Preview, "")
}

func isHTMX(c *gin.Context) bool {
	return c.GetHeader("HX-Request") == "true"
}

// problemStatus keeps htmx swapping the response; htmx ignores 4xx bodies.
func problemStatus(c *gin.Context) int {
	if isHTMX(c) {
		return http.StatusOK
	}
	return http.StatusUnprocessableEntity
}

func describeBindError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "could not read form"
	}
	var missing, invalid []string
	for _, fe := range verrs {
		name := wireNames[fe.Field()]
		if name == "" {
			name = fe.Field()
		}
		if fe.Tag() == "required" {
			missing = append(missing, name)
		} else {
			invalid = append(invalid, fmt.Sprintf("%s must be one of %s", name, fe.Param()))
		}
	}
	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "Please fill in: "+strings.Join(missing, ", "))
	}
	parts = append(parts, invalid...)
	return strings.Join(parts, ". ")
}
