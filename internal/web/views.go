package web

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/a-h/templ"

	"birthdayadmin/internal/birthday"
	"birthdayadmin/internal/dashboard"
	"birthdayadmin/internal/notify"
)

const htmxSrc = "https://unpkg.com/htmx.org@1.9.12"

// SessionHeader carries the page's session id on htmx requests. Plain form
// posts carry it in the SessionField input instead.
const (
	SessionHeader = "X-Session"
	SessionField  = "session"
)

type sessionKeyType struct{}

// withSession makes the page's session id available to components.
func withSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKeyType{}, id)
}

func sessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKeyType{}).(string)
	return id
}

// view accumulates the first write error so components read top to bottom.
type view struct {
	w   io.Writer
	err error
}

func (v *view) raw(format string, args ...any) {
	if v.err != nil {
		return
	}
	_, v.err = fmt.Fprintf(v.w, format, args...)
}

func (v *view) render(ctx context.Context, c templ.Component) {
	if v.err != nil {
		return
	}
	v.err = c.Render(ctx, v.w)
}

func esc(s string) string { return templ.EscapeString(s) }

// imageSrc allows inline image data URLs and whatever templ considers a safe URL.
func imageSrc(s string) string {
	if strings.HasPrefix(s, "data:image/") {
		return esc(s)
	}
	return esc(string(templ.URL(s)))
}

// Layout wraps content in the full page.
func Layout(content templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		v.raw(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		v.raw(`<title>Birthday Admin Dashboard</title>`)
		v.raw(`<script src="%s"></script>`, htmxSrc)
		v.raw(`<style>%s</style></head>`, css)
		v.raw(`<body hx-headers='{"%s":"%s"}'>`, SessionHeader, esc(sessionID(ctx)))
		v.raw(`<header class="admin-header"><h1>🎂 Birthday Admin Dashboard</h1></header>`)
		v.render(ctx, content)
		v.raw(`</body></html>`)
		return v.err
	})
}

// App is the swappable body: form, list and notification.
func App(snap dashboard.Snapshot, problem string, expireAfter time.Duration) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<main id="app" class="admin-container">`)
		v.render(ctx, Form(snap.Draft, snap.Preview, problem))
		v.render(ctx, Records(snap))
		v.render(ctx, Notification(snap.Notification, expireAfter))
		v.raw(`</main>`)
		return v.err
	})
}

// Form renders the draft. Field changes are pushed to the session as they
// happen so a failed submit never loses typing.
func Form(d birthday.Draft, preview, problem string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<section class="form-paper" id="draft"><h2>Add New Birthday</h2>`)
		if problem != "" {
			v.raw(`<p class="form-problem">%s</p>`, esc(problem))
		}
		v.raw(`<form method="post" action="/birthdays" hx-post="/birthdays" hx-target="#app" hx-swap="outerHTML">`)
		v.raw("%s", sessionInput(ctx))

		v.raw(`<label>Name <input name="%s" value="%s" required hx-post="/draft/field" hx-trigger="change" hx-swap="none"></label>`,
			birthday.FieldName, esc(d.Name))
		v.render(ctx, selectField("Class", birthday.FieldClass, birthday.Classes, d.Class))
		v.render(ctx, selectField("Section", birthday.FieldSection, birthday.Sections, d.Section))
		v.raw(`<label>Hall Ticket Number <input name="%s" value="%s" required hx-post="/draft/field" hx-trigger="change" hx-swap="none"></label>`,
			birthday.FieldHallTicketNumber, esc(d.HallTicketNumber))

		v.raw(`<label class="upload">Upload Photo <input type="file" name="file" accept="image/*" hx-post="/draft/photo" hx-encoding="multipart/form-data" hx-trigger="change" hx-target="#draft" hx-swap="outerHTML"></label>`)
		if preview != "" {
			v.raw(`<img class="preview" src="%s" alt="Preview">`, imageSrc(preview))
		}
		v.raw(`<label>Or enter image URL <input name="%s" value="%s" placeholder="%s" hx-post="/draft/photo-url" hx-trigger="change" hx-swap="none"></label>`,
			birthday.FieldPhoto, esc(typedPhoto(d.Photo)), photoPlaceholder(d.Photo))

		v.raw(`<label>Birth Date <input type="date" name="%s" value="%s" required hx-post="/draft/field" hx-trigger="change" hx-swap="none"></label>`,
			birthday.FieldBirthDate, esc(d.BirthDate))
		v.raw(`<button type="submit" class="submit-button">Add Birthday</button>`)
		v.raw(`</form></section>`)
		return v.err
	})
}

// typedPhoto is what the URL input shows. An uploaded photo stays in the
// session only; echoing its data URL would make every form post megabytes.
func typedPhoto(photo string) string {
	if strings.HasPrefix(photo, "data:") {
		return ""
	}
	return photo
}

func photoPlaceholder(photo string) string {
	if strings.HasPrefix(photo, "data:") {
		return "Using uploaded photo"
	}
	return "https://"
}

func sessionInput(ctx context.Context) string {
	return fmt.Sprintf(`<input type="hidden" name="%s" value="%s">`, SessionField, esc(sessionID(ctx)))
}

func selectField(label, name string, options []string, selected string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<label>%s <select name="%s" required hx-post="/draft/field" hx-trigger="change" hx-swap="none">`, esc(label), name)
		v.raw(`<option value=""></option>`)
		for _, o := range options {
			sel := ""
			if o == selected {
				sel = " selected"
			}
			v.raw(`<option value="%s"%s>%s</option>`, esc(o), sel, esc(o))
		}
		v.raw(`</select></label>`)
		return v.err
	})
}

// Records renders the list section.
func Records(snap dashboard.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<section class="birthday-list-section"><h2>🎈 Birthday Records</h2>`)
		v.render(ctx, RecordList(snap))
		v.raw(`</section>`)
		return v.err
	})
}

// RecordList renders the cards, or a loading placeholder that polls until the
// current refresh completes.
func RecordList(snap dashboard.Snapshot) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		if snap.Loading {
			v.raw(`<div id="records" class="loading-container" hx-get="/records" hx-trigger="every 500ms" hx-swap="outerHTML">Loading birthdays...</div>`)
			return v.err
		}
		v.raw(`<div id="records" class="birthday-grid">`)
		for _, r := range snap.Records {
			v.render(ctx, card(r))
		}
		v.raw(`</div>`)
		return v.err
	})
}

func card(r birthday.Record) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		v.raw(`<article class="birthday-card" data-id="%s">`, esc(r.ID))
		v.raw(`<img class="card-media" src="%s" alt="%s">`, imageSrc(r.PhotoOrPlaceholder()), esc(r.Name))
		v.raw(`<h3>%s</h3>`, esc(r.Name))
		v.raw(`<p class="detail-item">%s - Section %s</p>`, esc(r.Class), esc(r.Section))
		v.raw(`<p class="detail-item">%s</p>`, esc(r.HallTicketNumber))
		v.raw(`<p class="detail-item">%s</p>`, esc(r.DisplayDate()))
		v.raw(`<form method="post" action="/birthdays/%[1]s/delete" hx-post="/birthdays/%[1]s/delete" hx-target="#app" hx-swap="outerHTML">`, esc(url.PathEscape(r.ID)))
		v.raw("%s", sessionInput(ctx))
		v.raw(`<button type="submit" class="delete-button" aria-label="delete">Delete</button></form>`)
		v.raw(`</article>`)
		return v.err
	})
}

// Notification renders the snackbar slot. A visible notification asks for a
// fresh copy once it should have expired.
func Notification(n notify.State, expireAfter time.Duration) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		v := &view{w: w}
		if !n.Visible {
			v.raw(`<div id="notification"></div>`)
			return v.err
		}
		v.raw(`<div id="notification" class="snackbar %s" role="alert" hx-get="/notification" hx-trigger="load delay:%dms" hx-swap="outerHTML">`,
			esc(string(n.Severity)), (expireAfter + 100*time.Millisecond).Milliseconds())
		v.raw(`<span>%s</span>`, esc(n.Message))
		v.raw(`<button hx-post="/notification/dismiss" hx-target="#notification" hx-swap="outerHTML" aria-label="close">×</button>`)
		v.raw(`</div>`)
		return v.err
	})
}

const css = `
body{font-family:system-ui,sans-serif;margin:0;background:#f6f7fb}
.admin-header{background:#5b3cc4;color:#fff;padding:1rem 2rem}
.admin-container{max-width:1100px;margin:1rem auto;padding:0 1rem}
.form-paper{background:#fff;padding:1rem 1.5rem;border-radius:8px;box-shadow:0 1px 4px #0002}
.form-paper label{display:block;margin:.5rem 0}
.form-problem{color:#b00020}
.preview{max-height:200px;max-width:100%;border-radius:8px;border:1px solid #ddd}
.birthday-grid{display:grid;grid-template-columns:repeat(auto-fill,minmax(260px,1fr));gap:1rem}
.birthday-card{background:#fff;border-radius:8px;overflow:hidden;box-shadow:0 1px 4px #0002;padding-bottom:.5rem}
.card-media{width:100%;height:250px;object-fit:cover}
.birthday-card h3,.detail-item{margin:.25rem 1rem}
.delete-button{margin:.5rem 1rem;color:#b00020}
.snackbar{position:fixed;right:1rem;bottom:1rem;padding:.75rem 1rem;border-radius:6px;color:#fff}
.snackbar.success{background:#2e7d32}.snackbar.error{background:#c62828}
`
