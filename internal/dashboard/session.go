package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"birthdayadmin/internal/birthday"
	"birthdayadmin/internal/cloudinary"
	"birthdayadmin/internal/eventloop"
	"birthdayadmin/internal/notify"
)

// Gateway is the remote birthdays API as the session needs it.
type Gateway interface {
	List(ctx context.Context) ([]birthday.Record, error)
	Create(ctx context.Context, d birthday.Draft) error
	Delete(ctx context.Context, id string) error
}

// PhotoHost stores selected photos and returns a public URL for them.
type PhotoHost interface {
	UploadDataURL(ctx context.Context, dataURL string) (*cloudinary.UploadResult, error)
}

// Options tune a Session. Zero values pick defaults.
type Options struct {
	NotifyTimeout time.Duration
	MaxPhotoBytes int64
	Photos        PhotoHost
	Logger        zerolog.Logger
}

// Snapshot is a consistent copy of a session's state for rendering.
type Snapshot struct {
	Records      []birthday.Record
	Loading      bool
	Draft        birthday.Draft
	Preview      string
	Notification notify.State
}

// Session owns the record store, the draft and the notification slot of one
// dashboard page. All state lives on a single event loop; network and file
// work runs off the loop and posts its completion back.
//
// Operations are awaitable: they return once their completion has been
// applied. The caller's context only bounds that wait. Issued requests are
// never cancelled by it, so an abandoned Submit still clears the draft when
// the backend answers.
type Session struct {
	ID string

	gw       Gateway
	photos   PhotoHost
	maxPhoto int64
	log      zerolog.Logger

	loop   *eventloop.Loop
	base   context.Context
	cancel context.CancelFunc

	// owned by the loop
	records []birthday.Record
	loading bool
	draft   birthday.Draft
	preview string
	note    *notify.Controller
}

// New creates a session and starts its loop. It does not fetch; call Refresh.
func New(gw Gateway, opts Options) *Session {
	base, cancel := context.WithCancel(context.Background())
	s := &Session{
		ID:       uuid.NewString(),
		gw:       gw,
		photos:   opts.Photos,
		maxPhoto: opts.MaxPhotoBytes,
		loop:     eventloop.New(64),
		base:     base,
		cancel:   cancel,
		records:  []birthday.Record{},
	}
	if s.maxPhoto <= 0 {
		s.maxPhoto = DefaultMaxPhotoBytes
	}
	s.log = opts.Logger.With().Str("session", s.ID).Logger()
	s.note = notify.New(opts.NotifyTimeout, func(f func()) {
		_ = s.loop.Post(s.base, eventloop.Task{Name: "notify.expire", Fn: f})
	})
	s.loop.Start(base)
	return s
}

// Close stops the loop and cancels in-flight requests.
func (s *Session) Close() {
	s.cancel()
	<-s.loop.Done()
	s.note.Dismiss()
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.loop.Do(ctx, "snapshot", func() {
		snap = Snapshot{
			Records:      append([]birthday.Record(nil), s.records...),
			Loading:      s.loading,
			Draft:        s.draft,
			Preview:      s.preview,
			Notification: s.note.State(),
		}
	})
	return snap, err
}

// Refresh replaces the local collection with the backend's. On failure the
// previous collection is kept and FetchFailed is raised.
func (s *Session) Refresh(ctx context.Context) error {
	if err := s.loop.Do(ctx, "refresh", func() { s.loading = true }); err != nil {
		return err
	}
	return s.await(ctx, s.fetch)
}

// fetch runs off the loop. Overlapping fetches are not sequenced: whichever
// completes last decides the displayed list.
func (s *Session) fetch() error {
	records, err := s.gw.List(s.base)
	applyErr := s.loop.Do(s.base, "refresh.done", func() {
		s.loading = false
		if err != nil {
			s.log.Error().Err(err).Str("op", "list").Msg("fetch birthdays failed")
			s.note.Raise(MsgFetchFailed, notify.Error)
			return
		}
		s.records = records
	})
	if err != nil {
		return &Failure{Kind: FetchFailed, Err: err}
	}
	return applyErr
}

// SetField merges one field into the draft.
func (s *Session) SetField(ctx context.Context, name, value string) error {
	var setErr error
	if err := s.loop.Do(ctx, "draft.set", func() { setErr = s.draft.Set(name, value) }); err != nil {
		return err
	}
	return setErr
}

// SetPhotoFromURL overwrites the draft photo with a typed URL. The preview is
// left alone.
func (s *Session) SetPhotoFromURL(ctx context.Context, value string) error {
	return s.loop.Do(ctx, "draft.photo_url", func() { s.draft.Photo = value })
}

// Submit sends the draft to the backend. On success the list is refreshed,
// the draft and preview are cleared and a success notification is raised; a
// failed refresh afterwards replaces that notification. On failure the draft
// is kept so the user can retry.
func (s *Session) Submit(ctx context.Context) error {
	var draft birthday.Draft
	if err := s.loop.Do(ctx, "submit", func() { draft = s.draft }); err != nil {
		return err
	}
	if missing := draft.Missing(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrIncomplete, strings.Join(missing, ", "))
	}

	return s.await(ctx, func() error {
		if err := s.gw.Create(s.base, draft); err != nil {
			s.log.Error().Err(err).Str("op", "create").Str("name", draft.Name).Msg("add birthday failed")
			if doErr := s.loop.Do(s.base, "submit.failed", func() {
				s.note.Raise(MsgAddFailed, notify.Error)
			}); doErr != nil {
				return doErr
			}
			return &Failure{Kind: SubmitFailed, Err: err}
		}

		err := s.loop.Do(s.base, "submit.done", func() {
			s.loading = true
			s.draft = birthday.Draft{}
			s.preview = ""
			s.note.Raise(MsgAdded, notify.Success)
		})
		if err != nil {
			return err
		}
		_ = s.fetch()
		return nil
	})
}

// Delete removes a record on the backend and refreshes. On failure the local
// collection is left exactly as it was.
func (s *Session) Delete(ctx context.Context, id string) error {
	return s.await(ctx, func() error {
		if err := s.gw.Delete(s.base, id); err != nil {
			s.log.Error().Err(err).Str("op", "delete").Str("id", id).Msg("delete birthday failed")
			if doErr := s.loop.Do(s.base, "delete.failed", func() {
				s.note.Raise(MsgDeleteFailed, notify.Error)
			}); doErr != nil {
				return doErr
			}
			return &Failure{Kind: DeleteFailed, Err: err}
		}

		err := s.loop.Do(s.base, "delete.done", func() {
			s.loading = true
			s.note.Raise(MsgDeleted, notify.Success)
		})
		if err != nil {
			return err
		}
		_ = s.fetch()
		return nil
	})
}

// Dismiss hides the current notification.
func (s *Session) Dismiss(ctx context.Context) error {
	return s.loop.Do(ctx, "notify.dismiss", s.note.Dismiss)
}

// await runs fn off the loop and waits for it under ctx. Leaving early does
// not stop fn.
func (s *Session) await(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
