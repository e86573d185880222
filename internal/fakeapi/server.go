// Package fakeapi provides an in-memory birthdays backend for tests.
//
// It speaks the same REST contract as the real API (list, create, delete under
// /api/birthdays) and can be told to fail or stall specific operations, so the
// dashboard's failure paths and overlapping-request behaviour can be exercised
// without a network.
package fakeapi

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"birthdayadmin/internal/birthday"
)

// Op names an operation of the birthdays API.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpDelete Op = "delete"
)

// Failure describes how an operation should misbehave.
type Failure struct {
	// Status is returned instead of the normal response when non-zero.
	Status int
	// Delay is slept before handling. The request context still applies.
	Delay time.Duration
	// Hold blocks the handler until the channel is closed.
	Hold <-chan struct{}
	// Times limits how many requests are affected; zero means every request.
	Times int
}

// Server is a fake birthdays backend.
type Server struct {
	mu       sync.Mutex
	records  []birthday.Record
	failures map[Op]*Failure
	calls    map[Op]int
	created  []birthday.Draft

	httpServer *httptest.Server
}

// New starts a fake backend seeded with records.
func New(seed ...birthday.Record) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		records:  append([]birthday.Record(nil), seed...),
		failures: make(map[Op]*Failure),
		calls:    make(map[Op]int),
	}
	s.httpServer = httptest.NewServer(s.Handler())
	return s
}

// URL is the base URL to hand to the gateway client.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

// Handler exposes the routes for embedding in another server.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	api := r.Group("/api/birthdays")
	api.GET("", s.list)
	api.HEAD("", s.head)
	api.POST("", s.create)
	api.DELETE("/:id", s.remove)
	return r
}

// Fail installs a failure for op, replacing any previous one.
func (s *Server) Fail(op Op, f Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = &f
}

// Heal removes every installed failure.
func (s *Server) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = make(map[Op]*Failure)
}

// Records returns a copy of the stored records.
func (s *Server) Records() []birthday.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]birthday.Record(nil), s.records...)
}

// Put inserts a record directly, as if another client had created it.
func (s *Server) Put(r birthday.Record) birthday.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = newID()
	}
	s.records = append(s.records, r)
	return r
}

// Created returns the drafts received by the create endpoint, in order.
func (s *Server) Created() []birthday.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]birthday.Draft(nil), s.created...)
}

// Calls returns how many requests op has received.
func (s *Server) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// intercept applies any failure configured for op. It reports whether the
// request was already answered.
func (s *Server) intercept(c *gin.Context, op Op) bool {
	s.mu.Lock()
	s.calls[op]++
	f := s.failures[op]
	var active Failure
	if f != nil {
		active = *f
		if f.Times > 0 {
			f.Times--
			if f.Times == 0 {
				delete(s.failures, op)
			}
		}
	}
	s.mu.Unlock()

	if f == nil {
		return false
	}
	if active.Hold != nil {
		select {
		case <-active.Hold:
		case <-c.Request.Context().Done():
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return true
		}
	}
	if active.Delay > 0 {
		select {
		case <-time.After(active.Delay):
		case <-c.Request.Context().Done():
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return true
		}
	}
	if active.Status != 0 {
		c.AbortWithStatusJSON(active.Status, gin.H{"message": http.StatusText(active.Status)})
		return true
	}
	return false
}

func (s *Server) list(c *gin.Context) {
	if s.intercept(c, OpList) {
		return
	}
	c.JSON(http.StatusOK, s.Records())
}

func (s *Server) head(c *gin.Context) {
	c.Status(http.StatusOK)
}

func (s *Server) create(c *gin.Context) {
	if s.intercept(c, OpCreate) {
		return
	}
	var d birthday.Draft
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	rec := birthday.Record{
		ID:               newID(),
		Name:             d.Name,
		Class:            d.Class,
		Section:          d.Section,
		HallTicketNumber: d.HallTicketNumber,
		Photo:            d.Photo,
		BirthDate:        d.BirthDate,
	}
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.created = append(s.created, d)
	s.mu.Unlock()
	c.JSON(http.StatusCreated, rec)
}

func (s *Server) remove(c *gin.Context) {
	if s.intercept(c, OpDelete) {
		return
	}
	id := c.Param("id")
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.records {
		if r.ID == id {
			s.records = append(s.records[:i], s.records[i+1:]...)
			c.JSON(http.StatusOK, gin.H{"message": "Birthday deleted"})
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"message": "Birthday not found"})
}

// newID mimics the backend's 24 hex character identifiers.
func newID() string {
	u := uuid.New()
	const hex = "0123456789abcdef"
	out := make([]byte, 24)
	for i := 0; i < 12; i++ {
		out[i*2] = hex[u[i]>>4]
		out[i*2+1] = hex[u[i]&0x0f]
	}
	return string(out)
}
