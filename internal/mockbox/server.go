// Package mockbox is an in-process fake of the Box endpoints the SDK core
// talks to: the token endpoints, the events API with its realtime long-poll
// and file content downloads.
package mockbox

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy-dx/gobox/dto"
)

const (
	DefaultLongPollWait = 5 * time.Second
	tokenTTL            = 3600
)

type file struct {
	name    string
	content []byte
}

// Server is safe for concurrent use. Counters are exposed for assertions.
type Server struct {
	*httptest.Server

	clientID     string
	clientSecret string
	longPollWait time.Duration

	mu       sync.Mutex
	tokens   map[string]string // access token -> subject id
	revoked  []string
	events   []dto.Event
	files    map[string]file
	notify   chan struct{}
	requests map[string]int
}

type Option func(*Server)

// WithLongPollWait bounds how long the realtime endpoint holds a poll
// before answering reconnect.
func WithLongPollWait(d time.Duration) Option {
	return func(s *Server) { s.longPollWait = d }
}

// New starts a server accepting clientID and clientSecret on the token
// endpoint. Callers must Close it.
func New(clientID, clientSecret string, opts ...Option) *Server {
	gin.SetMode(gin.TestMode)
	s := &Server{
		clientID:     clientID,
		clientSecret: clientSecret,
		longPollWait: DefaultLongPollWait,
		tokens:       map[string]string{},
		files:        map[string]file{},
		notify:       make(chan struct{}),
		requests:     map[string]int{},
	}
	for _, o := range opts {
		o(s)
	}
	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.count)

	r.POST("/oauth2/token", s.token)
	r.POST("/oauth2/revoke", s.revoke)
	r.GET("/realtime", s.realtime)

	api := r.Group("/2.0", s.requireBearer)
	api.Handle(http.MethodOptions, "/events", s.realtimeServers)
	api.GET("/events", s.listEvents)
	api.GET("/files/:id/content", s.fileContent)
	return r
}

func (s *Server) count(c *gin.Context) {
	key := c.Request.Method + " " + c.Request.URL.Path
	s.mu.Lock()
	s.requests[key]++
	s.mu.Unlock()
	c.Next()
}

func boxError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"type":       "error",
		"status":     status,
		"code":       code,
		"message":    msg,
		"request_id": uuid.NewString(),
	})
}

func (s *Server) token(c *gin.Context) {
	if c.PostForm("client_id") != s.clientID || c.PostForm("client_secret") != s.clientSecret {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_client", "error_description": "The client credentials are invalid"})
		return
	}
	subject := c.PostForm("box_subject_id")
	switch c.PostForm("grant_type") {
	case dto.GrantTypeClientCredentials:
		if subject == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "error_description": "box_subject_id is required"})
			return
		}
	case dto.GrantTypeRefreshToken:
		if c.PostForm("refresh_token") == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_grant"})
			return
		}
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unsupported_grant_type"})
		return
	}

	access := "mock-" + uuid.NewString()
	s.mu.Lock()
	s.tokens[access] = subject
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{
		"access_token":  access,
		"expires_in":    tokenTTL,
		"token_type":    "bearer",
		"refresh_token": "refresh-" + uuid.NewString(),
	})
}

func (s *Server) revoke(c *gin.Context) {
	tok := c.PostForm("token")
	s.mu.Lock()
	if _, ok := s.tokens[tok]; ok {
		delete(s.tokens, tok)
		s.revoked = append(s.revoked, tok)
	}
	s.mu.Unlock()
	c.Status(http.StatusOK)
}

func (s *Server) requireBearer(c *gin.Context) {
	tok := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	s.mu.Lock()
	_, ok := s.tokens[tok]
	s.mu.Unlock()
	if !ok {
		boxError(c, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	c.Next()
}

func (s *Server) realtimeServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"chunk_size": 1,
		"entries": []gin.H{{
			"type":          "realtime_server",
			"url":           s.URL + "/realtime?channel=" + uuid.NewString(),
			"ttl":           "10",
			"max_retries":   "10",
			"retry_timeout": int(s.longPollWait.Seconds()) + 1,
		}},
	})
}

func (s *Server) listEvents(c *gin.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := len(s.events)
	pos := c.DefaultQuery("stream_position", dto.StreamPositionNow)
	if pos == dto.StreamPositionNow {
		c.JSON(http.StatusOK, gin.H{"chunk_size": 0, "next_stream_position": total, "entries": []dto.Event{}})
		return
	}
	start, err := strconv.Atoi(pos)
	if err != nil || start < 0 {
		boxError(c, http.StatusBadRequest, "bad_request", "invalid stream_position")
		return
	}
	if start > total {
		start = total
	}
	end := total
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 && start+limit < end {
		end = start + limit
	}
	entries := append([]dto.Event{}, s.events[start:end]...)
	c.JSON(http.StatusOK, gin.H{"chunk_size": len(entries), "next_stream_position": end, "entries": entries})
}

// realtime answers new_change once an event is added, or reconnect after
// the long-poll wait.
func (s *Server) realtime(c *gin.Context) {
	pos, _ := strconv.Atoi(c.Query("stream_position"))
	s.mu.Lock()
	pending := len(s.events) > pos
	notify := s.notify
	s.mu.Unlock()

	if pending {
		c.JSON(http.StatusOK, dto.RealtimeMessage{Message: dto.RealtimeNewChange})
		return
	}
	select {
	case <-notify:
		c.JSON(http.StatusOK, dto.RealtimeMessage{Message: dto.RealtimeNewChange})
	case <-time.After(s.longPollWait):
		c.JSON(http.StatusOK, dto.RealtimeMessage{Message: dto.RealtimeReconnect})
	case <-c.Request.Context().Done():
	}
}

func (s *Server) fileContent(c *gin.Context) {
	s.mu.Lock()
	f, ok := s.files[c.Param("id")]
	s.mu.Unlock()
	if !ok {
		boxError(c, http.StatusNotFound, "not_found", "Not Found")
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.name))
	c.Data(http.StatusOK, "application/octet-stream", f.content)
}

// AddEvent appends events to the stream and wakes pending long-polls.
func (s *Server) AddEvent(events ...dto.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		if e.EventID == "" {
			e.EventID = uuid.NewString()
		}
		if e.Type == "" {
			e.Type = "event"
		}
		s.events = append(s.events, e)
	}
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *Server) AddFile(id, name string, content []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id] = file{name: name, content: content}
}

// Requests returns how often "METHOD /path" was hit.
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}

func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}
