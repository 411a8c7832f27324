// Package httpapi exposes the recorder over a local HTTP API with a
// websocket event stream.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"meetcap/internal/domain"
	"meetcap/internal/meeting"
	"meetcap/internal/usecase"
)

const shutdownTimeout = 5 * time.Second

// SourceCatalog lists capturable audio sources.
type SourceCatalog interface {
	Enumerate(ctx context.Context) ([]domain.AudioSource, error)
	Lookup(pid int) (domain.AudioSource, bool)
}

// Recorder is the recording state machine.
type Recorder interface {
	StartRecording(ctx context.Context, cfg domain.RecordingConfiguration) (domain.RecordedFiles, error)
	StopRecording(ctx context.Context) (*usecase.StopResult, error)
	Status() domain.RecordingStatus
	Levels() domain.AudioLevels
}

// MeetingState reports the detection engine state.
type MeetingState interface {
	State() meeting.State
}

// Options configures the API server.
type Options struct {
	Addr             string
	OutputDir        string
	EnableMicrophone bool
	// AllowOrigins restricts CORS; empty allows any origin.
	AllowOrigins []string
	Logger       *log.Logger
}

type startRequest struct {
	PID              *int  `json:"pid"`
	EnableMicrophone *bool `json:"enableMicrophone"`
}

// Server is the HTTP control API.
type Server struct {
	catalog  SourceCatalog
	recorder Recorder
	meetings MeetingState
	hub      *Hub
	opts     Options
	router   *gin.Engine
}

func NewServer(catalog SourceCatalog, recorder Recorder, meetings MeetingState, hub *Hub, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if hub == nil {
		hub = NewHub(opts.Logger)
	}
	s := &Server{
		catalog:  catalog,
		recorder: recorder,
		meetings: meetings,
		hub:      hub,
		opts:     opts,
	}
	s.router = s.routes()
	return s
}

// Handler returns the gin router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.opts.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = s.opts.AllowOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type"}
	r.Use(cors.New(corsConfig))

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "meetcap"})
		})
		api.GET("/sources", s.listSources)
		api.GET("/status", s.status)
		api.GET("/meeting", s.meeting)
		api.POST("/recordings", s.startRecording)
		api.DELETE("/recordings/current", s.stopRecording)
		api.GET("/ws/events", s.hub.ServeWS)
	}
	return r
}

func (s *Server) listSources(c *gin.Context) {
	sources, err := s.catalog.Enumerate(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sources": append([]domain.AudioSource{domain.SystemWideSource()}, sources...),
		"count":   len(sources),
	})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": s.recorder.Status(),
		"levels": s.recorder.Levels(),
	})
}

func (s *Server) meeting(c *gin.Context) {
	if s.meetings == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "meeting detection is not running"})
		return
	}
	c.JSON(http.StatusOK, s.meetings.State())
}

func (s *Server) startRecording(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	target := domain.SystemWideSource()
	if req.PID != nil && *req.PID != domain.SystemWidePID {
		source, ok := s.lookup(c.Request.Context(), *req.PID)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no audio source for that pid"})
			return
		}
		target = source
	}
	enableMic := s.opts.EnableMicrophone
	if req.EnableMicrophone != nil {
		enableMic = *req.EnableMicrophone
	}

	cfg := usecase.NewRecordingConfiguration(target, enableMic, s.opts.OutputDir)
	files, err := s.recorder.StartRecording(c.Request.Context(), cfg)
	if err != nil {
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": cfg.SessionID, "files": files})
}

// lookup refreshes the catalog once when the pid is not in the last snapshot.
func (s *Server) lookup(ctx context.Context, pid int) (domain.AudioSource, bool) {
	if source, ok := s.catalog.Lookup(pid); ok {
		return source, true
	}
	if _, err := s.catalog.Enumerate(ctx); err != nil {
		s.opts.Logger.Printf("httpapi: refresh sources: %v", err)
		return domain.AudioSource{}, false
	}
	return s.catalog.Lookup(pid)
}

func (s *Server) stopRecording(c *gin.Context) {
	result, err := s.recorder.StopRecording(c.Request.Context())
	if result == nil && err == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not recording"})
		return
	}
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"result": result, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": result})
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrAlreadyInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMicrophonePermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrUnsupportedTarget):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Serve runs the hub and the HTTP server until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	hubCtx, cancelHub := context.WithCancel(ctx)
	defer cancelHub()
	go s.hub.Run(hubCtx)

	srv := &http.Server{Addr: s.opts.Addr, Handler: s.router}
	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Printf("httpapi: listening on %s", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
