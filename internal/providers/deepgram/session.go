package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"meetcap/internal/domain"
)

const (
	messageKeepAlive   = "KeepAlive"
	messageCloseStream = "CloseStream"
)

var errSendClosed = errors.New("audio stream is already closed")

type controlMessage struct {
	Type string `json:"type"`
}

// liveSession pumps audio out and results in over one websocket. Only
// writeLoop writes to the connection.
type liveSession struct {
	conn      *websocket.Conn
	keepAlive time.Duration

	events     chan domain.TranscriptEvent
	audio      chan []byte
	readerDone chan struct{}
	closing    chan struct{}
	done       chan struct{}
	wg         sync.WaitGroup

	sendMu     sync.RWMutex
	sendClosed bool
	closeSend  sync.Once
	closeConn  sync.Once

	errMu sync.Mutex
	err   error
}

func newLiveSession(conn *websocket.Conn, keepAlive time.Duration) *liveSession {
	s := &liveSession{
		conn:       conn,
		keepAlive:  keepAlive,
		events:     make(chan domain.TranscriptEvent, 64),
		audio:      make(chan []byte, 32),
		readerDone: make(chan struct{}),
		closing:    make(chan struct{}),
		done:       make(chan struct{}),
	}
	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	go func() {
		s.wg.Wait()
		close(s.events)
		close(s.done)
		_ = conn.Close()
	}()
	return s
}

// SendAudio queues a copy of chunk. It blocks while the send queue is full.
func (s *liveSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errSendClosed
	}

	select {
	case s.audio <- append([]byte(nil), chunk...):
		return nil
	case <-s.readerDone:
	case <-s.closing:
	}
	if err := s.firstErr(); err != nil {
		return err
	}
	return errors.New("session closed")
}

// CloseSend ends the audio stream; results keep arriving until Deepgram
// closes the connection.
func (s *liveSession) CloseSend() error {
	s.closeSend.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *liveSession) Events() <-chan domain.TranscriptEvent {
	return s.events
}

func (s *liveSession) Wait() error {
	<-s.done
	return s.firstErr()
}

func (s *liveSession) Close() error {
	s.closeConn.Do(func() {
		close(s.closing)
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.firstErr()
}

func (s *liveSession) firstErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// setErr keeps the first error. Normal websocket closes are not errors.
func (s *liveSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	idle := false

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				if err := s.conn.WriteJSON(controlMessage{Type: messageCloseStream}); err != nil {
					s.setErr(fmt.Errorf("failed to close stream: %w", err))
				}
				return
			}
			if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				s.setErr(fmt.Errorf("failed to send audio: %w", err))
				_ = s.conn.Close()
				return
			}
			idle = false

		case <-ticker.C:
			if idle {
				if err := s.conn.WriteJSON(controlMessage{Type: messageKeepAlive}); err != nil {
					s.setErr(fmt.Errorf("failed to send keepalive: %w", err))
					_ = s.conn.Close()
					return
				}
			}
			idle = true

		case <-s.readerDone:
			return
		}
	}
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readerDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		switch strings.ToLower(response.Type) {
		case "error":
			s.setErr(response.err())
			return
		case "", "results":
			if event, ok := response.event(); ok {
				s.emit(event)
			}
		}
	}
}

// emit blocks on finals until the session is closed; partials are dropped
// when the consumer lags.
func (s *liveSession) emit(event domain.TranscriptEvent) {
	if event.Kind == domain.TranscriptKindPartial {
		select {
		case s.events <- event:
		default:
		}
		return
	}
	select {
	case s.events <- event:
	case <-s.closing:
	}
}

type alternative struct {
	Transcript string `json:"transcript"`
}

type channel struct {
	Alternatives []alternative `json:"alternatives"`
}

type listenResponse struct {
	Type        string  `json:"type"`
	Message     string  `json:"message"`
	Description string  `json:"description"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
	Start       float64 `json:"start"`
	Duration    float64 `json:"duration"`

	Channel channel `json:"channel"`
	Results struct {
		Channels []channel `json:"channels"`
	} `json:"results"`
}

func (r listenResponse) transcript() string {
	if len(r.Channel.Alternatives) > 0 {
		if text := strings.TrimSpace(r.Channel.Alternatives[0].Transcript); text != "" {
			return text
		}
	}
	if len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0 {
		return strings.TrimSpace(r.Results.Channels[0].Alternatives[0].Transcript)
	}
	return ""
}

func (r listenResponse) event() (domain.TranscriptEvent, bool) {
	text := r.transcript()
	if text == "" {
		return domain.TranscriptEvent{}, false
	}
	kind := domain.TranscriptKindPartial
	if r.IsFinal || r.SpeechFinal {
		kind = domain.TranscriptKindFinal
	}
	return domain.TranscriptEvent{
		Kind:          kind,
		Text:          text,
		IsSpeechFinal: r.SpeechFinal,
		Start:         r.Start,
		End:           r.Start + r.Duration,
	}, true
}

func (r listenResponse) err() error {
	for _, message := range []string{r.Description, r.Message} {
		if message = strings.TrimSpace(message); message != "" {
			return fmt.Errorf("deepgram: %s", message)
		}
	}
	return errors.New("deepgram returned an unknown error")
}
