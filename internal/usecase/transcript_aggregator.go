package usecase

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
	"meetcap/internal/transcript"
)

const streamShutdownTimeout = 4 * time.Second

// segmentAggregator accumulates timed final results of one source.
type segmentAggregator struct {
	source transcript.Source

	mu       sync.Mutex
	segments []transcript.Segment
}

func (a *segmentAggregator) Add(event domain.TranscriptEvent) {
	text := strings.TrimSpace(event.Text)
	if text == "" || event.Kind != domain.TranscriptKindFinal {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.segments = append(a.segments, transcript.Segment{
		Text:   text,
		Start:  event.Start,
		End:    event.End,
		Source: a.source,
	})
}

func (a *segmentAggregator) Transcript() transcript.Timestamped {
	a.mu.Lock()
	defer a.mu.Unlock()
	return transcript.New(a.segments...)
}

type sourceStream struct {
	stream     ports.StreamingSession
	sink       *streamSink
	aggregator *segmentAggregator
	eventsDone chan struct{}
}

// transcriptCollector runs one live transcription stream per recorded source.
type transcriptCollector struct {
	events ports.EventSink
	logger *log.Logger

	mu      sync.Mutex
	streams map[transcript.Source]*sourceStream
}

// newTranscriptCollector opens a stream for each source. Sources whose stream
// cannot be opened are recorded without transcription.
func newTranscriptCollector(
	ctx context.Context,
	provider ports.TranscriptionProvider,
	format domain.SampleFormat,
	sources []transcript.Source,
	events ports.EventSink,
	logger *log.Logger,
) *transcriptCollector {
	c := &transcriptCollector{
		events:  events,
		logger:  logger,
		streams: make(map[transcript.Source]*sourceStream, len(sources)),
	}
	cfg := ports.StreamingConfig{
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Encoding:   "linear16",
	}
	for _, source := range sources {
		stream, err := provider.StartStreaming(ctx, cfg)
		if err != nil {
			logger.Printf("transcription: %s stream unavailable: %v", source, err)
			if events != nil {
				events.SessionError(domain.ErrorCodeTranscription, fmt.Sprintf("%s transcription unavailable: %v", source, err))
			}
			continue
		}
		s := &sourceStream{
			stream:     stream,
			sink:       newStreamSink(string(source), stream, events),
			aggregator: &segmentAggregator{source: source},
			eventsDone: make(chan struct{}),
		}
		go consumeTranscriptionEvents(s.stream, s.aggregator, s.eventsDone)
		c.streams[source] = s
	}
	return c
}

// Sink returns the chunk sink feeding a source's stream, or nil.
func (c *transcriptCollector) Sink(source transcript.Source) ports.ChunkSink {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.streams[source]; ok {
		return s.sink
	}
	return nil
}

// Finish closes every stream and merges the collected segments.
func (c *transcriptCollector) Finish() transcript.Timestamped {
	if c == nil {
		return transcript.Timestamped{}
	}
	c.mu.Lock()
	streams := c.streams
	c.streams = nil
	c.mu.Unlock()

	merged := transcript.Timestamped{}
	for _, source := range []transcript.Source{transcript.SourceSystem, transcript.SourceMicrophone} {
		s, ok := streams[source]
		if !ok {
			continue
		}
		_ = s.stream.CloseSend()
		if err := waitForStream(s.stream, streamShutdownTimeout); err != nil {
			c.logger.Printf("transcription: %s stream ended with error: %v", source, err)
			if c.events != nil {
				c.events.SessionError(domain.ErrorCodeTranscription, err.Error())
			}
		}
		<-s.eventsDone
		merged = merged.Merged(s.aggregator.Transcript())
	}
	return merged
}

func consumeTranscriptionEvents(session ports.StreamingSession, aggregator *segmentAggregator, done chan struct{}) {
	defer close(done)
	for event := range session.Events() {
		aggregator.Add(event)
	}
}
