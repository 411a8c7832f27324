package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"meetcap/internal/domain"
	"meetcap/internal/ports"
)

const (
	defaultChunkSize = 4096
	pcmBitDepth      = 16
	wavFormatPCM     = 1
)

var ErrRecorderStarted = errors.New("recorder already started")

// PCMRecorder pumps an s16le capture session into a WAV file, metering each
// chunk and forwarding it to an optional sink.
type PCMRecorder struct {
	format    domain.SampleFormat
	sink      ports.ChunkSink
	chunkSize int
	logger    *log.Logger
	meter     LevelMeter

	mu       sync.Mutex
	session  ports.AudioSession
	file     *os.File
	encoder  *wav.Encoder
	done     chan struct{}
	pumpErr  error
	stopOnce sync.Once
	stopErr  error
}

func NewPCMRecorder(format domain.SampleFormat, sink ports.ChunkSink, chunkSize int, logger *log.Logger) *PCMRecorder {
	if format.SampleRate <= 0 {
		format.SampleRate = DefaultSampleRate
	}
	if format.Channels <= 0 {
		format.Channels = DefaultChannels
	}
	format.BitDepth = pcmBitDepth
	if chunkSize < 256 {
		chunkSize = defaultChunkSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &PCMRecorder{format: format, sink: sink, chunkSize: chunkSize, logger: logger}
}

func (r *PCMRecorder) Format() domain.SampleFormat {
	return r.format
}

// Start creates the output file and begins pumping session into it.
func (r *PCMRecorder) Start(session ports.AudioSession, outputPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.session != nil {
		return ErrRecorderStarted
	}

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", outputPath, err)
	}

	r.session = session
	r.file = file
	r.encoder = wav.NewEncoder(file, r.format.SampleRate, pcmBitDepth, r.format.Channels, wavFormatPCM)
	r.done = make(chan struct{})
	go r.pump()
	return nil
}

// Stop ends the capture, drains the pump and finalizes the WAV header.
func (r *PCMRecorder) Stop() error {
	r.mu.Lock()
	session, done := r.session, r.done
	r.mu.Unlock()
	if session == nil {
		return nil
	}

	r.stopOnce.Do(func() {
		stopErr := session.Stop()
		<-done

		r.mu.Lock()
		defer r.mu.Unlock()
		r.stopErr = errors.Join(stopErr, r.pumpErr, r.encoder.Close(), r.file.Close())
		r.meter.Set(0)
	})
	return r.stopErr
}

func (r *PCMRecorder) Level() float64 {
	return r.meter.Level()
}

func (r *PCMRecorder) pump() {
	defer close(r.done)

	buf := make([]byte, r.chunkSize)
	var carry []byte
	for {
		n, err := r.session.Read(buf)
		if n > 0 {
			chunk := append(carry, buf[:n]...)
			whole := len(chunk) &^ 1
			carry = append([]byte(nil), chunk[whole:]...)
			if whole > 0 {
				if writeErr := r.write(chunk[:whole]); writeErr != nil {
					r.setPumpErr(writeErr)
					return
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.logger.Printf("audio: capture read failed: %v", err)
				r.setPumpErr(err)
			}
			return
		}
	}
}

func (r *PCMRecorder) write(chunk []byte) error {
	r.meter.Observe(chunk)

	samples := make([]int, len(chunk)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(chunk[2*i:])))
	}
	buffer := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: r.format.Channels, SampleRate: r.format.SampleRate},
		Data:           samples,
		SourceBitDepth: pcmBitDepth,
	}
	if err := r.encoder.Write(buffer); err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}

	if r.sink != nil {
		r.sink.WriteChunk(append([]byte(nil), chunk...))
	}
	return nil
}

func (r *PCMRecorder) setPumpErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pumpErr == nil {
		r.pumpErr = err
	}
}
