package bootstrap

import (
	"context"
	"fmt"
	"log"

	"meetcap/internal/audio"
	"meetcap/internal/catalog"
	"meetcap/internal/config"
	"meetcap/internal/domain"
	"meetcap/internal/events"
	"meetcap/internal/executor"
	"meetcap/internal/httpapi"
	"meetcap/internal/meeting"
	"meetcap/internal/mqttsink"
	"meetcap/internal/platform/procfs"
	"meetcap/internal/platform/pulse"
	"meetcap/internal/platform/wmctrl"
	"meetcap/internal/ports"
	"meetcap/internal/providers/deepgram"
	"meetcap/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Config     config.Config
	Catalog    *catalog.Catalog
	Engine     *meeting.Engine
	Controller *usecase.RecordingController
	Events     *events.Fanout
	// API is nil unless the HTTP API is enabled.
	API *httpapi.Server

	executor *executor.Serial
	mqtt     *mqttsink.Sink
}

// Build loads configuration and wires all backend dependencies for the
// current runtime. sink may be nil.
func Build(sink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return Assemble(cfg, sink, log.Default())
}

// Assemble wires the runtime graph from an already loaded configuration.
func Assemble(cfg config.Config, sink ports.EventSink, logger *log.Logger) (Services, error) {
	if logger == nil {
		logger = log.Default()
	}

	extraPatterns, err := meeting.LoadPatterns(cfg.Detection.PatternsFile)
	if err != nil {
		return Services{}, err
	}

	fanout := events.NewFanout(sink)

	var mqttSink *mqttsink.Sink
	if cfg.MQTT.Enabled() {
		mqttSink, err = mqttsink.Connect(mqttsink.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Logger:      logger,
		})
		if err != nil {
			return Services{}, err
		}
		fanout.Add(mqttSink)
	}

	format := domain.SampleFormat{
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		BitDepth:   16,
	}
	pactl := pulse.NewClient(cfg.Audio.PactlCommand)
	capture := audio.NewFFMPEGCapture(cfg.Audio.FFmpegCommand)

	sources := catalog.New(
		pulse.NewSubsystem(pactl),
		procfs.NewResolver("/proc", procfs.DefaultDesktopDirs(), logger),
		logger,
	)

	engine := meeting.NewEngine(
		wmctrl.NewProvider(cfg.Detection.WmctrlCommand),
		sources,
		meeting.BuildDetectors(meeting.DefaultApps(), extraPatterns),
		meeting.EngineConfig{
			Interval: cfg.Detection.PollInterval,
			Logger:   logger,
			Sink:     fanout,
		},
	)

	var transcription ports.TranscriptionProvider
	if cfg.Deepgram.Enabled() {
		transcription = deepgram.NewProvider(deepgram.Config{
			APIKey:      cfg.Deepgram.APIKey,
			APIBaseURL:  cfg.Deepgram.APIBaseURL,
			Model:       cfg.Deepgram.Model,
			Language:    cfg.Deepgram.Language,
			SmartFormat: cfg.Deepgram.SmartFormat,
			Diarize:     cfg.Deepgram.Diarize,
		})
	}

	serial := executor.NewSerial()
	sessions := usecase.NewSessionManager(usecase.SessionManagerConfig{
		Taps:        pulse.NewTapFactory(pactl, capture, format),
		NewRecorder: audio.NewTapRecorderFactory(cfg.Audio.ChunkSize, logger),
		Microphone: audio.NewMicrophone(capture, audio.MicrophoneConfig{
			InputFormat: cfg.Audio.MicrophoneInputFormat,
			Device:      cfg.Audio.MicrophoneDevice,
			ChunkSize:   cfg.Audio.ChunkSize,
			Logger:      logger,
		}),
		Permissions:   pulse.NewPermissions(pactl),
		Executor:      serial,
		Transcription: transcription,
		Events:        fanout,
		Logger:        logger,
	})
	controller := usecase.NewRecordingController(sessions, fanout, logger)

	services := Services{
		Config:     cfg,
		Catalog:    sources,
		Engine:     engine,
		Controller: controller,
		Events:     fanout,
		executor:   serial,
		mqtt:       mqttSink,
	}

	if cfg.HTTP.Enabled {
		hub := httpapi.NewHub(logger)
		fanout.Add(hub)
		services.API = httpapi.NewServer(sources, controller, engine, hub, httpapi.Options{
			Addr:             cfg.HTTP.Addr,
			OutputDir:        cfg.Recording.OutputDir,
			EnableMicrophone: cfg.Recording.EnableMicrophone,
			Logger:           logger,
		})
	}

	return services, nil
}

// NewConfiguration builds a recording configuration for target using the
// configured output directory.
func (s Services) NewConfiguration(target domain.AudioSource, enableMicrophone bool) domain.RecordingConfiguration {
	return usecase.NewRecordingConfiguration(target, enableMicrophone, s.Config.Recording.OutputDir)
}

// Close stops detection and any live recording, then releases the executor
// and broker connection.
func (s Services) Close(ctx context.Context) error {
	if s.Engine != nil {
		s.Engine.StopMonitoring()
	}
	var err error
	if s.Controller != nil {
		if stopErr := s.Controller.Close(ctx); stopErr != nil {
			err = fmt.Errorf("failed to stop recording: %w", stopErr)
		}
	}
	if s.executor != nil {
		s.executor.Close()
	}
	if s.mqtt != nil {
		s.mqtt.Close()
	}
	return err
}
