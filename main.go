package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gordonklaus/portaudio"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bosley/dictate/audio"
	"github.com/bosley/dictate/backend"
	"github.com/bosley/dictate/capture"
	"github.com/bosley/dictate/config"
	"github.com/bosley/dictate/controller"
	"github.com/bosley/dictate/history"
	"github.com/bosley/dictate/hotkey"
	"github.com/bosley/dictate/present"
	dictaserv "github.com/bosley/dictate/server"
	"github.com/bosley/dictate/worker"
)

func main() {
	configPath := flag.String("config", "", "Path to settings file (default: user config dir)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	playFile := flag.String("play", "", "Play a recorded clip (16 kHz mono WAV) and exit")
	transcribeFile := flag.String("file", "", "Transcribe a 16 kHz mono WAV file and exit")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", -1, "Audio input device ID to use (default: settings, then system default)")
	listenAddr := flag.String("listen", "", "Serve the status API on this address (host:port)")
	certFile := flag.String("cert", "", "TLS certificate for the status API")
	keyFile := flag.String("key", "", "TLS key for the status API")
	withTray := flag.Bool("tray", false, "Show a system tray icon")
	flag.Parse()

	if err := config.LoadEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}

	path := *configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		path = p
	}

	settings, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load settings from %s: %v\n", path, err)
		os.Exit(1)
	}
	if *debug {
		settings.LogLevel = "debug"
	}
	if *deviceID >= 0 {
		settings.Device = *deviceID
	}
	if *listenAddr != "" {
		settings.ListenAddr = *listenAddr
	}

	level := new(slog.LevelVar)
	level.Set(settings.SlogLevel())
	closeLog := setupLogging(settings.LogFile, level)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *playFile != "" {
		if err := audio.Play(ctx, *playFile); err != nil {
			slog.Error("Failed to play audio file", "error", err)
			os.Exit(1)
		}
		return
	}

	if *listDevices {
		devices, err := capture.ListDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for _, device := range devices {
			fmt.Printf("[%d] %s\n", device.ID, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	live := config.NewLive(path, settings)
	live.OnChange(func(s config.Settings) {
		if !*debug {
			level.Set(s.SlogLevel())
		}
	})

	store := history.New(settings.HistoryFile, nil)
	transcriber := &settingsBackend{
		live: live,
		http: backend.NewHTTPClient(settings.RequestTimeout.Std(), settings.EnableHTTP2, !settings.VerifySSL),
	}

	if *transcribeFile != "" {
		if err := runFile(ctx, transcriber, store, *transcribeFile, settings.RequestTimeout.Std()); err != nil {
			slog.Error("Failed to transcribe file", "error", err, "file", *transcribeFile)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, stop, live, store, transcriber, *withTray, *certFile, *keyFile); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
	slog.Debug("Program exiting")
}

func run(ctx context.Context, stop context.CancelFunc, live *config.Live, store *history.Store, transcriber worker.Transcriber, withTray bool, certFile, keyFile string) error {
	settings := live.Get()

	audio.CleanupTemp(settings.TempDir)

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	interp := hotkey.NewInterpreter()
	desktop := present.NewDesktop(
		func() bool { return live.Get().Notifications },
		func() bool { return live.Get().AutoPaste },
	)
	fanout := present.NewFanout(desktop)

	recorder := capture.New(
		capture.PortAudio{DeviceID: settings.Device},
		capture.Config{
			SampleRate:      capture.SampleRate,
			FramesPerBuffer: settings.FramesPerBuffer,
			QueueDepth:      capture.DefaultQueueDepth,
		},
		nil,
	)

	ctrl := controller.New(recorder, nil, fanout)
	w := worker.New(transcriber, store, fanout, ctrl.Finished,
		worker.WithTempDir(settings.TempDir),
		worker.WithTimeout(settings.RequestTimeout.Std()))
	ctrl.SetSubmitter(w)

	post := func(ctx context.Context, intent hotkey.Intent) {
		if err := ctrl.Post(ctx, intent); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, controller.ErrStopped) {
			slog.Warn("Failed to post intent", "error", err, "intent", intent)
		}
	}
	listener := hotkey.NewListener(interp, post, nil)

	var srv *dictaserv.Server
	if settings.ListenAddr != "" {
		srv = dictaserv.New(dictaserv.Config{
			Addr:     settings.ListenAddr,
			CertFile: certFile,
			KeyFile:  keyFile,
			Token:    os.Getenv("DICTATE_TOKEN"),
		}, store, ctrl.Mode)
		fanout.Add(srv)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return ctrl.Run(gctx) })

	w.Start(gctx)
	g.Go(func() error {
		w.Wait()
		return nil
	})

	g.Go(func() error { return listener.Run(gctx) })

	g.Go(func() error {
		if err := live.Watch(gctx); err != nil {
			slog.Error("Settings watcher stopped", "error", err)
		}
		return nil
	})

	if srv != nil {
		g.Go(func() error { return srv.Start(gctx) })
	}

	slog.Info("Ready",
		"backend", settings.Backend,
		"model", settings.Model,
		"history", store.Path(),
		"device", settings.Device)

	if withTray {
		tray := present.NewTray(func() { post(gctx, hotkey.MenuToggle) }, stop)
		fanout.Add(tray)
		go func() {
			<-gctx.Done()
			tray.Quit()
		}()
		tray.Run()
		stop()
	}

	return g.Wait()
}

func runFile(ctx context.Context, transcriber worker.Transcriber, store *history.Store, path string, timeout time.Duration) error {
	pcm, err := audio.ReadWav(path)
	if err != nil {
		return err
	}
	slog.Info("Transcribing file", "file", path, "durationSeconds", audio.Duration(pcm))

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := transcriber.Transcribe(ctx, path)
	if err != nil {
		return err
	}

	fmt.Println(text)

	if err := store.Append(history.NewEntry(time.Now(), text)); err != nil {
		slog.Error("Failed to append history", "error", err)
	}
	return nil
}

// settingsBackend picks the backend from the live settings on every call, so
// key, model and endpoint edits apply without a restart.
type settingsBackend struct {
	live *config.Live
	http *http.Client
}

func (b *settingsBackend) Transcribe(ctx context.Context, wavPath string) (string, error) {
	s := b.live.Get()
	key := backend.KeyFunc(func() string { return b.live.Get().ResolveAPIKey() })

	switch s.Backend {
	case config.BackendHTTP:
		return backend.NewHTTP(backend.HTTPConfig{
			Endpoint:   s.Endpoint,
			Key:        key,
			Model:      s.Model,
			Language:   s.Language,
			Prompt:     s.Prompt,
			TextPath:   s.TextPath,
			HTTPClient: b.http,
		}).Transcribe(ctx, wavPath)
	default:
		return backend.NewOpenAI(backend.OpenAIConfig{
			Key:        key,
			Model:      s.Model,
			Language:   s.Language,
			Prompt:     s.Prompt,
			BaseURL:    s.BaseURL,
			HTTPClient: b.http,
		}).Transcribe(ctx, wavPath)
	}
}

func setupLogging(logFile string, level *slog.LevelVar) func() {
	var out io.Writer = os.Stdout
	closer := func() {}

	if logFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closer = func() { rotator.Close() }
	}

	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return closer
}
