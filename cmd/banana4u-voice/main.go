package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/yok-tottii/banana4u-voice/internal/api"
	"github.com/yok-tottii/banana4u-voice/internal/assistant"
	"github.com/yok-tottii/banana4u-voice/internal/audio"
	"github.com/yok-tottii/banana4u-voice/internal/clipboard"
	"github.com/yok-tottii/banana4u-voice/internal/config"
	"github.com/yok-tottii/banana4u-voice/internal/conversation"
	"github.com/yok-tottii/banana4u-voice/internal/events"
	"github.com/yok-tottii/banana4u-voice/internal/hotkey"
	"github.com/yok-tottii/banana4u-voice/internal/i18n"
	"github.com/yok-tottii/banana4u-voice/internal/logger"
	"github.com/yok-tottii/banana4u-voice/internal/metrics"
	"github.com/yok-tottii/banana4u-voice/internal/notification"
	"github.com/yok-tottii/banana4u-voice/internal/permissions"
	"github.com/yok-tottii/banana4u-voice/internal/playback"
	"github.com/yok-tottii/banana4u-voice/internal/recognition"
	"github.com/yok-tottii/banana4u-voice/internal/recording"
	"github.com/yok-tottii/banana4u-voice/internal/server"
	"github.com/yok-tottii/banana4u-voice/internal/tray"
	"github.com/yok-tottii/banana4u-voice/internal/voice"
)

const version = "0.1.0"

// App holds all application state
type App struct {
	logger     *logger.Logger
	log        zerolog.Logger
	config     *config.Config
	configPath string
	translator *i18n.Translator

	driver     audio.Driver
	player     *playback.Player
	loop       *conversation.Controller
	ptt        *recording.Manager
	core       *voice.Core
	clipboard  *clipboard.Manager
	notifier   *notification.NotificationManager
	trayMgr    *tray.Manager
	httpServer *server.Server
	apiHandler *api.Handler
	perms      *permissions.PermissionChecker

	pttHotkey  *hotkey.Manager
	convHotkey *hotkey.Manager
	hotkeyMu   sync.Mutex

	ctx      context.Context
	cancel   context.CancelFunc
	quitOnce sync.Once

	headless   bool
	micGranted bool
	accGranted bool
}

// options are the command line flags.
type options struct {
	configPath string
	port       int
	logLevel   string
	console    bool
	headless   bool
	envFile    string
}

func init() {
	// macOS requires hotkey and tray calls on the main thread
	runtime.LockOSThread()
}

func parseFlags(args []string) (options, error) {
	var o options
	flags := pflag.NewFlagSet("banana4u-voice", pflag.ContinueOnError)
	flags.StringVarP(&o.configPath, "config", "c", config.GetConfigPath(), "settings file")
	flags.IntVarP(&o.port, "port", "p", 0, "settings server port (0 uses the settings file)")
	flags.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides the settings file)")
	flags.BoolVar(&o.console, "console", false, "also log to stderr")
	flags.BoolVar(&o.headless, "headless", false, "run without the menu bar icon")
	flags.StringVar(&o.envFile, "env-file", ".env", "file with API keys to load into the environment")
	if err := flags.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", opts.envFile, err)
	}

	app, err := newApp(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "banana4u-voice: %v\n", err)
		os.Exit(1)
	}
	defer app.logger.Close()

	if opts.headless {
		app.onReady()
		<-app.ctx.Done()
		return
	}

	app.log.Info().Msg("starting menu bar")
	// Blocks until Quit.
	app.trayMgr.Run()
}

func newApp(opts options) (*App, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.port > 0 {
		cfg.ServerPort = opts.port
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings in %s: %w", opts.configPath, err)
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logConfig := logger.DefaultConfig()
	logConfig.Level = level
	logConfig.Console = opts.console
	lg, err := logger.New(logConfig)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &App{
		logger:     lg,
		log:        lg.Component("app"),
		config:     cfg,
		configPath: opts.configPath,
		translator: i18n.NewDefault(i18n.Resolve(cfg.UILanguage)),
		perms:      permissions.NewPermissionChecker(),
		ctx:        ctx,
		cancel:     cancel,
		headless:   opts.headless,
	}
	lg.Info("Banana4U Voice v%s starting", version)
	lg.Info("settings: %s", opts.configPath)

	if err := a.buildVoice(); err != nil {
		cancel()
		lg.Close()
		return nil, err
	}

	a.clipboard = clipboard.NewManager(clipboard.Config{
		RestoreTimeout: clipboard.DefaultConfig().RestoreTimeout,
		SplitSize:      cfg.PasteSplitSize,
		SplitInterval:  clipboard.DefaultConfig().SplitInterval,
	}, nil)
	a.notifier = notification.NewNotificationManager(a.translator.Translate("app.name"), a.translator, lg.Component("notification"))

	serverConfig := server.DefaultConfig()
	serverConfig.Port = cfg.ServerPort
	a.httpServer = server.New(serverConfig, lg.Zerolog())
	a.apiHandler.RegisterRoutes(a.httpServer.GetMux())

	a.pttHotkey = hotkey.New("push-to-talk", lg.Zerolog())
	a.convHotkey = hotkey.New("conversation", lg.Zerolog())

	a.trayMgr = tray.NewManager(tray.Config{
		Translator:           a.translator,
		PushToTalkHotkey:     a.hotkeyDisplay(cfg.Hotkey),
		OnReady:              a.onReady,
		OnToggleConversation: a.handleToggleConversation,
		OnSettings:           a.handleOpenSettings,
		OnDeviceChange:       a.handleDeviceChange,
		OnQuit:               a.handleQuit,
	}, lg.Zerolog())

	return a, nil
}

// buildVoice creates the capture, recognition, assistant and playback stack.
func (a *App) buildVoice() error {
	cfg := a.config

	pa, err := audio.NewPortAudioDriver()
	if err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	a.driver = permissions.GuardDriver(pa, a.perms)

	rc, err := recognitionConfig(cfg)
	if err != nil {
		return err
	}
	stt, err := recognition.New(a.ctx, rc)
	if err != nil {
		return fmt.Errorf("failed to initialize speech-to-text: %w", err)
	}

	responder, err := assistant.New(a.ctx, assistantConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to initialize assistant: %w", err)
	}

	a.player = playback.NewPlayer(
		playback.NewEspeakSynthesizer(cfg.TTS.Command, cfg.TTS.Voice, cfg.TTS.Speed),
		playback.WithVolume(cfg.TTS.Volume),
		playback.WithLogger(a.logger.Component("playback")),
	)

	bus := events.NewBus()
	m := metrics.New("banana4u")

	a.loop, err = conversation.New(conversationConfig(cfg), conversation.Dependencies{
		Driver:    a.driver,
		STT:       stt,
		Responder: responder,
		Playback:  a.player,
		Bus:       bus,
		Metrics:   m,
		Logger:    a.logger.Component("conversation"),
	})
	if err != nil {
		return err
	}
	a.ptt = recording.New(a.driver, stt, bus, m, a.logger.Component("recording"), recordingConfig(cfg))
	a.core = voice.New(a.ptt, a.loop, bus, a.logger.Zerolog())

	a.apiHandler = api.New(api.Options{
		Config:            cfg,
		ConfigPath:        a.configPath,
		Voice:             a.core,
		Driver:            a.driver,
		Permissions:       a.perms,
		Metrics:           m.Handler(),
		OnSettingsChanged: a.applySettings,
	}, a.logger.Zerolog())
	return nil
}

// checkPermissions logs each missing permission and, outside headless
// mode, opens the matching system settings pane.
func (a *App) checkPermissions() {
	mic := a.perms.CheckMicrophonePermission()
	acc := a.perms.CheckAccessibilityPermission()
	a.micGranted = mic == permissions.PermissionAuthorized
	a.accGranted = acc == permissions.PermissionAuthorized

	if !a.micGranted {
		a.log.Warn().Str("status", permissions.GetPermissionStatusMessage(mic)).
			Msg("microphone permission not granted; recording will fail until it is allowed")
		if mic.Refused() && !a.headless {
			if err := a.perms.RequestMicrophonePermission(); err != nil {
				a.log.Debug().Err(err).Msg("open microphone settings")
			}
		}
	}
	if !a.accGranted {
		a.log.Warn().Str("status", permissions.GetPermissionStatusMessage(acc)).
			Msg("accessibility permission not granted; hotkeys and paste are disabled")
		if acc.Refused() && !a.headless {
			if err := a.perms.RequestAccessibilityPermission(); err != nil {
				a.log.Debug().Err(err).Msg("open accessibility settings")
			}
		}
	}
}

// onReady finishes startup once the menu bar (or headless mode) is up.
func (a *App) onReady() {
	if !a.perms.AreAllPermissionsGranted() {
		a.checkPermissions()
	} else {
		a.micGranted, a.accGranted = true, true
	}

	feed, _ := a.core.Subscribe(0)
	go a.notifier.Run(a.ctx, feed)
	trayFeed, _ := a.core.Subscribe(0)
	go a.trayMgr.Follow(a.ctx, trayFeed)
	a.refreshDeviceMenu()

	if a.accGranted {
		if err := a.registerHotkeys(a.config.Clone()); err != nil {
			a.log.Error().Err(err).Msg("hotkey registration failed")
		}
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error().Err(err).Msg("settings server failed to start")
	}

	if err := config.Watch(a.configPath, a.onConfigFileChanged); err != nil {
		a.log.Debug().Err(err).Msg("settings file not watched")
	}

	go a.waitForSignal()

	fmt.Println("==========================================================")
	fmt.Printf("Banana4U Voice v%s\n", version)
	fmt.Printf("Settings:          %s\n", a.httpServer.URL())
	fmt.Printf("Push-to-talk:      %s\n", a.hotkeyDisplay(a.config.Hotkey))
	fmt.Printf("Conversation mode: %s\n", a.hotkeyDisplay(a.config.ConversationHotkey))
	fmt.Println("Quit with Ctrl+C or from the menu")
	fmt.Println("==========================================================")
}

func (a *App) hotkeyDisplay(h config.HotkeyConfig) string {
	hc, err := hotkey.FromSettings(h, hotkey.PressToHold)
	if err != nil {
		return "-"
	}
	return hotkey.FormatHotkey(hc.Modifiers, hc.Key)
}

// registerHotkeys (re)binds both hotkeys from c and starts their loops.
func (a *App) registerHotkeys(c *config.Config) error {
	a.hotkeyMu.Lock()
	defer a.hotkeyMu.Unlock()

	pttConfig, err := hotkey.FromSettings(c.Hotkey, hotkey.ParseRecordingMode(c.RecordingMode))
	if err != nil {
		return err
	}
	// Conversation mode toggles on each press.
	convConfig, err := hotkey.FromSettings(c.ConversationHotkey, hotkey.PressToHold)
	if err != nil {
		return err
	}
	if hotkey.SameBinding(pttConfig, convConfig) {
		return fmt.Errorf("%w: push-to-talk and conversation hotkeys are identical", hotkey.ErrInvalidHotkey)
	}
	for _, conflict := range hotkey.CheckConflicts(pttConfig.Modifiers, pttConfig.Key) {
		a.log.Warn().Str("conflict", conflict.Name).Msg("push-to-talk hotkey may be taken")
	}

	if err := a.pttHotkey.Close(); err != nil {
		a.log.Warn().Err(err).Msg("push-to-talk hotkey unregister failed")
	}
	if err := a.convHotkey.Close(); err != nil {
		a.log.Warn().Err(err).Msg("conversation hotkey unregister failed")
	}

	if err := a.pttHotkey.Register(pttConfig); err != nil {
		return err
	}
	go a.pushToTalkLoop(a.pttHotkey.Events())

	if err := a.convHotkey.Register(convConfig); err != nil {
		return err
	}
	go a.conversationLoop(a.convHotkey.Events())
	return nil
}

// pushToTalkLoop records while the hotkey is held (or between presses in
// toggle mode) and pastes the transcript.
func (a *App) pushToTalkLoop(in <-chan hotkey.Event) {
	for e := range in {
		switch e.Type {
		case hotkey.Pressed:
			if err := a.core.StartPushToTalk(a.ctx); err != nil {
				a.log.Info().Err(err).Msg("push-to-talk not started")
			}
		case hotkey.Released:
			text, err := a.core.StopPushToTalk(a.ctx)
			if err != nil {
				if !errors.Is(err, recording.ErrNotRecording) {
					a.log.Warn().Err(err).Msg("push-to-talk failed")
				}
				continue
			}
			a.paste(text)
		}
	}
}

// conversationLoop toggles conversational mode on each press.
func (a *App) conversationLoop(in <-chan hotkey.Event) {
	for e := range in {
		if e.Type == hotkey.Pressed {
			a.handleToggleConversation()
		}
	}
}

func (a *App) paste(text string) {
	if text == "" || !a.config.Clone().AutoPaste || !a.accGranted {
		return
	}
	if err := a.clipboard.SafePasteWithSplit(text); err != nil {
		a.log.Error().Err(err).Msg("paste failed")
	}
}

func (a *App) handleToggleConversation() {
	on, err := a.core.ToggleConversationalMode(a.ctx)
	if err != nil {
		a.log.Warn().Err(err).Msg("conversational mode not started")
		return
	}
	a.log.Info().Bool("on", on).Msg("conversational mode toggled")
}

// applySettings pushes saved settings into the running components.
func (a *App) applySettings(c *config.Config) error {
	a.applyTuning(c)
	if !a.accGranted {
		return nil
	}
	return a.registerHotkeys(c)
}

// applyTuning updates everything that can change without rebinding.
func (a *App) applyTuning(c *config.Config) {
	a.loop.SetConfig(conversationConfig(c))
	a.ptt.SetConfig(recordingConfig(c))
	a.player.SetVolume(c.TTS.Volume)
	a.translator.SetLanguage(i18n.Resolve(c.UILanguage))
	if level, err := logger.ParseLevel(c.LogLevel); err == nil {
		a.logger.SetLevel(level)
	}
	a.refreshDeviceMenu()
}

// onConfigFileChanged handles edits made to the settings file by hand.
func (a *App) onConfigFileChanged(c *config.Config, err error) {
	if err != nil {
		a.log.Warn().Err(err).Msg("ignoring invalid settings file change")
		return
	}
	a.log.Info().Msg("settings file changed")
	a.applyTuning(c)
}

func (a *App) refreshDeviceMenu() {
	devices, err := a.driver.ListDevices()
	if err != nil {
		a.log.Warn().Err(err).Msg("device list unavailable")
		return
	}
	current := a.config.Clone().AudioDeviceID
	items := make([]tray.Device, 0, len(devices))
	for _, d := range devices {
		items = append(items, tray.Device{
			ID:         d.ID,
			Name:       d.Name,
			IsDefault:  d.IsDefault,
			IsCurrent:  d.ID == current,
			Denylisted: audio.IsDenylisted(d.Name),
		})
	}
	a.trayMgr.UpdateDeviceMenu(items)
}

func (a *App) handleDeviceChange(deviceID int) {
	if err := a.config.Update(map[string]interface{}{"audio_device_id": float64(deviceID)}); err != nil {
		a.log.Error().Err(err).Msg("device change rejected")
		return
	}
	if err := a.config.Save(a.configPath); err != nil {
		a.log.Error().Err(err).Msg("failed to save settings")
	}
	a.log.Info().Int("device", deviceID).Msg("input device changed")
	a.applyTuning(a.config.Clone())
}

func (a *App) handleOpenSettings() {
	if err := openURL(a.httpServer.URL()); err != nil {
		a.log.Error().Err(err).Msg("failed to open settings page")
	}
}

func openURL(url string) error {
	name := "xdg-open"
	switch runtime.GOOS {
	case "darwin":
		name = "open"
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	}
	return exec.Command(name, url).Start()
}

func (a *App) waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		a.log.Info().Msg("signal received, shutting down")
		a.handleQuit()
		if !a.headless {
			a.trayMgr.Quit()
		}
	case <-a.ctx.Done():
	}
}

// handleQuit releases the microphone, hotkeys and server. Safe to call twice.
func (a *App) handleQuit() {
	a.quitOnce.Do(func() {
		a.core.Close()
		a.player.Stop()
		a.cancel()

		if err := a.pttHotkey.Close(); err != nil {
			a.log.Warn().Err(err).Msg("push-to-talk hotkey unregister failed")
		}
		if err := a.convHotkey.Close(); err != nil {
			a.log.Warn().Err(err).Msg("conversation hotkey unregister failed")
		}
		if err := a.httpServer.Stop(); err != nil {
			a.log.Warn().Err(err).Msg("settings server shutdown failed")
		}
		if err := a.driver.Close(); err != nil {
			a.log.Warn().Err(err).Msg("audio driver close failed")
		}
		a.log.Info().Msg("stopped")
	})
}
