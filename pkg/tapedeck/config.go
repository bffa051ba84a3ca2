package tapedeck

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/playlist"
	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

// CanonicalConfig provides centralized access to configuration fields
type CanonicalConfig struct {
	Library                        []string
	Volume                         float64
	KeepPlaylistOnInvalidSelection bool
	ProbeWorkers                   int
	RemoteListenAddr               string

	SliderMapping       *sliderMap
	ConnectionInfo      ConnectionInfo
	InvertSliders       bool
	NoiseReductionLevel string

	logger   *zap.SugaredLogger
	notifier Notifier
	path     string

	lock               sync.Mutex
	reloadConsumers    []chan bool
	stopWatcherChannel chan struct{}
	watching           bool
	lastReload         time.Time

	userConfig *viper.Viper
}

// ConnectionInfo groups serial port settings
type ConnectionInfo struct {
	COMPort  string
	BaudRate int
}

const (
	DefaultConfigFilepath = "config.yaml"

	configType = "yaml"

	configKeyLibrary          = "library"
	configKeyVolume           = "volume"
	configKeyKeepOnInvalid    = "keep_playlist_on_invalid_selection"
	configKeyProbeWorkers     = "probe_workers"
	configKeyRemoteListenAddr = "remote.listen_addr"
	configKeySliderMapping    = "slider_mapping"
	configKeyInvertSliders    = "invert_sliders"
	configKeyCOMPort          = "com_port"
	configKeyBaudRate         = "baud_rate"
	configKeyNoiseReduction   = "noise_reduction"

	defaultVolume           = 1.0
	defaultRemoteListenAddr = "127.0.0.1:7077"
	defaultBaudRate         = 9600

	// editors tend to write a file several times per save
	minTimeBetweenReloadAttempts = 500 * time.Millisecond
	reloadSettleDelay            = 50 * time.Millisecond
)

var errConfigWatchStopped = errors.New("config watcher stopped")

// NewConfig initializes the configuration manager. An empty path selects config.yaml in the
// working directory.
func NewConfig(logger *zap.SugaredLogger, notifier Notifier, path string) (*CanonicalConfig, error) {
	logger = logger.Named("config")

	if path == "" {
		path = DefaultConfigFilepath
	}

	cc := &CanonicalConfig{
		logger:             logger,
		notifier:           notifier,
		path:               path,
		reloadConsumers:    make([]chan bool, 0),
		stopWatcherChannel: make(chan struct{}),
	}

	cc.userConfig = initializeViper(path, map[string]interface{}{
		configKeyLibrary:          []string{},
		configKeyVolume:           defaultVolume,
		configKeyKeepOnInvalid:    false,
		configKeyProbeWorkers:     0,
		configKeyRemoteListenAddr: defaultRemoteListenAddr,
		configKeySliderMapping:    map[string][]string{"0": {sliderTargetVolume}},
		configKeyInvertSliders:    false,
		configKeyCOMPort:          "",
		configKeyBaudRate:         defaultBaudRate,
		configKeyNoiseReduction:   "default",
	})

	logger.Debugw("Created configuration instance", "path", path)
	return cc, nil
}

func initializeViper(path string, defaults map[string]interface{}) *viper.Viper {
	config := viper.New()
	config.SetConfigFile(path)
	config.SetConfigType(configType)

	for key, value := range defaults {
		config.SetDefault(key, value)
	}

	return config
}

// Path returns the location of the user config file.
func (cc *CanonicalConfig) Path() string {
	return cc.path
}

// Load reads the user configuration. A missing file is not an error: every key has a default.
func (cc *CanonicalConfig) Load() error {
	cc.logger.Debugw("Loading user configuration", "path", cc.path)

	if !util.FileExists(cc.path) {
		cc.logger.Infow("Configuration file not found, using defaults", "path", cc.path)
	} else if err := cc.userConfig.ReadInConfig(); err != nil {
		return cc.handleConfigError(err)
	}

	cc.populateFromVipers()
	return nil
}

// SubscribeToChanges returns a channel that receives a value after each successful reload.
func (cc *CanonicalConfig) SubscribeToChanges() chan bool {
	c := make(chan bool, 1)

	cc.lock.Lock()
	defer cc.lock.Unlock()

	cc.reloadConsumers = append(cc.reloadConsumers, c)
	return c
}

// WatchConfigFileChanges reloads the configuration whenever the file changes. It blocks until
// StopWatchingConfigFile is called.
func (cc *CanonicalConfig) WatchConfigFileChanges() {
	if !util.FileExists(cc.path) {
		cc.logger.Debugw("No configuration file to watch", "path", cc.path)
		return
	}

	cc.lock.Lock()
	cc.watching = true
	cc.lock.Unlock()

	cc.logger.Debugw("Starting to watch user config file for changes", "path", cc.path)

	cc.userConfig.OnConfigChange(func(event fsnotify.Event) {
		if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		if err := cc.onConfigFileChanged(); err != nil && !errors.Is(err, errConfigWatchStopped) {
			cc.logger.Warnw("Failed to reload config file", "error", err)
		}
	})
	cc.userConfig.WatchConfig()

	<-cc.stopWatcherChannel
	cc.logger.Debug("Stopped watching user config file")
}

// StopWatchingConfigFile stops reacting to config file changes.
func (cc *CanonicalConfig) StopWatchingConfigFile() {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	select {
	case <-cc.stopWatcherChannel:
	default:
		close(cc.stopWatcherChannel)
	}
	cc.watching = false
}

func (cc *CanonicalConfig) onConfigFileChanged() error {
	cc.lock.Lock()
	if !cc.watching {
		cc.lock.Unlock()
		return errConfigWatchStopped
	}

	now := time.Now()
	if cc.lastReload.Add(minTimeBetweenReloadAttempts).After(now) {
		cc.lock.Unlock()
		return nil
	}
	cc.lastReload = now
	cc.lock.Unlock()

	// let the editor finish writing
	time.Sleep(reloadSettleDelay)

	cc.logger.Debug("Config file modified, attempting reload")

	if err := cc.userConfig.ReadInConfig(); err != nil {
		return cc.handleConfigError(err)
	}

	cc.populateFromVipers()
	cc.logger.Info("Reloaded config successfully")
	cc.notifier.Notify("Configuration reloaded!", "Your changes have been applied.")

	cc.onConfigReloaded()
	return nil
}

func (cc *CanonicalConfig) onConfigReloaded() {
	cc.lock.Lock()
	defer cc.lock.Unlock()

	for _, consumer := range cc.reloadConsumers {
		select {
		case consumer <- true:
		default:
		}
	}
}

func (cc *CanonicalConfig) handleConfigError(err error) error {
	cc.logger.Warnw("Failed to load configuration", "path", cc.path, "error", err)

	if strings.Contains(err.Error(), "yaml:") {
		cc.notifier.Notify("Invalid configuration format!",
			"Ensure the YAML file is properly formatted.")
	} else {
		cc.notifier.Notify("Error loading configuration!", "Check logs for more details.")
	}

	return fmt.Errorf("read config %s: %w", cc.path, err)
}

func (cc *CanonicalConfig) populateFromVipers() {
	cc.Library = cc.userConfig.GetStringSlice(configKeyLibrary)
	cc.Volume = cc.validateVolume(cc.userConfig.GetFloat64(configKeyVolume))
	cc.KeepPlaylistOnInvalidSelection = cc.userConfig.GetBool(configKeyKeepOnInvalid)
	cc.ProbeWorkers = cc.validateProbeWorkers(cc.userConfig.GetInt(configKeyProbeWorkers))
	cc.RemoteListenAddr = strings.TrimSpace(cc.userConfig.GetString(configKeyRemoteListenAddr))

	cc.SliderMapping = sliderMapFromConfig(cc.logger, cc.userConfig.GetStringMapStringSlice(configKeySliderMapping))
	cc.ConnectionInfo = ConnectionInfo{
		COMPort:  strings.TrimSpace(cc.userConfig.GetString(configKeyCOMPort)),
		BaudRate: cc.validateBaudRate(cc.userConfig.GetInt(configKeyBaudRate)),
	}
	cc.InvertSliders = cc.userConfig.GetBool(configKeyInvertSliders)
	cc.NoiseReductionLevel = cc.userConfig.GetString(configKeyNoiseReduction)

	cc.logger.Debugw("Configuration populated",
		"library", cc.Library,
		"volume", cc.Volume,
		"keepPlaylistOnInvalidSelection", cc.KeepPlaylistOnInvalidSelection,
		"probeWorkers", cc.ProbeWorkers,
		"remoteListenAddr", cc.RemoteListenAddr,
		"sliderMapping", cc.SliderMapping,
		"comPort", cc.ConnectionInfo.COMPort,
		"baudRate", cc.ConnectionInfo.BaudRate,
		"invertSliders", cc.InvertSliders,
		"noiseReduction", cc.NoiseReductionLevel)
}

func (cc *CanonicalConfig) validateVolume(volume float64) float64 {
	clamped := playlist.ClampVolume(volume)
	if clamped != volume {
		cc.logger.Warnw("Volume out of range, clamping", "invalidValue", volume, "clampedValue", clamped)
	}
	return clamped
}

func (cc *CanonicalConfig) validateProbeWorkers(workers int) int {
	if workers >= 0 {
		return workers
	}
	cc.logger.Warnw("Invalid probe worker count, using one per CPU", "invalidValue", workers)
	return 0
}

// validateBaudRate checks for a valid baud rate, returning a default if invalid
func (cc *CanonicalConfig) validateBaudRate(baudRate int) int {
	if baudRate > 0 {
		return baudRate
	}
	cc.logger.Warnw("Invalid baud rate specified, using default", "invalidValue", baudRate, "defaultValue", defaultBaudRate)
	return defaultBaudRate
}
