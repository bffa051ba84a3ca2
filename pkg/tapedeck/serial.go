package tapedeck

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

// SerialIO reads slider positions from a hardware knob board over a serial port
type SerialIO struct {
	config *CanonicalConfig
	logger *zap.SugaredLogger

	lock        sync.Mutex
	connected   bool
	stopping    bool
	connOptions serial.OpenOptions
	conn        io.ReadWriteCloser

	lastKnownNumSliders        int
	currentSliderPercentValues []float32

	sliderMoveConsumers []chan SliderMoveEvent
}

// SliderMoveEvent represents a single slider movement
type SliderMoveEvent struct {
	SliderID     int
	PercentValue float32
}

const (
	maxSliderValue      = 1023
	sliderEventBuffer   = 16
	reconnectStopDelay  = 50 * time.Millisecond
	serialDataBits      = 8
	serialStopBits      = 1
	linuxMinimumReadLen = 1
)

var (
	expectedLinePattern = regexp.MustCompile(`^\d{1,4}(\|\d{1,4})*\r\n$`)

	errAlreadyConnected = errors.New("serial: connection already active")
	errNoCOMPort        = errors.New("serial: no port configured")
)

// NewSerialIO creates a new SerialIO instance
func NewSerialIO(config *CanonicalConfig, logger *zap.SugaredLogger) (*SerialIO, error) {
	logger = logger.Named("serial")

	sio := &SerialIO{
		config:              config,
		logger:              logger,
		sliderMoveConsumers: []chan SliderMoveEvent{},
	}

	logger.Debug("Created SerialIO instance")
	sio.setupOnConfigReload()

	return sio, nil
}

// Start attempts to establish a serial connection
func (sio *SerialIO) Start() error {
	sio.lock.Lock()
	defer sio.lock.Unlock()

	if sio.connected {
		sio.logger.Warn("Connection already active, cannot start a new one")
		return errAlreadyConnected
	}

	if sio.config.ConnectionInfo.COMPort == "" {
		return errNoCOMPort
	}

	minimumReadSize := 0
	if util.Linux() {
		minimumReadSize = linuxMinimumReadLen
	}

	sio.connOptions = serial.OpenOptions{
		PortName:        sio.config.ConnectionInfo.COMPort,
		BaudRate:        uint(sio.config.ConnectionInfo.BaudRate),
		DataBits:        serialDataBits,
		StopBits:        serialStopBits,
		MinimumReadSize: uint(minimumReadSize),
	}

	sio.logger.Debugw("Opening serial connection",
		"comPort", sio.connOptions.PortName,
		"baudRate", sio.connOptions.BaudRate,
		"minReadSize", minimumReadSize)

	conn, err := serial.Open(sio.connOptions)
	if err != nil {
		sio.logger.Warnw("Failed to open serial connection", "error", err)
		return fmt.Errorf("open serial connection: %w", err)
	}

	sio.conn = conn
	sio.connected = true
	sio.stopping = false
	sio.logger.Infow("Serial connection established", "port", sio.connOptions.PortName)

	go sio.readLoop(conn)

	return nil
}

// Stop closes the serial connection if active. The read loop exits on the resulting read error.
func (sio *SerialIO) Stop() {
	sio.lock.Lock()
	defer sio.lock.Unlock()

	if !sio.connected {
		sio.logger.Debug("No active connection to stop")
		return
	}

	sio.logger.Debug("Closing serial connection")
	sio.stopping = true
	sio.closeConnectionLocked()
}

// SubscribeToSliderMoveEvents returns a channel receiving every significant slider move
func (sio *SerialIO) SubscribeToSliderMoveEvents() chan SliderMoveEvent {
	ch := make(chan SliderMoveEvent, sliderEventBuffer)
	sio.sliderMoveConsumers = append(sio.sliderMoveConsumers, ch)
	return ch
}

// setupOnConfigReload reconnects when the port settings change
func (sio *SerialIO) setupOnConfigReload() {
	configReloadedChannel := sio.config.SubscribeToChanges()

	go func() {
		for range configReloadedChannel {
			sio.lock.Lock()
			sio.lastKnownNumSliders = 0
			reconnect := sio.needsReconnectLocked()
			connected := sio.connected
			sio.lock.Unlock()

			if !reconnect || (!connected && sio.config.ConnectionInfo.COMPort == "") {
				continue
			}

			sio.logger.Info("Config change detected, reconnecting")
			if connected {
				sio.Stop()
				time.Sleep(reconnectStopDelay)
			}

			if sio.config.ConnectionInfo.COMPort == "" {
				sio.logger.Info("Serial port unset, knob disabled")
				continue
			}

			if err := sio.Start(); err != nil {
				sio.logger.Warnw("Failed to reconnect", "error", err)
			} else {
				sio.logger.Debug("Reconnection successful")
			}
		}
	}()
}

func (sio *SerialIO) readLoop(conn io.ReadWriteCloser) {
	reader := bufio.NewReader(conn)

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			sio.lock.Lock()
			if !sio.stopping {
				sio.logger.Warnw("Failed to read from serial", "error", err)
			}
			if sio.conn == conn {
				sio.closeConnectionLocked()
			}
			sio.lock.Unlock()
			return
		}

		sio.processLine(line)
	}
}

// processLine parses one raw line of slider data, including its CRLF terminator
func (sio *SerialIO) processLine(line string) {
	if !expectedLinePattern.MatchString(line) {
		return
	}

	values := strings.Split(strings.TrimSuffix(line, "\r\n"), "|")
	numSliders := len(values)

	sio.lock.Lock()
	if numSliders != sio.lastKnownNumSliders {
		sio.logger.Infow("Slider count updated", "count", numSliders)
		sio.lastKnownNumSliders = numSliders
		sio.currentSliderPercentValues = make([]float32, numSliders)
		for i := range sio.currentSliderPercentValues {
			sio.currentSliderPercentValues[i] = -1.0
		}
	}

	var events []SliderMoveEvent
	for i, val := range values {
		rawValue, err := strconv.Atoi(val)
		if err != nil || rawValue > maxSliderValue {
			sio.logger.Debugw("Invalid slider value", "value", val, "line", line)
			sio.lock.Unlock()
			return
		}

		scaledValue := util.NormalizeScalar(float32(rawValue) / maxSliderValue)
		if sio.config.InvertSliders {
			scaledValue = 1 - scaledValue
		}

		if util.SignificantlyDifferent(sio.currentSliderPercentValues[i], scaledValue, sio.config.NoiseReductionLevel) {
			sio.currentSliderPercentValues[i] = scaledValue
			events = append(events, SliderMoveEvent{SliderID: i, PercentValue: scaledValue})
		}
	}
	sio.lock.Unlock()

	for _, event := range events {
		for _, ch := range sio.sliderMoveConsumers {
			ch <- event
		}
	}
}

func (sio *SerialIO) closeConnectionLocked() {
	if sio.conn != nil {
		if err := sio.conn.Close(); err != nil {
			sio.logger.Warnw("Error closing serial connection", "error", err)
		} else {
			sio.logger.Debug("Serial connection closed")
		}
	}
	sio.conn = nil
	sio.connected = false
}

func (sio *SerialIO) needsReconnectLocked() bool {
	return sio.config.ConnectionInfo.COMPort != sio.connOptions.PortName ||
		uint(sio.config.ConnectionInfo.BaudRate) != sio.connOptions.BaudRate
}
