package tapedeck

import (
	"go.uber.org/zap"
)

// knobTarget is the part of the session a slider can move.
type knobTarget interface {
	SetVolume(v float64)
	Seek(p float64) bool
}

// controlMap routes slider moves to the session according to the slider mapping.
type controlMap struct {
	logger *zap.SugaredLogger
	config *CanonicalConfig
	target knobTarget
}

func newControlMap(logger *zap.SugaredLogger, config *CanonicalConfig, target knobTarget) *controlMap {
	logger = logger.Named("controls")

	m := &controlMap{
		logger: logger,
		config: config,
		target: target,
	}

	config.SliderMapping.iterate(func(slider int, targets []string) {
		logger.Debugw("Slider mapped", "slider", slider, "targets", targets)
	})

	logger.Debugw("Created control map instance", "mapping", config.SliderMapping)
	return m
}

func (m *controlMap) setupOnSliderMove(events <-chan SliderMoveEvent) {
	go func() {
		for event := range events {
			m.handleSliderMoveEvent(event)
		}
	}()
}

func (m *controlMap) handleSliderMoveEvent(event SliderMoveEvent) {
	targets, ok := m.config.SliderMapping.get(event.SliderID)
	if !ok {
		return
	}

	value := float64(event.PercentValue)

	for _, target := range targets {
		switch target {
		case sliderTargetVolume:
			m.target.SetVolume(value)
			m.logger.Debugw("Slider moved volume", "slider", event.SliderID, "volume", value)

		case sliderTargetSeek:
			if m.target.Seek(value) {
				m.logger.Debugw("Slider moved seek position", "slider", event.SliderID, "position", value)
			} else {
				m.logger.Debugw("Seek ignored, duration unknown", "slider", event.SliderID)
			}
		}
	}
}
