package tapedeck

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

const (
	sliderTargetVolume = "volume"
	sliderTargetSeek   = "seek"
)

var knownSliderTargets = []string{sliderTargetVolume, sliderTargetSeek}

type sliderMap struct {
	m    map[int][]string
	lock sync.RWMutex
}

func newSliderMap() *sliderMap {
	return &sliderMap{
		m: make(map[int][]string),
	}
}

// sliderMapFromConfig builds a sliderMap from the user mapping, dropping empty, duplicate and
// unknown targets.
func sliderMapFromConfig(logger *zap.SugaredLogger, userMapping map[string][]string) *sliderMap {
	resultMap := newSliderMap()

	for sliderIdxString, targets := range userMapping {
		sliderIdx, err := strconv.Atoi(sliderIdxString)
		if err != nil || sliderIdx < 0 {
			logger.Warnw("Ignoring invalid slider index in mapping", "index", sliderIdxString)
			continue
		}

		normalized := funk.Map(targets, func(s string) string {
			return strings.ToLower(strings.TrimSpace(s))
		}).([]string)

		valid := funk.FilterString(funk.UniqString(normalized), func(s string) bool {
			if s == "" {
				return false
			}
			if !funk.ContainsString(knownSliderTargets, s) {
				logger.Warnw("Ignoring unknown slider target", "index", sliderIdx, "target", s)
				return false
			}
			return true
		})

		if len(valid) > 0 {
			resultMap.set(sliderIdx, valid)
		}
	}

	return resultMap
}

// iterate runs the provided function on each slider in index order.
func (m *sliderMap) iterate(f func(int, []string)) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	keys := make([]int, 0, len(m.m))
	for key := range m.m {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	for _, key := range keys {
		f(key, m.m[key])
	}
}

func (m *sliderMap) get(key int) ([]string, bool) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	value, ok := m.m[key]
	return value, ok
}

func (m *sliderMap) set(key int, value []string) {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.m[key] = value
}

func (m *sliderMap) String() string {
	m.lock.RLock()
	defer m.lock.RUnlock()

	sliderCount := len(m.m)
	targetCount := 0

	for _, targets := range m.m {
		targetCount += len(targets)
	}

	return fmt.Sprintf("<%d sliders mapped to %d targets>", sliderCount, targetCount)
}
