package tapedeck

import (
	"testing"
)

func drain(ch chan SliderMoveEvent) []SliderMoveEvent {
	var events []SliderMoveEvent
	for {
		select {
		case event := <-ch:
			events = append(events, event)
		default:
			return events
		}
	}
}

func newTestSerial(t *testing.T) (*SerialIO, chan SliderMoveEvent) {
	t.Helper()

	sio, err := NewSerialIO(loadedConfig(t), testLogger(t))
	if err != nil {
		t.Fatalf("NewSerialIO() error = %v", err)
	}

	return sio, sio.SubscribeToSliderMoveEvents()
}

func TestProcessLine(t *testing.T) {
	sio, events := newTestSerial(t)

	sio.processLine("512|1023\r\n")
	got := drain(events)

	want := []SliderMoveEvent{{SliderID: 0, PercentValue: 0.5}, {SliderID: 1, PercentValue: 1}}
	if len(got) != len(want) {
		t.Fatalf("Expected %d events, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Event %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	sio.processLine("515|1023\r\n")
	if got := drain(events); len(got) != 0 {
		t.Errorf("Expected jitter to be filtered, got %v", got)
	}

	sio.processLine("700|1023\r\n")
	if got := drain(events); len(got) != 1 || got[0].SliderID != 0 {
		t.Errorf("Expected one event for slider 0, got %v", got)
	}
}

func TestProcessLineRejectsGarbage(t *testing.T) {
	lines := []string{
		"abc\r\n",
		"512|1023",
		"512|1023\n",
		"2000|10\r\n",
		"|512\r\n",
		"12345\r\n",
	}

	for _, line := range lines {
		sio, events := newTestSerial(t)
		sio.processLine(line)

		if got := drain(events); len(got) != 0 {
			t.Errorf("processLine(%q) produced %v", line, got)
		}
	}
}

func TestProcessLineSliderCountChange(t *testing.T) {
	sio, events := newTestSerial(t)

	sio.processLine("0\r\n")
	drain(events)

	sio.processLine("0|0\r\n")
	if got := drain(events); len(got) != 2 {
		t.Errorf("Expected both sliders reported after a count change, got %v", got)
	}
}

func TestProcessLineInverted(t *testing.T) {
	sio, events := newTestSerial(t)
	sio.config.InvertSliders = true

	sio.processLine("1023\r\n")
	got := drain(events)

	if len(got) != 1 || got[0].PercentValue != 0 {
		t.Errorf("Expected inverted value 0, got %v", got)
	}
}

func TestSerialStartWithoutPort(t *testing.T) {
	sio, _ := newTestSerial(t)

	if err := sio.Start(); err != errNoCOMPort {
		t.Errorf("Expected errNoCOMPort, got %v", err)
	}

	// no connection, nothing to stop
	sio.Stop()
}
