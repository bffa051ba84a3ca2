package tapedeck

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, content string) {
	t.Helper()

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cc := loadedConfig(t)

	if cc.Volume != defaultVolume {
		t.Errorf("Volume = %v, want %v", cc.Volume, defaultVolume)
	}
	if cc.RemoteListenAddr != defaultRemoteListenAddr {
		t.Errorf("RemoteListenAddr = %q, want %q", cc.RemoteListenAddr, defaultRemoteListenAddr)
	}
	if cc.ConnectionInfo.COMPort != "" || cc.ConnectionInfo.BaudRate != defaultBaudRate {
		t.Errorf("Unexpected connection info %+v", cc.ConnectionInfo)
	}
	if cc.KeepPlaylistOnInvalidSelection || cc.ProbeWorkers != 0 || len(cc.Library) != 0 {
		t.Errorf("Unexpected defaults: keep=%v workers=%d library=%v", cc.KeepPlaylistOnInvalidSelection, cc.ProbeWorkers, cc.Library)
	}

	targets, ok := cc.SliderMapping.get(0)
	if !ok || !reflect.DeepEqual(targets, []string{sliderTargetVolume}) {
		t.Errorf("Expected slider 0 mapped to volume, got %v", targets)
	}
}

func TestConfigLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, `
library:
  - /music/albums
  - /music/singles
volume: 1.5
keep_playlist_on_invalid_selection: true
probe_workers: -2
remote:
  listen_addr: ""
slider_mapping:
  0: volume
  1:
    - Seek
    - bogus
  x: volume
com_port: /dev/ttyUSB0
baud_rate: 0
invert_sliders: true
noise_reduction: high
`)

	cc, err := NewConfig(testLogger(t), &recordingNotifier{}, path)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if err := cc.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !reflect.DeepEqual(cc.Library, []string{"/music/albums", "/music/singles"}) {
		t.Errorf("Library = %v", cc.Library)
	}
	if cc.Volume != 1 {
		t.Errorf("Expected volume clamped to 1, got %v", cc.Volume)
	}
	if !cc.KeepPlaylistOnInvalidSelection {
		t.Error("Expected keep_playlist_on_invalid_selection to be set")
	}
	if cc.ProbeWorkers != 0 {
		t.Errorf("Expected invalid probe workers to fall back to 0, got %d", cc.ProbeWorkers)
	}
	if cc.RemoteListenAddr != "" {
		t.Errorf("Expected remote control disabled, got %q", cc.RemoteListenAddr)
	}
	if cc.ConnectionInfo.COMPort != "/dev/ttyUSB0" || cc.ConnectionInfo.BaudRate != defaultBaudRate {
		t.Errorf("Unexpected connection info %+v", cc.ConnectionInfo)
	}
	if !cc.InvertSliders || cc.NoiseReductionLevel != "high" {
		t.Errorf("Unexpected slider settings invert=%v noise=%q", cc.InvertSliders, cc.NoiseReductionLevel)
	}

	if targets, _ := cc.SliderMapping.get(1); !reflect.DeepEqual(targets, []string{sliderTargetSeek}) {
		t.Errorf("Expected slider 1 mapped to seek, got %v", targets)
	}
	if cc.SliderMapping.String() != "<2 sliders mapped to 2 targets>" {
		t.Errorf("Unexpected mapping %s", cc.SliderMapping)
	}
}

func TestConfigLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "volume: [1\n")

	notifier := &recordingNotifier{}
	cc, err := NewConfig(testLogger(t), notifier, path)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}

	if err := cc.Load(); err == nil {
		t.Fatal("Expected an error for malformed YAML")
	}
	if len(notifier.titles()) != 1 {
		t.Errorf("Expected one notification, got %v", notifier.titles())
	}
}

func TestConfigReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "volume: 0.4\n")

	notifier := &recordingNotifier{}
	cc, err := NewConfig(testLogger(t), notifier, path)
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if err := cc.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	changes := cc.SubscribeToChanges()
	cc.watching = true

	writeConfig(t, path, "volume: 0.7\ncom_port: COM3\n")
	if err := cc.onConfigFileChanged(); err != nil {
		t.Fatalf("onConfigFileChanged() error = %v", err)
	}

	select {
	case <-changes:
	case <-time.After(time.Second):
		t.Fatal("Expected a reload notification")
	}

	if cc.Volume != 0.7 || cc.ConnectionInfo.COMPort != "COM3" {
		t.Errorf("Expected reloaded values, got volume=%v port=%q", cc.Volume, cc.ConnectionInfo.COMPort)
	}

	// a second write right away is debounced
	writeConfig(t, path, "volume: 0.9\n")
	if err := cc.onConfigFileChanged(); err != nil {
		t.Fatalf("onConfigFileChanged() error = %v", err)
	}
	if cc.Volume != 0.7 {
		t.Errorf("Expected debounced reload to keep 0.7, got %v", cc.Volume)
	}

	cc.StopWatchingConfigFile()
	cc.StopWatchingConfigFile()
	if err := cc.onConfigFileChanged(); err != errConfigWatchStopped {
		t.Errorf("Expected errConfigWatchStopped after stop, got %v", err)
	}
}
