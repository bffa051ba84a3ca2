package playlist

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"song.mp3", "audio/mpeg"},
		{"SONG.MP3", "audio/mpeg"},
		{"track.flac", "audio/flac"},
		{"track.ogg", "audio/ogg"},
		{"voice.m4a", "audio/mp4"},
		{"noext", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentTypeFor(tt.name); got != tt.want {
				t.Errorf("ContentTypeFor(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestFilterAudio(t *testing.T) {
	files := audioFiles("a.mp3", "cover.jpg", "b.wav", "notes.txt", "c.flac")

	got := FilterAudio(files)
	if len(got) != 3 {
		t.Fatalf("Expected 3 audio files, got %d", len(got))
	}

	want := []string{"a.mp3", "b.wav", "c.flac"}
	for i, name := range want {
		if got[i].Name() != name {
			t.Errorf("File %d = %s, want %s", i, got[i].Name(), name)
		}
	}
}

func TestLocalFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tune.mp3")
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	f := NewLocalFile(path)
	if f.Name() != "tune.mp3" {
		t.Errorf("Name() = %s, want tune.mp3", f.Name())
	}
	if f.Path() != path {
		t.Errorf("Path() = %s, want %s", f.Path(), path)
	}
	if !IsAudio(f) {
		t.Error("Expected tune.mp3 to be audio")
	}

	rc, err := f.Open()
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil || string(data) != "ID3" {
		t.Errorf("ReadAll() = %q, %v", data, err)
	}
}
