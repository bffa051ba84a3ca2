package util

import (
	"fmt"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
)

// EnsureDirExists creates the given directory path if it doesn't already exist.
func EnsureDirExists(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return fmt.Errorf("ensure directory exists (%s): %w", path, err)
	}
	return nil
}

// FileExists checks if a file exists and is not a directory.
func FileExists(filename string) bool {
	info, err := os.Stat(filename)
	return err == nil && !info.IsDir()
}

// Linux returns true if we're running on Linux.
func Linux() bool {
	return runtime.GOOS == "linux"
}

// Windows returns true if we're running on Windows.
func Windows() bool {
	return runtime.GOOS == "windows"
}

// SetupCloseHandler creates a listener on a new goroutine that will notify
// the program if it receives an interrupt signal from the OS.
func SetupCloseHandler() chan os.Signal {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	return c
}

// OpenExternal spawns a detached process (e.g., opening a file or URL) with the given command and argument.
func OpenExternal(logger *zap.SugaredLogger, cmd string, arg string) error {
	command := createExternalCommand(cmd, arg)
	if err := command.Start(); err != nil {
		logger.Warnw("Failed to spawn detached process", "command", cmd, "argument", arg, "error", err)
		return fmt.Errorf("spawn detached proc: %w", err)
	}

	go command.Wait()
	return nil
}

// Editor returns the program used to open text files on this platform.
func Editor() string {
	switch runtime.GOOS {
	case "windows":
		return "notepad.exe"
	case "darwin":
		return "open -t"
	default:
		if editor := os.Getenv("VISUAL"); editor != "" {
			return editor
		}
		return "xdg-open"
	}
}

// NormalizeScalar trims the given float32 to 2 decimal places of precision (e.g., 0.15442 -> 0.15).
// Used for normalizing slider values.
func NormalizeScalar(v float32) float32 {
	return float32(math.Floor(float64(v)*100) / 100.0)
}

// SignificantlyDifferent returns true if there's a significant enough difference between two slider values,
// considering a specified noise reduction level.
func SignificantlyDifferent(old float32, new float32, noiseReductionLevel string) bool {
	threshold := getSignificantDifferenceThreshold(noiseReductionLevel)
	if math.Abs(float64(old-new)) >= threshold {
		return true
	}

	// always let the extremes through so the knob can reach 0 and 1
	if (almostEquals(new, 1.0) && old != 1.0) || (almostEquals(new, 0.0) && old != 0.0) {
		return true
	}
	return false
}

func almostEquals(a float32, b float32) bool {
	return math.Abs(float64(a-b)) < 0.000001
}

func createExternalCommand(cmd string, arg string) *exec.Cmd {
	if Windows() {
		return exec.Command("cmd.exe", "/C", "start", "/b", cmd, arg)
	}

	return exec.Command("/bin/sh", "-c", fmt.Sprintf("%s %q", cmd, arg))
}

func getSignificantDifferenceThreshold(noiseReductionLevel string) float64 {
	const (
		noiseReductionHigh = "high"
		noiseReductionLow  = "low"
	)

	switch noiseReductionLevel {
	case noiseReductionHigh:
		return 0.035
	case noiseReductionLow:
		return 0.015
	default:
		return 0.025
	}
}
