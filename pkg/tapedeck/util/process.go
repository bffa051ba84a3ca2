package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// OtherInstanceRunning reports whether another process runs the same executable as this one.
func OtherInstanceRunning() (bool, error) {
	self, err := os.Executable()
	if err != nil {
		return false, fmt.Errorf("find own executable: %w", err)
	}

	return processRunning(executableName(self), os.Getpid())
}

func processRunning(name string, exceptPID int) (bool, error) {
	processes, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	for _, process := range processes {
		if process.Pid() == exceptPID {
			continue
		}

		if strings.EqualFold(executableName(process.Executable()), name) {
			return true, nil
		}
	}

	return false, nil
}

// executableName normalizes an executable path to its base name without a .exe suffix.
func executableName(path string) string {
	name := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(name, ".exe"), ".EXE")
}
