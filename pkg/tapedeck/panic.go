package tapedeck

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

const (
	crashlogFilename        = "tapedeck-crash-%s.log"
	crashlogTimestampFormat = "2006.01.02-15.04.05"
	crashMessageTemplate    = `-----------------------------------------------------------------
                        tapedeck crashlog
-----------------------------------------------------------------
Unfortunately, tapedeck has crashed. This really shouldn't happen!
Please open an issue and attach this error log.
-----------------------------------------------------------------
Time: %s
Panic occurred: %s
Stack trace:
%s
-----------------------------------------------------------------
`
)

// recoverFromPanic is deferred at the top of every long-lived goroutine.
func (t *Tapedeck) recoverFromPanic() {
	if r := recover(); r != nil {
		t.handlePanic(r)
	}
}

// handlePanic writes a crash log file, notifies the user and exits.
func (t *Tapedeck) handlePanic(recoverValue interface{}) {
	now := time.Now()
	crashlogPath := filepath.Join(LogDirectory, fmt.Sprintf(crashlogFilename, now.Format(crashlogTimestampFormat)))

	if err := util.EnsureDirExists(LogDirectory); err != nil {
		panic(fmt.Errorf("create log directory: %w", err))
	}

	if err := os.WriteFile(crashlogPath, crashLogContent(now, recoverValue), 0644); err != nil {
		panic(fmt.Errorf("write crash log: %w", err))
	}

	t.logger.Errorw("Application panic encountered",
		"crashlogPath", crashlogPath,
		"error", recoverValue)

	t.notifier.Notify("Unexpected crash occurred",
		fmt.Sprintf("Details logged to: %s", crashlogPath))

	t.logger.Errorw("Exiting due to panic", "exitCode", 1)
	t.logger.Sync()
	os.Exit(1)
}

func crashLogContent(timestamp time.Time, recoverValue interface{}) []byte {
	return []byte(fmt.Sprintf(crashMessageTemplate,
		timestamp.Format(crashlogTimestampFormat),
		recoverValue,
		debug.Stack(),
	))
}
