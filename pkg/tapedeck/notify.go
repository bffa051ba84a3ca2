package tapedeck

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/retr0680/tapedeck/pkg/tapedeck/icon"
	"github.com/retr0680/tapedeck/pkg/tapedeck/util"
)

// Notifier provides a generic interface for sending notifications.
type Notifier interface {
	Notify(title string, message string)
}

const (
	notificationIconName = "tapedeck.png"

	// identical toasts closer together than this are dropped
	repeatSuppressionWindow = 5 * time.Second
)

// ToastNotifier sends desktop notifications titled with the application name. The same
// notification repeated within a few seconds is only shown once.
type ToastNotifier struct {
	logger   *zap.SugaredLogger
	iconPath string
	send     func(title, message, appIcon string) error

	iconOnce sync.Once
	iconErr  error

	lock     sync.Mutex
	lastKey  string
	lastSent time.Time
}

// NewToastNotifier creates a new instance of ToastNotifier.
func NewToastNotifier(logger *zap.SugaredLogger) (*ToastNotifier, error) {
	logger = logger.Named("notifier")

	tn := &ToastNotifier{
		logger:   logger,
		iconPath: filepath.Join(os.TempDir(), notificationIconName),
		send:     beeep.Notify,
	}

	logger.Debugw("Created toast notifier instance", "icon", tn.iconPath)
	return tn, nil
}

// Notify sends a toast notification, writing the icon to disk on first use.
func (tn *ToastNotifier) Notify(title, message string) {
	if !tn.shouldSend(title, message, time.Now()) {
		tn.logger.Debugw("Suppressing repeated notification", "title", title)
		return
	}

	tn.iconOnce.Do(func() { tn.iconErr = tn.ensureIconFile() })
	if tn.iconErr != nil {
		tn.logger.Warnw("Notification icon unavailable, sending without it", "error", tn.iconErr)
	}

	tn.logger.Infow("Sending toast notification", "title", title, "message", message)

	if err := tn.send(fmt.Sprintf("%s: %s", appTitle, title), message, tn.iconPathOrEmpty()); err != nil {
		tn.logger.Errorw("Failed to send toast notification", "error", err)
	}
}

func (tn *ToastNotifier) shouldSend(title, message string, now time.Time) bool {
	tn.lock.Lock()
	defer tn.lock.Unlock()

	key := title + "\x00" + message
	if key == tn.lastKey && now.Sub(tn.lastSent) < repeatSuppressionWindow {
		return false
	}

	tn.lastKey = key
	tn.lastSent = now
	return true
}

func (tn *ToastNotifier) iconPathOrEmpty() string {
	if tn.iconErr != nil {
		return ""
	}
	return tn.iconPath
}

func (tn *ToastNotifier) ensureIconFile() error {
	if util.FileExists(tn.iconPath) {
		return nil
	}

	if err := os.WriteFile(tn.iconPath, icon.Logo, 0o644); err != nil {
		return fmt.Errorf("write notification icon: %w", err)
	}

	tn.logger.Debugw("Created notification icon", "path", tn.iconPath)
	return nil
}
