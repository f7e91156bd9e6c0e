package styles

import "github.com/go-go-golems/deployctl/pkg/view"

// Status icons
const (
	IconSuccess = "✓"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconRunning = "▶"
	IconStopped = "■"
	IconPending = "○"
	IconSystem  = "●"
	IconUpload  = "⇪"
	IconBullet  = "•"
)

// BadgeIcon returns the icon for a deployment badge.
func BadgeIcon(b view.Badge) string {
	if b == view.BadgeRunning {
		return IconRunning
	}
	return IconStopped
}

// ChannelIcon returns the icon for the push channel state.
func ChannelIcon(up bool) string {
	if up {
		return IconSystem
	}
	return IconPending
}

// LevelIcon returns the icon for an activity level.
func LevelIcon(level string) string {
	switch level {
	case "error", "ERROR":
		return IconError
	case "warn", "WARN", "warning", "WARNING":
		return IconWarning
	case "info", "INFO":
		return IconInfo
	default:
		return IconBullet
	}
}
