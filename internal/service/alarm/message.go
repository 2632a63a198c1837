package alarm

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// message is a rendered notification waiting for delivery.
type message struct {
	destination string
	subject     string
	body        string
}

func render(
	kind domain.AlarmKind,
	closure bool,
	network *domain.Network,
	device *domain.Device,
	text string,
	now time.Time,
) message {
	subject := "[" + network.Name + "] alert"
	lines := make([]string, 0, 10)

	if closure {
		subject += " closure"

		lines = append(lines, "ALERT CLOSED")
	} else {
		lines = append(lines, "ALERT TRIGGERED")
	}

	lines = append(lines, "", "Network: "+network.Name)

	if device != nil {
		subject += " for device: " + device.DisplayName()

		lines = append(lines, fmt.Sprintf("Device: %s (mac:%s, ip:%s)", device.DisplayName(), device.MAC, device.IP))
	}

	lines = append(lines,
		"UTC time: "+now.UTC().Format(time.RFC3339),
		"",
		kind.Description()+".",
	)

	if strings.TrimSpace(text) != "" {
		lines = append(lines, "", "Additional info: "+text)
	}

	return message{
		destination: network.Email,
		subject:     subject,
		body:        strings.Join(lines, "\n"),
	}
}

// durationInfo describes when a closed alarm was opened and how long it lasted.
func durationInfo(openedAt, closedAt time.Time) string {
	d := closedAt.Sub(openedAt)
	if d < 0 {
		d = 0
	}

	const day = 24 * time.Hour

	days := d / day
	d -= days * day
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second

	return fmt.Sprintf("Alert opened at: %s\nDuration: %d days, %d hours, %d minutes, %d seconds",
		openedAt.UTC().Format(time.RFC3339), days, hours, minutes, seconds)
}
