package ctl

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/presence-alarm/internal/api/grpc/admin"
)

// Format selects how results are printed.
type Format string

const (
	// FormatText renders aligned columns.
	FormatText Format = "text"
	// FormatYAML renders the full views as YAML.
	FormatYAML Format = "yaml"
)

var (
	// errUnknownFormat is returned for unsupported output formats.
	errUnknownFormat = errors.New("unknown output format")
	// errUnsupportedResult is returned when a result has no text rendering.
	errUnsupportedResult = errors.New("unsupported result")
)

// ParseFormat converts user input to a Format, defaulting to text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatText, "":
		return FormatText, nil
	case FormatYAML:
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownFormat, s)
	}
}

// Render writes result to w.
func Render(w io.Writer, format Format, result any) error {
	if format == FormatYAML {
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)

		if err := encoder.Encode(result); err != nil {
			return fmt.Errorf("render yaml: %w", err)
		}

		return encoder.Close()
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	switch v := result.(type) {
	case []*admin.NetworkView:
		writeNetworks(tw, v)
	case *admin.NetworkView:
		writeNetworks(tw, []*admin.NetworkView{v})
	case []*admin.DeviceView:
		writeDevices(tw, v)
	case *admin.DeviceView:
		writeDevices(tw, []*admin.DeviceView{v})
	default:
		return fmt.Errorf("%w: %T", errUnsupportedResult, result)
	}

	return tw.Flush()
}

func writeNetworks(w io.Writer, networks []*admin.NetworkView) {
	_, _ = fmt.Fprintln(w, "NETWORK\tALERTING DELAY\tEMAIL\tLAST SEEN\tOPEN ALARM")

	for _, n := range networks {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			n.Name,
			n.AlertingDelay,
			orDash(n.Email),
			formatTimestamp(n.LastSeenAt),
			formatID(n.ActiveAlarmID))
	}
}

func writeDevices(w io.Writer, devices []*admin.DeviceView) {
	_, _ = fmt.Fprintln(w, "MAC\tNAME\tIP\tMODE\tONLINE\tLAST SEEN\tOPEN ALARM")

	for _, d := range devices {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			d.MAC,
			orDash(d.Name),
			orDash(d.IP),
			d.Mode,
			d.Online,
			formatTimestamp(d.LastSeenAt),
			formatID(d.ActiveAlarmID))
	}
}

func formatTimestamp(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}

	return ts.UTC().Format(time.RFC3339)
}

func formatID(id *int64) string {
	if id == nil {
		return "-"
	}

	return strconv.FormatInt(*id, 10)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
