package ctl

import (
	"bytes"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"gopkg.in/yaml.v3"

	adminapi "github.com/oshokin/presence-alarm/internal/api/grpc/admin"
	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
	"github.com/oshokin/presence-alarm/internal/repository/store"
	"github.com/oshokin/presence-alarm/internal/service/admin"
	"github.com/oshokin/presence-alarm/internal/service/common"
)

// startMonitor serves the admin API on a loopback port backed by a seeded
// memory repository and returns its address.
func startMonitor(t *testing.T) string {
	t.Helper()

	repo := store.NewMemoryRepository()
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

	network, _, err := repo.GetOrCreateNetwork(t.Context(), &domain.Network{
		Name:          "home",
		FirstSeenAt:   now,
		LastSeenAt:    now,
		AlertingDelay: 5 * time.Minute,
	})
	require.NoError(t, err)

	require.NoError(t, repo.SaveDevice(t.Context(), &domain.Device{
		NetworkID:   network.ID,
		MAC:         "AA:BB:CC:DD:EE:FF",
		IP:          "10.0.0.2",
		Online:      true,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer()
	adminapi.RegisterAdminServer(server, adminapi.NewServer(admin.NewService(repo, common.NewKeyedLocker())))

	go func() {
		_ = server.Serve(lis)
	}()

	t.Cleanup(server.Stop)

	return lis.Addr().String()
}

func options(t *testing.T, address string, format Format, out *bytes.Buffer) *Options {
	t.Helper()

	return &Options{
		// A missing settings file falls back to the defaults.
		ConfigPath:    filepath.Join(t.TempDir(), "missing.yaml"),
		ServerAddress: address,
		Output:        format,
		Out:           out,
	}
}

// TestRun_Text lists networks and devices as columns.
func TestRun_Text(t *testing.T) {
	t.Parallel()

	address := startMonitor(t)

	var out bytes.Buffer

	require.NoError(t, Run(t.Context(), options(t, address, FormatText, &out), ListNetworks()))
	require.Contains(t, out.String(), "NETWORK")
	require.Contains(t, out.String(), "home")
	require.Contains(t, out.String(), "5m0s")

	out.Reset()

	require.NoError(t, Run(t.Context(), options(t, address, "", &out), ListDevices("home")))
	require.Contains(t, out.String(), "AA:BB:CC:DD:EE:FF")
	require.Contains(t, out.String(), "UNAUTHORIZED")
}

// TestRun_Mutations changes a device and a network and renders YAML.
func TestRun_Mutations(t *testing.T) {
	t.Parallel()

	address := startMonitor(t)
	name := "printer"

	var out bytes.Buffer

	err := Run(t.Context(), options(t, address, FormatYAML, &out),
		SetDeviceMode("home", "aa-bb-cc-dd-ee-ff", "allowed", &name))
	require.NoError(t, err)

	var device adminapi.DeviceView
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &device))
	require.Equal(t, "ALLOWED", device.Mode)
	require.Equal(t, "printer", device.Name)

	out.Reset()

	delay := 90 * time.Second
	email := "ops@example.com"

	err = Run(t.Context(), options(t, address, FormatYAML, &out), ConfigureNetwork("home", &delay, &email))
	require.NoError(t, err)

	var network adminapi.NetworkView
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &network))
	require.Equal(t, "1m30s", network.AlertingDelay)
	require.Equal(t, email, network.Email)
}

// TestRun_Errors covers unknown formats and failing calls.
func TestRun_Errors(t *testing.T) {
	t.Parallel()

	address := startMonitor(t)

	var out bytes.Buffer

	err := Run(t.Context(), options(t, address, "xml", &out), ListNetworks())
	require.ErrorIs(t, err, errUnknownFormat)

	err = Run(t.Context(), options(t, address, FormatText, &out), ListDevices("office"))
	require.Error(t, err)
	require.Empty(t, out.String())
}

// TestRender_Unsupported rejects results without a text rendering.
func TestRender_Unsupported(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	require.ErrorIs(t, Render(&out, FormatText, 42), errUnsupportedResult)
	require.NoError(t, Render(&out, FormatYAML, map[string]int{"answer": 42}))
	require.Contains(t, out.String(), "answer: 42")
}
