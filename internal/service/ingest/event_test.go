package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestParseNetworkName covers subject and topic style keys.
func TestParseNetworkName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		key  string
		name string
		ok   bool
	}{
		{key: "presence.home.snapshot", name: "home", ok: true},
		{key: "network/office/status", name: "office", ok: true},
		{key: "site/lab.snapshot", name: "lab", ok: true},
		{key: "home.snapshot", name: "home", ok: true},
		{key: "standalone", name: "standalone", ok: false},
		{key: "", name: "", ok: false},
	}

	for _, tc := range cases {
		name, ok := ParseNetworkName(tc.key)
		require.Equal(t, tc.name, name, tc.key)
		require.Equal(t, tc.ok, ok, tc.key)
	}
}

// TestDecodeTimestamps covers every accepted timestamp representation.
func TestDecodeTimestamps(t *testing.T) {
	t.Parallel()

	want := time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

	payloads := []string{
		`{"timestamp":"2026-05-06T07:08:09Z","devices":[]}`,
		`{"timestamp":"2026-05-06T09:08:09+02:00","devices":[]}`,
		`{"timestamp":"2026-05-06 07:08:09","devices":[]}`,
		`{"timestamp":1778051289,"devices":[]}`,
		`{"timestamp":1778051289000,"devices":[]}`,
		`{"timestamp":"1778051289","devices":[]}`,
	}

	for _, payload := range payloads {
		snapshot, ok, err := Decode("presence.home.snapshot", []byte(payload))
		require.NoError(t, err, payload)
		require.True(t, ok)
		require.True(t, want.Equal(snapshot.Timestamp), "%s decoded as %s", payload, snapshot.Timestamp)
		require.Equal(t, "home", snapshot.Network)
	}
}

// TestDecodeMalformed verifies that broken payloads are rejected.
func TestDecodeMalformed(t *testing.T) {
	t.Parallel()

	payloads := []string{
		`not json`,
		`{"devices":[]}`,
		`{"timestamp":null,"devices":[]}`,
		`{"timestamp":"yesterday","devices":[]}`,
		`{"timestamp":true,"devices":[]}`,
	}

	for _, payload := range payloads {
		_, _, err := Decode("presence.home.snapshot", []byte(payload))
		require.ErrorIs(t, err, ErrMalformedEvent, payload)
	}

	_, _, err := Decode("", []byte(`{"timestamp":1,"devices":[]}`))
	require.ErrorIs(t, err, ErrMalformedEvent)
}

// TestDecodeNormalizesDevices verifies MAC normalization.
func TestDecodeNormalizesDevices(t *testing.T) {
	t.Parallel()

	snapshot, _, err := Decode("presence.home.snapshot",
		[]byte(`{"timestamp":1,"devices":[{"mac":"aa-bb-cc-dd-ee-ff","ip":" 10.0.0.1 "},{"mac":"  "}]}`))
	require.NoError(t, err)
	require.Len(t, snapshot.Devices, 2)
	require.Equal(t, "AA:BB:CC:DD:EE:FF", snapshot.Devices[0].MAC)
	require.Equal(t, "10.0.0.1", snapshot.Devices[0].IP)
	require.Empty(t, snapshot.Devices[1].MAC)
}
