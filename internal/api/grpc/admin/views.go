package admin

import (
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

// ActorView identifies who requested a change.
type ActorView struct {
	Hostname string `json:"hostname" yaml:"hostname"`
	Username string `json:"username" yaml:"username"`
}

// NetworkView is the wire form of a network.
type NetworkView struct {
	Name        string    `json:"name" yaml:"name"`
	FirstSeenAt time.Time `json:"first_seen_at" yaml:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at" yaml:"last_seen_at"`
	// AlertingDelay is rendered with time.Duration.String, e.g. "5m0s".
	AlertingDelay string `json:"alerting_delay" yaml:"alerting_delay"`
	Email         string `json:"email,omitempty" yaml:"email,omitempty"`
	ActiveAlarmID *int64 `json:"active_alarm_id,omitempty" yaml:"active_alarm_id,omitempty"`
}

// DeviceView is the wire form of a device.
type DeviceView struct {
	MAC           string    `json:"mac" yaml:"mac"`
	IP            string    `json:"ip,omitempty" yaml:"ip,omitempty"`
	Name          string    `json:"name,omitempty" yaml:"name,omitempty"`
	Mode          string    `json:"mode" yaml:"mode"`
	Online        bool      `json:"online" yaml:"online"`
	FirstSeenAt   time.Time `json:"first_seen_at" yaml:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at" yaml:"last_seen_at"`
	ActiveAlarmID *int64    `json:"active_alarm_id,omitempty" yaml:"active_alarm_id,omitempty"`
}

// SetDeviceModeRequest changes the mode and optionally the name of a device.
type SetDeviceModeRequest struct {
	Actor   *ActorView `json:"actor" yaml:"actor"`
	Network string     `json:"network" yaml:"network"`
	MAC     string     `json:"mac" yaml:"mac"`
	Mode    string     `json:"mode" yaml:"mode"`
	Name    *string    `json:"name,omitempty" yaml:"name,omitempty"`
}

// ConfigureNetworkRequest changes network settings. Nil fields are kept.
type ConfigureNetworkRequest struct {
	Actor         *ActorView `json:"actor" yaml:"actor"`
	Network       string     `json:"network" yaml:"network"`
	AlertingDelay *string    `json:"alerting_delay,omitempty" yaml:"alerting_delay,omitempty"`
	Email         *string    `json:"email,omitempty" yaml:"email,omitempty"`
}

// ListDevicesRequest selects the network whose devices are listed.
type ListDevicesRequest struct {
	Network string `json:"network" yaml:"network"`
}

// NetworksResponse lists networks.
type NetworksResponse struct {
	Networks []*NetworkView `json:"networks" yaml:"networks"`
}

// DevicesResponse lists the devices of one network.
type DevicesResponse struct {
	Devices []*DeviceView `json:"devices" yaml:"devices"`
}

// Encode converts a view into a protobuf Struct.
func Encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}

	result := new(structpb.Struct)
	if err = protojson.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("convert %T: %w", v, err)
	}

	return result, nil
}

// Decode fills a view from a protobuf Struct.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = new(structpb.Struct)
	}

	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("convert struct: %w", err)
	}

	if err = json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}

	return nil
}

// toDomainActor converts an ActorView to a domain Actor.
func toDomainActor(actor *ActorView) *domain.Actor {
	if actor == nil {
		return nil
	}

	return &domain.Actor{
		Hostname: actor.Hostname,
		Username: actor.Username,
	}
}

// ToNetworkView converts a domain network to its wire form.
func ToNetworkView(n *domain.Network) *NetworkView {
	if n == nil {
		return nil
	}

	return &NetworkView{
		Name:          n.Name,
		FirstSeenAt:   n.FirstSeenAt,
		LastSeenAt:    n.LastSeenAt,
		AlertingDelay: n.AlertingDelay.String(),
		Email:         n.Email,
		ActiveAlarmID: n.ActiveAlarmID,
	}
}

// ToDeviceView converts a domain device to its wire form.
func ToDeviceView(d *domain.Device) *DeviceView {
	if d == nil {
		return nil
	}

	return &DeviceView{
		MAC:           d.MAC,
		IP:            d.IP,
		Name:          d.Name,
		Mode:          d.Mode.String(),
		Online:        d.Online,
		FirstSeenAt:   d.FirstSeenAt,
		LastSeenAt:    d.LastSeenAt,
		ActiveAlarmID: d.ActiveAlarmID,
	}
}
