package homeconfig

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/luxbind/wiz-core/internal/identity"
)

// DeviceTraits describes the capabilities a device advertises in the
// home document.
type DeviceTraits struct {
	IsDimmable        bool  `json:"is_dimmable"`
	IsTunableWhite    bool  `json:"is_tunable_white"`
	WhiteRange        []int `json:"white_range"`
	IsTunableColor    bool  `json:"is_tunable_color"`
	SupportsLightMode bool  `json:"supports_light_mode"`
}

// DeviceRecord is one device entry in the home document.
type DeviceRecord struct {
	DeviceID   int          `json:"device_id"`
	Type       string       `json:"type"`
	RoomID     int          `json:"room_id"`
	GroupID    int          `json:"group_id"`
	Name       string       `json:"name"`
	MACAddress string       `json:"mac_address"`
	FwVersion  string       `json:"fw_version"`
	Traits     DeviceTraits `json:"traits"`
}

// Room is one room entry in the home document.
type Room struct {
	RoomID int    `json:"room_id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
}

// Group is one group entry in the home document.
type Group struct {
	GroupID int    `json:"group_id"`
	Name    string `json:"name"`
}

// CustomEffect is a user-defined lighting effect carried in the home
// document. The effect program itself is kept opaque.
type CustomEffect struct {
	Name     string          `json:"name"`
	State    bool            `json:"state"`
	Duration int             `json:"duration"`
	Elm      json.RawMessage `json:"elm"`
}

// HomeDocument is the household structure exported by the WiZ cloud.
// Dangling room and group references are tolerated: lookups simply
// return nothing for them.
type HomeDocument struct {
	HomeID        int            `json:"home_id"`
	Name          string         `json:"name"`
	Region        string         `json:"region"`
	UDPSigningKey string         `json:"udp_signing_key"`
	Version       string         `json:"version"`
	Rooms         []Room         `json:"rooms"`
	Devices       []DeviceRecord `json:"devices"`
	Groups        []Group        `json:"groups"`
	CustomEffects []CustomEffect `json:"custom_effects"`
}

// ParseDocument decodes a home document. Missing collections decode to
// empty slices; a body that is not a JSON object fails with
// ErrInvalidDocument.
func ParseDocument(data []byte) (*HomeDocument, error) {
	var doc HomeDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// DeviceByMAC finds the device record matching a MAC address in any
// format. Returns nil when the home document has no such device.
func (d *HomeDocument) DeviceByMAC(mac string) *DeviceRecord {
	want, err := identity.NormalizeMAC(mac)
	if err != nil {
		return nil
	}
	for i := range d.Devices {
		got, err := identity.NormalizeMAC(d.Devices[i].MACAddress)
		if err != nil {
			continue
		}
		if got == want {
			return &d.Devices[i]
		}
	}
	return nil
}

// RoomByID finds a room by its identifier, or nil.
func (d *HomeDocument) RoomByID(id int) *Room {
	for i := range d.Rooms {
		if d.Rooms[i].RoomID == id {
			return &d.Rooms[i]
		}
	}
	return nil
}

// GroupByID finds a group by its identifier, or nil.
func (d *HomeDocument) GroupByID(id int) *Group {
	for i := range d.Groups {
		if d.Groups[i].GroupID == id {
			return &d.Groups[i]
		}
	}
	return nil
}

// StoredConfig wraps a home document with its provenance.
type StoredConfig struct {
	Source    string        `json:"source"`
	Config    *HomeDocument `json:"config"`
	FetchedAt time.Time     `json:"fetched_at"`
}
