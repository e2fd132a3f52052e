package naming

import (
	"fmt"

	"github.com/luxbind/wiz-core/internal/homeconfig"
	"github.com/luxbind/wiz-core/internal/identity"
	"github.com/luxbind/wiz-core/internal/wizlan"
)

// fallbackDescription is used for bulb classes without a specific
// descriptive name.
const fallbackDescription = "Smart Bulb"

// Logger defines the logging interface used by the Resolver.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Resolver builds display names for devices.
type Resolver struct {
	product string
	logger  Logger
}

// NewResolver creates a resolver using the given product name as the
// prefix of generated names.
func NewResolver(product string) *Resolver {
	if product == "" {
		product = "WiZ"
	}
	return &Resolver{
		product: product,
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the resolver.
func (r *Resolver) SetLogger(logger Logger) {
	r.logger = logger
}

// Describe maps a bulb type to its descriptive name. Colour bulbs with
// a second white channel are "RGBWW Tunable", other colour bulbs
// "RGBW Tunable"; everything else falls back to a generic description.
func (r *Resolver) Describe(bt wizlan.BulbType) string {
	switch bt.Class {
	case wizlan.ClassRGB:
		if bt.WhiteChannels == 2 {
			return "RGBWW Tunable"
		}
		return "RGBW Tunable"
	case wizlan.ClassTunableWhite, wizlan.ClassDimmable, wizlan.ClassUnknown:
		r.logger.Debug("no specific description for bulb class, using fallback",
			"class", string(bt.Class),
			"module_name", bt.ModuleName,
		)
		return fallbackDescription
	default:
		r.logger.Debug("unrecognised bulb class, using fallback",
			"class", string(bt.Class),
		)
		return fallbackDescription
	}
}

// BaseName builds the capability-based name for a device:
// "<product> <description> <short-id>".
func (r *Resolver) BaseName(bt wizlan.BulbType, mac string) string {
	return fmt.Sprintf("%s %s %s", r.product, r.Describe(bt), identity.ShortID(mac))
}

// FullName builds the display name for a device, enriched from the
// home document when it knows the device:
// "<device_name>[ (<room>)] [<base-name>]". Devices absent from the
// document (or when no document is given) keep the base name.
func (r *Resolver) FullName(bt wizlan.BulbType, mac string, doc *homeconfig.HomeDocument) string {
	base := r.BaseName(bt, mac)
	if doc == nil {
		return base
	}

	device := doc.DeviceByMAC(mac)
	if device == nil || device.Name == "" {
		r.logger.Debug("device not in home document, using base name", "mac", mac)
		return base
	}

	name := device.Name
	if room := doc.RoomByID(device.RoomID); room != nil && room.Name != "" {
		name = fmt.Sprintf("%s (%s)", name, room.Name)
	}
	return fmt.Sprintf("%s [%s]", name, base)
}

// DiscoveryLabel builds the short label shown for a device in the
// pick-device form: "<product> <short-id> (<ip>)".
func (r *Resolver) DiscoveryLabel(mac, ip string) string {
	return fmt.Sprintf("%s %s (%s)", r.product, identity.ShortID(mac), ip)
}
