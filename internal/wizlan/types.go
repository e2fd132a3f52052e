package wizlan

import "strings"

// BulbClass is the broad capability class of a bulb.
type BulbClass string

const (
	// ClassRGB is a full-colour bulb with one or two white channels.
	ClassRGB BulbClass = "rgb"

	// ClassTunableWhite is a white-only bulb with adjustable colour
	// temperature.
	ClassTunableWhite BulbClass = "tunable_white"

	// ClassDimmable is a fixed-temperature dimmable bulb or a smart
	// socket.
	ClassDimmable BulbClass = "dimmable"

	// ClassUnknown is reported when the module name does not match any
	// known family.
	ClassUnknown BulbClass = "unknown"
)

// BulbType describes the capabilities of a bulb as inferred from its
// module name.
type BulbType struct {
	Class         BulbClass
	WhiteChannels int
	ModuleName    string
}

// DiscoveredBulb is a single answer to a discovery broadcast.
type DiscoveredBulb struct {
	IPAddress  string
	MACAddress string
}

// TypeFromModuleName infers the bulb type from a module name such as
// "ESP01_SHRGB1C_31". The family identifier is the middle segment;
// "RGB" marks colour bulbs, "TW" tunable whites, "DW" and "SOCKET"
// dimmable devices. Colour bulbs carry two white channels when the
// identifier says so ("RGB2" or "RGBWW"), otherwise one.
func TypeFromModuleName(moduleName string) BulbType {
	identifier := moduleName
	if parts := strings.Split(moduleName, "_"); len(parts) >= 2 {
		identifier = parts[1]
	}
	identifier = strings.ToUpper(identifier)

	bt := BulbType{Class: ClassUnknown, ModuleName: moduleName}

	switch {
	case strings.Contains(identifier, "RGB"):
		bt.Class = ClassRGB
		bt.WhiteChannels = 1
		if rgbWhiteChannels(identifier) == 2 {
			bt.WhiteChannels = 2
		}
	case strings.Contains(identifier, "TW"):
		bt.Class = ClassTunableWhite
		bt.WhiteChannels = 2
	case strings.Contains(identifier, "DW"), strings.Contains(identifier, "SOCKET"):
		bt.Class = ClassDimmable
		bt.WhiteChannels = 1
	}

	return bt
}

// rgbWhiteChannels reads the white-channel count encoded after the RGB
// marker in a family identifier. "SHRGB2C" and "SHRGBWW1" are
// two-channel variants; everything else is one.
func rgbWhiteChannels(identifier string) int {
	idx := strings.Index(identifier, "RGB")
	if idx < 0 {
		return 1
	}
	rest := identifier[idx+len("RGB"):]
	if strings.HasPrefix(rest, "WW") || strings.HasPrefix(rest, "2") {
		return 2
	}
	return 1
}
