// Package homeconfig manages the household structure document exported
// by the WiZ cloud: the rooms, devices, and groups of a home, keyed by
// device MAC. The document is fetched once from an allow-listed link
// (or loaded from a bundled file), stored locally, and afterwards used
// to enrich device names without any further network access.
//
// Absence of a stored document and failure to parse a document are
// distinct conditions: first setup is detected by absence, while a
// parse failure on import is an error the user must see.
package homeconfig
