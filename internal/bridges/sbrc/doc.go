// Package sbrc implements the Shure SBRC/SBC battery charger bridge for
// Gray Logic.
//
// The charger speaks a bracket-delimited text protocol over TCP (port 2202
// by default). This package reassembles that stream into messages, decodes
// the reports into per-entity updates and keeps a store of charger, bay and
// module state. It also encodes the few commands the charger accepts.
//
// # Architecture
//
//	┌─────────────────┐          ┌─────────────────┐   TCP
//	│   Gray Logic    │   MQTT   │  Charger Bridge │◄────────► SBRC / SBC
//	│      Core       │◄────────►│   (this pkg)    │
//	└─────────────────┘          └─────────────────┘
//
// Received data flows through one goroutine per connection:
//
//	bytes → FrameReader.Feed → Decode → Store.Apply → Notifier
//
// # Wire Format
//
// Every message is framed as "< tokens >". Reports take one of two shapes:
//
//	< REP MODEL {SBRC} >              charger scope
//	< REP 3 BATT_CHARGE 75 >          bay scope
//	< REP 2 BATT_MODULE_TYPE 001 >    module scope
//
// The module/bay split is decided by the key alone: BATT_MODULE_TYPE is the
// only id-scoped key that targets a module.
//
// Commands use the same framing:
//
//	cmd := sbrc.SetStorageModeCommand(sbrc.StorageModeToggle)
//	// "< SET STORAGE_MODE TOGGLE >"
//
// # Sentinels
//
// Bay fields start at "no data" sentinels (255 or 65535) until reported.
// BATT_TIME_TO_FULL also exposes a display string for its sentinels, such
// as "Calculating..." for 65533.
//
// # Thread Safety
//
// Store, Client and Bridge are safe for concurrent use. FrameReader and
// Pipeline must be fed from a single goroutine.
package sbrc
