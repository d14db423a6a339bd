// Package modbusmirror copies charger and bay state into holding registers
// of a Modbus TCP server, for PLCs and building controllers that cannot
// speak MQTT.
package modbusmirror

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/gray-logic-charger/internal/bridges/sbrc"
)

// Logger is the logging interface used by the mirror.
type Logger interface {
	Warn(msg string, keysAndValues ...any)
}

// Config describes the register map.
type Config struct {
	UnitID      uint8
	BaseAddress uint16
	// BayStride is the distance between bay blocks; it must be at least
	// BaySlots.
	BayStride  uint16
	ActiveBays int
}

// Mirror is a bridge change sink that rewrites the affected block on every
// charger or bay change. Module changes are not mirrored.
type Mirror struct {
	cfg    Config
	writer RegisterWriter

	logger   Logger
	loggerMu sync.RWMutex
}

// New creates a mirror writing through w.
func New(cfg Config, w RegisterWriter) (*Mirror, error) {
	if w == nil {
		return nil, fmt.Errorf("modbus mirror: writer required")
	}
	if cfg.BayStride < BaySlots {
		return nil, fmt.Errorf("modbus mirror: bay stride %d smaller than block size %d", cfg.BayStride, BaySlots)
	}
	last := int(cfg.BaseAddress) + cfg.ActiveBays*int(cfg.BayStride) + BaySlots
	if last > 0x10000 {
		return nil, fmt.Errorf("modbus mirror: register map ends at %d, beyond 65535", last-1)
	}
	return &Mirror{cfg: cfg, writer: w}, nil
}

// SetLogger sets the logger for failed writes.
func (m *Mirror) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// BayAddress returns the first register of a bay's block.
func (m *Mirror) BayAddress(bay int) uint16 {
	return m.cfg.BaseAddress + uint16(bay)*m.cfg.BayStride //nolint:gosec // range checked in New
}

// HandleChange implements sbrc.ChangeSink.
func (m *Mirror) HandleChange(_ context.Context, _ sbrc.Change, snap sbrc.EntitySnapshot) {
	var err error
	switch snap.Kind {
	case sbrc.EntityCharger:
		err = m.WriteCharger(snap.Charger)
	case sbrc.EntityBay:
		if snap.ID < 1 || snap.ID > m.cfg.ActiveBays {
			return
		}
		err = m.WriteBay(snap.Bay)
	default:
		return
	}
	if err != nil {
		m.loggerMu.RLock()
		logger := m.logger
		m.loggerMu.RUnlock()
		if logger != nil {
			logger.Warn("modbus mirror write failed", "entity", sbrc.EntityName(snap.Kind, snap.ID), "error", err)
		}
	}
}

// WriteCharger writes the charger block.
func (m *Mirror) WriteCharger(ch sbrc.Charger) error {
	return m.writer.WriteRegisters(m.cfg.UnitID, m.cfg.BaseAddress, EncodeCharger(ch, m.cfg.ActiveBays))
}

// WriteBay writes one bay's block.
func (m *Mirror) WriteBay(b sbrc.Bay) error {
	return m.writer.WriteRegisters(m.cfg.UnitID, m.BayAddress(b.ID), EncodeBay(b))
}

// Sync writes the charger block and every active bay from the store, used
// after a (re)connect to the Modbus server or charger.
func (m *Mirror) Sync(store *sbrc.Store) error {
	if err := m.WriteCharger(store.Charger()); err != nil {
		return err
	}
	for id := 1; id <= m.cfg.ActiveBays; id++ {
		if err := m.WriteBay(store.Bay(id)); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying writer.
func (m *Mirror) Close() error {
	return m.writer.Close()
}
