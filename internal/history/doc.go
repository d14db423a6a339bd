// Package history persists the charger's bay state transitions and the
// commands sent to it in SQLite.
//
// History is write-mostly and read only by the API. It is never used to
// restore the live store: the charger's own GET 0 ALL report on connect is
// the source of truth.
//
// BayHistory is a bridge change sink and CommandAudit is the bridge's
// command recorder. Both expect the schema from the migrations package.
package history
