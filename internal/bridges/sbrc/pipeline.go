package sbrc

import "errors"

// Pipeline runs framing, decoding and state application for one connection.
// It is not safe for concurrent use; Feed must be called in arrival order.
type Pipeline struct {
	reader FrameReader
	store  *Store

	// Messages counts every framed message, including ignored ones.
	Messages uint64
	// Applied counts updates the store accepted.
	Applied uint64
}

// NewPipeline creates a pipeline writing into store.
func NewPipeline(store *Store) *Pipeline {
	return &Pipeline{store: store}
}

// Store returns the store the pipeline writes into.
func (p *Pipeline) Store() *Store {
	return p.store
}

// Feed processes a chunk of received data. Every complete message is
// decoded and applied in order. A failing field does not stop the rest of
// the chunk; all field errors are returned joined.
func (p *Pipeline) Feed(chunk string) error {
	var errs []error
	for _, msg := range p.reader.Feed(chunk) {
		p.Messages++
		u, ok := Decode(msg)
		if !ok {
			continue
		}
		if err := p.store.Apply(u); err != nil {
			errs = append(errs, err)
			continue
		}
		p.Applied++
	}
	return errors.Join(errs...)
}

// Reset discards any partial message, e.g. after a reconnect.
func (p *Pipeline) Reset() {
	p.reader.Reset()
}
