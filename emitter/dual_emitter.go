package emitter

import (
	"fmt"
	"io"
	"sync"

	"ebay-completed-tap/models"
)

// DualEmitter streams messages to stdout and mirrors them into a file, for
// runs that pipe into a target while keeping a local copy.
type DualEmitter struct {
	stream *StreamEmitter
	mirror *StreamEmitter
	mu     sync.Mutex
}

// NewDualEmitter creates a dual emitter over a caller-owned writer and a
// mirror file.
func NewDualEmitter(w io.Writer, filename string) (*DualEmitter, error) {
	mirror, err := NewFileEmitter(filename)
	if err != nil {
		return nil, fmt.Errorf("create mirror emitter: %w", err)
	}

	return &DualEmitter{
		stream: NewStreamEmitter(w),
		mirror: mirror,
	}, nil
}

// WriteSchema declares the schema on both outputs.
func (de *DualEmitter) WriteSchema() error {
	de.mu.Lock()
	defer de.mu.Unlock()

	if err := de.stream.WriteSchema(); err != nil {
		return fmt.Errorf("stream schema failed: %w", err)
	}
	if err := de.mirror.WriteSchema(); err != nil {
		return fmt.Errorf("mirror schema failed: %w", err)
	}
	return nil
}

// Write forwards a batch to both outputs.
func (de *DualEmitter) Write(listings []*models.Listing) error {
	de.mu.Lock()
	defer de.mu.Unlock()

	if err := de.stream.Write(listings); err != nil {
		return fmt.Errorf("stream write failed: %w", err)
	}
	if err := de.mirror.Write(listings); err != nil {
		return fmt.Errorf("mirror write failed: %w", err)
	}
	return nil
}

// Close closes both outputs.
func (de *DualEmitter) Close() error {
	de.mu.Lock()
	defer de.mu.Unlock()

	var errs []error

	if err := de.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("stream close failed: %w", err))
	}
	if err := de.mirror.Close(); err != nil {
		errs = append(errs, fmt.Errorf("mirror close failed: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates the mirror file.
func (de *DualEmitter) Validate() error {
	if err := de.mirror.Validate(); err != nil {
		return fmt.Errorf("mirror validation failed: %w", err)
	}
	return nil
}
