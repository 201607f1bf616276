// Package emitter streams Singer-style schema and record messages to a
// downstream sink.
package emitter

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"ebay-completed-tap/models"
)

// Stream is the name the downstream target ingests records under.
const Stream = "completed_item_schema"

type schemaMessage struct {
	Type          string   `json:"type"`
	Stream        string   `json:"stream"`
	Schema        schema   `json:"schema"`
	KeyProperties []string `json:"key_properties"`
}

type recordMessage struct {
	Type   string          `json:"type"`
	Stream string          `json:"stream"`
	Record *models.Listing `json:"record"`
}

type schema struct {
	Properties map[string]property `json:"properties"`
}

type property struct {
	Type string `json:"type"`
}

func listingSchema() schema {
	return schema{Properties: map[string]property{
		"search_term": {Type: "string"},
		"title":       {Type: "string"},
		"price":       {Type: "string"},
		"bids":        {Type: "string"},
		"buy_it_now":  {Type: "boolean"},
		"condition":   {Type: "string"},
		"image":       {Type: "string"},
		"link":        {Type: "string"},
		"ebay_id":     {Type: "string"},
		"end_date":    {Type: "string"},
		"has_sold":    {Type: "boolean"},
		"sku":         {Type: "string"},
	}}
}

// StreamEmitter writes newline-delimited messages to a writer, declaring
// the schema exactly once before any records.
type StreamEmitter struct {
	writer  *bufio.Writer
	encoder *json.Encoder
	file    *os.File // nil when writing to a caller-owned writer

	mu         sync.Mutex
	schemaSent bool
}

// NewStreamEmitter wraps a caller-owned writer, usually stdout.
func NewStreamEmitter(w io.Writer) *StreamEmitter {
	buffer := bufio.NewWriter(w)
	return &StreamEmitter{
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
	}
}

// NewFileEmitter mirrors the message stream into a file.
func NewFileEmitter(filename string) (*StreamEmitter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	return &StreamEmitter{
		writer:  buffer,
		encoder: json.NewEncoder(buffer),
		file:    f,
	}, nil
}

// WriteSchema declares the record schema. Repeat calls are no-ops so the
// declaration happens exactly once per run.
func (se *StreamEmitter) WriteSchema() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if se.schemaSent {
		return nil
	}
	msg := schemaMessage{
		Type:          "SCHEMA",
		Stream:        Stream,
		Schema:        listingSchema(),
		KeyProperties: []string{"ebay_id"},
	}
	if err := se.encoder.Encode(msg); err != nil {
		return fmt.Errorf("encode schema message: %w", err)
	}
	if err := se.writer.Flush(); err != nil {
		return fmt.Errorf("flush schema message: %w", err)
	}
	se.schemaSent = true
	return nil
}

// Write appends one record message per listing. An empty batch is allowed
// and writes nothing.
func (se *StreamEmitter) Write(listings []*models.Listing) error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if !se.schemaSent {
		return fmt.Errorf("schema must be declared before records")
	}

	for _, listing := range listings {
		msg := recordMessage{
			Type:   "RECORD",
			Stream: Stream,
			Record: listing,
		}
		if err := se.encoder.Encode(msg); err != nil {
			return fmt.Errorf("encode record message: %w", err)
		}
	}

	if err := se.writer.Flush(); err != nil {
		return fmt.Errorf("flush record messages: %w", err)
	}
	return nil
}

// Close flushes buffers and closes the underlying file when one is owned.
func (se *StreamEmitter) Close() error {
	se.mu.Lock()
	defer se.mu.Unlock()

	if err := se.writer.Flush(); err != nil {
		return fmt.Errorf("flush emitter: %w", err)
	}
	if se.file != nil {
		return se.file.Close()
	}
	return nil
}

// Validate ensures a file-backed emitter produced output.
func (se *StreamEmitter) Validate() error {
	if se.file == nil {
		return nil
	}
	info, err := se.file.Stat()
	if err != nil {
		return fmt.Errorf("stat output file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("output file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
