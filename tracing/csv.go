package tracing

import (
	"fmt"
	"os"
	"sync"

	"github.com/tebeka/atexit"
)

var csvHeader = "trace_id,handle_index,handle_generation,fire_time,error\n"

// CSVWriter buffers FireRecords and periodically flushes them to a
// CSV file.
type CSVWriter struct {
	path       string
	bufferSize int

	mu      sync.Mutex
	file    *os.File
	records []FireRecord
}

// NewCSVWriter creates path, writes the header row, and registers an
// atexit hook that flushes any buffered records and closes the file.
func NewCSVWriter(path string, bufferSize int) (*CSVWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("tracing: create csv trace file: %w", err)
	}
	if _, err := f.WriteString(csvHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("tracing: write csv header: %w", err)
	}

	w := &CSVWriter{path: path, bufferSize: bufferSize, file: f}
	atexit.Register(func() {
		_ = w.Flush()
		_ = w.file.Close()
	})
	return w, nil
}

// Write buffers rec and flushes automatically once bufferSize rows
// have accumulated.
func (w *CSVWriter) Write(rec FireRecord) error {
	w.mu.Lock()
	w.records = append(w.records, rec)
	full := len(w.records) >= w.bufferSize
	w.mu.Unlock()

	if full {
		return w.Flush()
	}
	return nil
}

// Flush writes every buffered record to disk and empties the buffer.
func (w *CSVWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, rec := range w.records {
		_, err := fmt.Fprintf(w.file, "%s,%d,%d,%d,%s\n",
			rec.TraceID, rec.Handle.Index, rec.Handle.Generation, rec.FireTime, rec.Err)
		if err != nil {
			return fmt.Errorf("tracing: write csv row: %w", err)
		}
	}
	w.records = w.records[:0]
	return nil
}
