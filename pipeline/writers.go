package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/aluiziolira/go-scrape-books/models"
)

// CSVHeader is the column order of CSV output.
var CSVHeader = []string{
	"title",
	"category",
	"upc",
	"product_type",
	"price_excl_tax",
	"price_inc_tax",
	"tax",
	"availability",
	"num_reviews",
}

// CSVWriter writes records to CSV.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
	rows   int
	mu     sync.Mutex
}

// NewCSVWriter initialises a CSV writer and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(CSVHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:   f,
		writer: writer,
	}, nil
}

// Write appends books to the CSV output.
func (cw *CSVWriter) Write(books []*models.Book) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, book := range books {
		record := []string{
			book.Title,
			book.Category,
			book.UPC,
			book.ProductType,
			book.PriceExclTax,
			book.PriceInclTax,
			book.Tax,
			book.Availability,
			book.NumReviews,
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
		cw.rows++
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate reports whether the file exists and holds at least the header.
func (cw *CSVWriter) Validate() error {
	info, err := os.Stat(cw.file.Name())
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// Rows returns the number of data rows written.
func (cw *CSVWriter) Rows() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.rows
}

// JSONWriter streams records as one indented JSON array.
type JSONWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  int
	closed bool
	mu     sync.Mutex
}

// NewJSONWriter initialises the JSON writer and opens the array.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	if _, err := buffer.WriteString("["); err != nil {
		f.Close()
		return nil, fmt.Errorf("open json array: %w", err)
	}
	return &JSONWriter{
		file:   f,
		writer: buffer,
	}, nil
}

// Write appends books to the array.
func (jw *JSONWriter) Write(books []*models.Book) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, book := range books {
		data, err := json.MarshalIndent(book, "  ", "  ")
		if err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
		sep := ",\n  "
		if jw.count == 0 {
			sep = "\n  "
		}
		if _, err := jw.writer.WriteString(sep); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		if _, err := jw.writer.Write(data); err != nil {
			return fmt.Errorf("write json record: %w", err)
		}
		jw.count++
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return nil
}

// Close terminates the array, flushes buffers and closes the file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if jw.closed {
		return nil
	}
	jw.closed = true

	tail := "]\n"
	if jw.count > 0 {
		tail = "\n]\n"
	}
	if _, err := jw.writer.WriteString(tail); err != nil {
		jw.file.Close()
		return fmt.Errorf("close json array: %w", err)
	}
	if err := jw.writer.Flush(); err != nil {
		jw.file.Close()
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate checks that a closed file parses as a JSON array.
func (jw *JSONWriter) Validate() error {
	jw.mu.Lock()
	closed := jw.closed
	jw.mu.Unlock()

	data, err := os.ReadFile(jw.file.Name())
	if err != nil {
		return fmt.Errorf("read json file: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("json file is empty")
	}
	if !closed {
		return nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("json file is not an array: %w", err)
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
