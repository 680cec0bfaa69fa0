package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/aluiziolira/go-scrape-products/models"
)

// TupleWriter prints one (name, price, stock) line per product.
type TupleWriter struct {
	out *bufio.Writer
	mu  sync.Mutex
}

// NewTupleWriter writes tuples to w, typically os.Stdout.
func NewTupleWriter(w io.Writer) *TupleWriter {
	return &TupleWriter{out: bufio.NewWriter(w)}
}

// Write prints each product on its own line.
func (tw *TupleWriter) Write(products []models.Product) error {
	tw.mu.Lock()
	defer tw.mu.Unlock()

	for _, product := range products {
		if _, err := fmt.Fprintln(tw.out, product.String()); err != nil {
			return fmt.Errorf("write tuple: %w", err)
		}
	}
	if err := tw.out.Flush(); err != nil {
		return fmt.Errorf("flush tuples: %w", err)
	}
	return nil
}

// Close flushes any buffered output. The underlying writer stays open.
func (tw *TupleWriter) Close() error {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return tw.out.Flush()
}

// Validate always succeeds; an empty result is a valid outcome.
func (tw *TupleWriter) Validate() error {
	return nil
}

// recordFile is the buffered output file behind the CSV and JSON writers.
type recordFile struct {
	mu   sync.Mutex
	name string
	file *os.File
	buf  *bufio.Writer
}

func createRecordFile(filename string) (*recordFile, error) {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", filename, err)
	}
	return &recordFile{name: filename, file: f, buf: bufio.NewWriter(f)}, nil
}

func (rf *recordFile) Close() error {
	rf.mu.Lock()
	defer rf.mu.Unlock()
	if err := rf.buf.Flush(); err != nil {
		rf.file.Close()
		return fmt.Errorf("flush %s: %w", rf.name, err)
	}
	return rf.file.Close()
}

func (rf *recordFile) Validate() error {
	if _, err := os.Stat(rf.name); err != nil {
		return fmt.Errorf("stat %s: %w", rf.name, err)
	}
	return nil
}

// CSVWriter writes one CSV row per product under a name,price,stock,page header.
type CSVWriter struct {
	*recordFile
	csv *csv.Writer
}

// NewCSVWriter creates filename and writes the header row.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	rf, err := createRecordFile(filename)
	if err != nil {
		return nil, err
	}
	cw := &CSVWriter{recordFile: rf, csv: csv.NewWriter(rf.buf)}
	if err := cw.csv.Write([]string{"name", "price", "stock", "page"}); err != nil {
		rf.file.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	cw.csv.Flush()
	return cw, nil
}

// Write appends one row per product.
func (cw *CSVWriter) Write(products []models.Product) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	for _, product := range products {
		row := []string{product.Name, product.Price, product.Stock, strconv.Itoa(product.Page)}
		if err := cw.csv.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.csv.Flush()
	return cw.csv.Error()
}

// JSONWriter writes one JSON object per product per line.
type JSONWriter struct {
	*recordFile
	enc *json.Encoder
}

// NewJSONWriter creates filename for JSONL output.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	rf, err := createRecordFile(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{recordFile: rf, enc: json.NewEncoder(rf.buf)}, nil
}

// Write appends one line per product.
func (jw *JSONWriter) Write(products []models.Product) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, product := range products {
		if err := jw.enc.Encode(product); err != nil {
			return fmt.Errorf("encode product: %w", err)
		}
	}
	return nil
}
