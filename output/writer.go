package output

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/docvellum/vellum/abi"
	"github.com/docvellum/vellum/manifest"
	"github.com/docvellum/vellum/stage"
)

// Format selects one of the three CLI-selectable output encodings.
type Format int

const (
	FormatJSON Format = iota
	FormatScheme
	FormatCSV
)

// ParseFormat parses the configuration surface's outputFormat value.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json":
		return FormatJSON, nil
	case "scheme":
		return FormatScheme, nil
	case "csv":
		return FormatCSV, nil
	default:
		return 0, fmt.Errorf("output: unknown format %q", s)
	}
}

func (f Format) extension() string {
	switch f {
	case FormatScheme:
		return "scm"
	case FormatCSV:
		return "csv"
	default:
		return "json"
	}
}

// defaultBufferBytes is §4.8's per-shard buffer bound.
const defaultBufferBytes = 4 << 20

// defaultFlushInterval is §4.8's time-triggered flush cadence.
const defaultFlushInterval = 5 * time.Second

// defaultRotateBytes is §4.8's per-shard rotation threshold.
const defaultRotateBytes = 1 << 30

// Options configures a Writer.
type Options struct {
	OutputDir     string
	NodeID        string
	Format        Format
	BufferBytes   int
	FlushInterval time.Duration
	RotateBytes   int64
}

// Writer is the sharded, per-content-kind output writer a Dispatcher
// calls once per successfully parsed document. Exactly one shard exists
// per observed ContentKind; a document appears in exactly one shard,
// written and flushed before the caller appends its checkpoint entry
// (§4.8's checkpoint-before-ack ordering is the caller's responsibility —
// Write itself always flushes the underlying gzip frame before
// returning, so a successful Write has durably reached the shard file's
// buffer by the time it returns).
type Writer struct {
	opts Options

	mu     sync.Mutex
	shards map[string]*shard
}

// New builds a Writer. BufferBytes, FlushInterval, and RotateBytes
// default to §4.8's stated values when zero.
func New(opts Options) *Writer {
	if opts.BufferBytes <= 0 {
		opts.BufferBytes = defaultBufferBytes
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.RotateBytes <= 0 {
		opts.RotateBytes = defaultRotateBytes
	}
	return &Writer{opts: opts, shards: make(map[string]*shard)}
}

// Write encodes entry's outcome in the configured format, appends it to
// the shard for its content kind and flushes the shard, then rotates the
// shard file once the bytes written to it have reached RotateBytes.
func (w *Writer) Write(entry manifest.Entry, parseResult *abi.ParseResult, stageResults stage.Results) error {
	rec := BuildRecord(entry, parseResult, stageResults)

	var encoded []byte
	switch w.opts.Format {
	case FormatScheme:
		encoded = EncodeScheme(rec)
	case FormatCSV:
		encoded = nil // csv rows are written through encoding/csv directly, below
	default:
		b, err := jsonMarshalLine(rec)
		if err != nil {
			return fmt.Errorf("output: encode json: %w", err)
		}
		encoded = b
	}

	s, err := w.shardFor(rec.ContentKind)
	if err != nil {
		return fmt.Errorf("output: open shard: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if w.opts.Format == FormatCSV {
		if err := s.writeCSVRowLocked(rec); err != nil {
			return err
		}
	} else {
		if err := s.writeLocked(encoded); err != nil {
			return err
		}
	}
	if err := s.flushLocked(); err != nil {
		return err
	}

	if s.bytesWritten >= w.opts.RotateBytes {
		if err := s.rotateLocked(); err != nil {
			return fmt.Errorf("output: rotate shard: %w", err)
		}
	}
	return nil
}

// Flush flushes every open shard's buffered writer without rotating.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.shards {
		if err := s.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes every open shard.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.shards {
		if err := s.close(); err != nil {
			return err
		}
	}
	return nil
}

// Run periodically flushes every shard until stop fires, satisfying
// §4.8's time-triggered flush trigger for shards that see infrequent
// writes.
func (w *Writer) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(w.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			_ = w.Flush()
		}
	}
}

func (w *Writer) shardFor(contentKind string) (*shard, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if s, ok := w.shards[contentKind]; ok {
		return s, nil
	}
	s, err := newShard(w.opts, contentKind)
	if err != nil {
		return nil, err
	}
	w.shards[contentKind] = s
	return s, nil
}

// shard is one (node, content-kind) append-only output stream: a
// gzip-compressed, bounded-buffer file that rotates to a new sequence
// suffix once it crosses RotateBytes.
type shard struct {
	mu sync.Mutex

	opts        Options
	contentKind string
	seq         int

	file         *os.File
	gz           *gzip.Writer
	buf          *bufio.Writer
	csv          *csv.Writer
	bytesWritten int64
	wroteHeader  bool
}

func newShard(opts Options, contentKind string) (*shard, error) {
	s := &shard{opts: opts, contentKind: contentKind}
	if err := s.openLocked(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *shard) shardPath() string {
	name := fmt.Sprintf("%s-%s-%04d.%s.gz", s.opts.NodeID, s.contentKind, s.seq, s.opts.Format.extension())
	return filepath.Join(s.opts.OutputDir, name)
}

func (s *shard) openLocked() error {
	if err := os.MkdirAll(s.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("output: create output dir: %w", err)
	}
	f, err := os.OpenFile(s.shardPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("output: create shard file: %w", err)
	}
	gz, err := gzip.NewWriterLevel(f, gzip.BestSpeed)
	if err != nil {
		f.Close()
		return fmt.Errorf("output: new gzip writer: %w", err)
	}
	s.file = f
	s.gz = gz
	s.buf = bufio.NewWriterSize(gz, s.opts.BufferBytes)
	s.bytesWritten = 0
	s.wroteHeader = false
	if s.opts.Format == FormatCSV {
		s.csv = csv.NewWriter(s.buf)
		if err := s.csv.Write(csvHeader); err != nil {
			return fmt.Errorf("output: write csv header: %w", err)
		}
		s.wroteHeader = true
	}
	return nil
}

func (s *shard) writeLocked(encoded []byte) error {
	n, err := s.buf.Write(encoded)
	s.bytesWritten += int64(n)
	if err != nil {
		return fmt.Errorf("output: write shard record: %w", err)
	}
	if s.buf.Buffered() >= s.opts.BufferBytes {
		return s.flushLocked()
	}
	return nil
}

func (s *shard) writeCSVRowLocked(rec Record) error {
	row := csvRow(rec)
	if err := s.csv.Write(row); err != nil {
		return fmt.Errorf("output: write csv row: %w", err)
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return fmt.Errorf("output: flush csv writer: %w", err)
	}
	var n int
	for _, f := range row {
		n += len(f) + 1
	}
	s.bytesWritten += int64(n)
	if s.buf.Buffered() >= s.opts.BufferBytes {
		return s.flushLocked()
	}
	return nil
}

func (s *shard) flushLocked() error {
	if err := s.buf.Flush(); err != nil {
		return fmt.Errorf("output: flush buffer: %w", err)
	}
	if err := s.gz.Flush(); err != nil {
		return fmt.Errorf("output: flush gzip frame: %w", err)
	}
	return nil
}

func (s *shard) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *shard) rotateLocked() error {
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.gz.Close(); err != nil {
		return fmt.Errorf("output: close gzip writer: %w", err)
	}
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("output: close shard file: %w", err)
	}
	s.seq++
	return s.openLocked()
}

func (s *shard) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.gz.Close(); err != nil {
		return fmt.Errorf("output: close gzip writer: %w", err)
	}
	return s.file.Close()
}
