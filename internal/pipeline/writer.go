package pipeline

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/wegman-software/osm2rdf-go/internal/logger"
	"github.com/wegman-software/osm2rdf-go/internal/metrics"
	"github.com/wegman-software/osm2rdf-go/internal/ttl"
)

// FileName returns the name of the output file with the given index
func FileName(index int) string {
	return fmt.Sprintf("osm-%06d.ttl.gz", index)
}

// Writer is the single consumer of rendered statements. It writes gzip
// compressed Turtle files into a directory, starting a new file once the
// uncompressed size of the current one exceeds maxSize.
type Writer struct {
	dir     string
	maxSize int64
	header  []byte
	log     *zap.Logger

	index   int
	cur     *outputFile
	size    int64
	subject []byte
	stats   WriterStats
}

type outputFile struct {
	path string
	f    *os.File
	gz   *gzip.Writer
	bw   *bufio.Writer
}

// NewWriter creates a writer for dir
func NewWriter(dir string, maxSize int) *Writer {
	return &Writer{
		dir:     dir,
		maxSize: int64(maxSize),
		header:  ttl.Header(),
		log:     logger.Named("writer"),
	}
}

// Run consumes batches until in is closed, then writes the trailer file
// carrying the newest element timestamp. On error the current file is
// closed and Run returns without draining in.
func (w *Writer) Run(in <-chan []Statement) (WriterStats, error) {
	for batch := range in {
		for i := range batch {
			if err := w.handle(&batch[i]); err != nil {
				w.abort()
				return w.stats, err
			}
		}
	}

	if err := w.closeCurrent(); err != nil {
		return w.stats, err
	}
	if err := w.writeTrailer(); err != nil {
		return w.stats, err
	}
	return w.stats, nil
}

func (w *Writer) handle(s *Statement) error {
	switch s.Kind {
	case Skip:
		return nil
	case Delete:
		w.stats.Deletes++
		w.log.Warn("Deleting elements is not supported",
			zap.String("element", s.Elem.Namespace()),
			zap.Int64("id", s.ID))
		return nil
	}

	if s.Timestamp > w.stats.MaxTimestamp {
		w.stats.MaxTimestamp = s.Timestamp
	}

	if w.cur == nil {
		if err := w.open(); err != nil {
			return err
		}
	}

	// "\n<ns>:<id>\n<body>"
	w.subject = append(w.subject[:0], '\n')
	w.subject = append(w.subject, s.Elem.Namespace()...)
	w.subject = append(w.subject, ':')
	w.subject = strconv.AppendInt(w.subject, s.ID, 10)
	w.subject = append(w.subject, '\n')

	n, err := w.cur.bw.Write(w.subject)
	if err == nil {
		var m int
		m, err = w.cur.bw.Write(s.Value)
		n += m
	}
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", w.cur.path, err)
	}
	w.account(n)

	if w.size > w.maxSize {
		return w.closeCurrent()
	}
	return nil
}

// open starts the next numbered file and writes the prefix header
func (w *Writer) open() error {
	path := filepath.Join(w.dir, FileName(w.index))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	w.index++

	gz := gzip.NewWriter(f)
	w.cur = &outputFile{
		path: path,
		f:    f,
		gz:   gz,
		bw:   bufio.NewWriterSize(gz, 256*1024),
	}
	w.size = 0
	w.stats.Files++
	metrics.OutputFilesTotal.Inc()
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	w.log.Info("Opened output file", zap.String("path", path))

	n, err := w.cur.bw.Write(w.header)
	if err != nil {
		return fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	w.account(n)
	return nil
}

func (w *Writer) account(n int) {
	w.size += int64(n)
	w.stats.Bytes += int64(n)
	metrics.OutputBytesTotal.Add(float64(n))
}

// closeCurrent flushes the compressor and closes the current file, if any
func (w *Writer) closeCurrent() error {
	if w.cur == nil {
		return nil
	}
	cur := w.cur
	w.cur = nil

	if err := cur.bw.Flush(); err != nil {
		cur.f.Close()
		return fmt.Errorf("failed to flush %s: %w", cur.path, err)
	}
	if err := cur.gz.Close(); err != nil {
		cur.f.Close()
		return fmt.Errorf("failed to finish gzip stream %s: %w", cur.path, err)
	}
	if err := cur.f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", cur.path, err)
	}
	w.log.Debug("Closed output file",
		zap.String("path", cur.path),
		zap.String("uncompressed", humanize.IBytes(uint64(w.size))))
	return nil
}

// abort closes the current file after a failure, ignoring further errors
func (w *Writer) abort() {
	if w.cur == nil {
		return
	}
	w.cur.gz.Close()
	w.cur.f.Close()
	w.cur = nil
}

// writeTrailer writes a separate file recording when the data was last modified
func (w *Writer) writeTrailer() error {
	if err := w.open(); err != nil {
		w.abort()
		return err
	}
	body := []byte("\nosmroot: schema:dateModified \"")
	body = ttl.AppendTimestamp(body, w.stats.MaxTimestamp)
	body = append(body, "\"^^xsd:dateTime.\n"...)

	n, err := w.cur.bw.Write(body)
	if err != nil {
		w.abort()
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	w.account(n)
	return w.closeCurrent()
}
