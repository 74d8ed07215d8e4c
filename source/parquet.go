package source

import (
	"context"
	"io"
	"net/url"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/parquet-go/parquet-go"
	"howett.net/ranger"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// Record kinds of a stored batch value.
const (
	kindNull   int32 = 0
	kindBlock  int32 = 1
	kindScalar int32 = 2
)

// blockRecord is one column value of one batch. A parquet file holds the
// records of every batch in batch order, every column of a batch present.
type blockRecord struct {
	Batch  int64  `parquet:"batch"`
	Column int32  `parquet:"column"`
	Kind   int32  `parquet:"kind"`
	Data   []byte `parquet:"data"`
}

func newBlockRecord(batch int64, column int32, v interface{}) (blockRecord, error) {
	rec := blockRecord{Batch: batch, Column: column}
	switch x := v.(type) {
	case nil:
		rec.Kind = kindNull
	case []byte:
		rec.Kind = kindBlock
		rec.Data = x
	default:
		dt, ok := vectorized.TypeOf(v)
		if !ok {
			return rec, errors.Newf("batch %d column %d: cannot store %T", batch, column, v)
		}
		data, err := columnar.EncodeScalar(dt, v)
		if err != nil {
			return rec, errors.Wrapf(err, "batch %d column %d", batch, column)
		}
		rec.Kind = kindScalar
		rec.Data = data
	}
	return rec, nil
}

func (r *blockRecord) value() (interface{}, error) {
	switch r.Kind {
	case kindNull:
		return nil, nil
	case kindBlock:
		return append([]byte{}, r.Data...), nil
	case kindScalar:
		return columnar.DecodeScalar(r.Data)
	}
	return nil, errors.Newf("batch %d column %d has unknown kind %d", r.Batch, r.Column, r.Kind)
}

// WriteParquet stores batches in parquet format, zstd compressed.
func WriteParquet(w io.Writer, batches []*columnar.Batch) error {
	writer := parquet.NewGenericWriter[blockRecord](w, parquet.Compression(&parquet.Zstd))
	var records []blockRecord
	for bi, b := range batches {
		records = records[:0]
		for ci, v := range b.Values {
			rec, err := newBlockRecord(int64(bi), int32(ci), v)
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		if _, err := writer.Write(records); err != nil {
			return errors.Wrapf(err, "writing batch %d", bi)
		}
	}
	return errors.Wrap(writer.Close(), "closing parquet writer")
}

// WriteParquetFile creates path and stores batches in it.
func WriteParquetFile(path string, batches []*columnar.Batch) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "creating %s", path)
	}
	if err := WriteParquet(f, batches); err != nil {
		_ = f.Close()
		return err
	}
	return errors.Wrapf(f.Close(), "closing %s", path)
}

// ParquetSource reads the batches of a parquet file written by
// WriteParquet, from a local file or over HTTP range requests.
type ParquetSource struct {
	name   string
	file   *parquet.File
	reader *parquet.GenericReader[blockRecord]
	closer io.Closer
	logger log.Logger

	buf    []blockRecord
	pos, n int
	eof    bool
	closed bool
}

const recordBufferSize = 256

// NewParquetSource reads batches from a parquet file of the given size.
func NewParquetSource(name string, r io.ReaderAt, size int64) (*ParquetSource, error) {
	file, err := parquet.OpenFile(r, size)
	if err != nil {
		return nil, errors.Wrapf(err, "opening parquet file %s", name)
	}
	return &ParquetSource{
		name:   name,
		file:   file,
		reader: parquet.NewGenericReader[blockRecord](file),
		logger: log.NewNopLogger(),
		buf:    make([]blockRecord, recordBufferSize),
	}, nil
}

// OpenParquetFile opens a local parquet file.
func OpenParquetFile(path string) (*ParquetSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s", path)
	}
	stat, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "stat %s", path)
	}
	s, err := NewParquetSource(path, f, stat.Size())
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// OpenParquetURL reads a remote parquet file with HTTP range requests. The
// server must accept byte ranges and send a strong ETag or a Last-Modified
// header, which every later range request is checked against.
func OpenParquetURL(rawURL string) (*ParquetSource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing URL %q", rawURL)
	}
	reader, err := ranger.NewReader(&ranger.HTTPRanger{URL: u})
	if err != nil {
		return nil, errors.Wrapf(err, "creating HTTP reader for %s", rawURL)
	}
	length, err := reader.Length()
	if err != nil {
		return nil, errors.Wrapf(err, "getting content length of %s", rawURL)
	}
	return NewParquetSource(rawURL, reader, length)
}

// WithLogger sets the logger used for scan events.
func (s *ParquetSource) WithLogger(l log.Logger) *ParquetSource {
	s.logger = log.With(l, "source", s.name)
	return s
}

// Records is the number of stored column values.
func (s *ParquetSource) Records() int64 {
	return s.file.NumRows()
}

func (s *ParquetSource) fill() error {
	if s.pos < s.n || s.eof {
		return nil
	}
	n, err := s.reader.Read(s.buf)
	s.pos, s.n = 0, n
	if err == io.EOF {
		s.eof = true
		return nil
	}
	return errors.Wrapf(err, "reading %s", s.name)
}

// Next assembles the records of the next batch.
func (s *ParquetSource) Next(ctx context.Context) (*columnar.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.closed {
		return nil, errors.Newf("parquet source %s is closed", s.name)
	}
	var (
		values []interface{}
		batch  int64 = -1
	)
	for {
		if err := s.fill(); err != nil {
			return nil, err
		}
		if s.pos >= s.n {
			break
		}
		rec := &s.buf[s.pos]
		if batch >= 0 && rec.Batch != batch {
			break
		}
		if rec.Column < 0 {
			return nil, errors.Newf("batch %d has negative column %d", rec.Batch, rec.Column)
		}
		batch = rec.Batch
		v, err := rec.value()
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", s.name)
		}
		for len(values) <= int(rec.Column) {
			values = append(values, nil)
		}
		values[rec.Column] = v
		s.pos++
	}
	if batch < 0 {
		return nil, io.EOF
	}
	return columnar.NewBatch(values...), nil
}

func (s *ParquetSource) Rescan(ctx context.Context) error {
	if s.closed {
		return errors.Newf("parquet source %s is closed", s.name)
	}
	s.reader.Reset()
	s.pos, s.n, s.eof = 0, 0, false
	level.Debug(s.logger).Log("msg", "parquet source rewound")
	return nil
}

func (s *ParquetSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.reader.Close()
	if s.closer != nil {
		if cerr := s.closer.Close(); err == nil {
			err = cerr
		}
	}
	return errors.Wrapf(err, "closing %s", s.name)
}
