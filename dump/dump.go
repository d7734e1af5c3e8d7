// Package dump materializes query results into columnar dump files and
// reads them back for load. The Parquet and Arrow writers are external
// collaborators plugged in through the factory registry; the built-in CSV
// writer serves debugging and the round-trip tests. Dump metadata reaches
// the client as a single file_name column.
package dump

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	sqlexec "github.com/mstgnz/sqlexec"
	"github.com/mstgnz/sqlexec/decimal"
	"github.com/mstgnz/sqlexec/record"
)

// Format selects the dump file format.
type Format int

const (
	FormatParquet Format = iota
	FormatArrow
	FormatCSV
)

// String names the format.
func (f Format) String() string {
	switch f {
	case FormatParquet:
		return "parquet"
	case FormatArrow:
		return "arrow"
	case FormatCSV:
		return "csv"
	}
	return "unknown"
}

// Config is the dump configuration.
type Config struct {
	Directory                      string
	Format                         Format
	MaxRecordsPerFile              int  // records before the writer rotates files
	RecordBatchSize                int  // records per row group / record batch
	ArrowUseFixedSizeBinaryForChar bool // encode CHAR(n) as fixed size binary
	KeepFilesOnError               bool // keep partial files when a dump fails
}

func (c *Config) normalize() {
	if c.MaxRecordsPerFile <= 0 {
		c.MaxRecordsPerFile = 10000
	}
	if c.RecordBatchSize <= 0 {
		c.RecordBatchSize = 1000
	}
}

// Writer produces one dump file.
type Writer interface {
	WriteBatch(records []*record.Record) error
	Close() error
}

// WriterFactory opens a writer for one output file.
type WriterFactory func(cfg Config, meta *record.Meta, path string) (Writer, error)

var factories = struct {
	sync.RWMutex
	byFormat map[Format]WriterFactory
}{byFormat: make(map[Format]WriterFactory)}

// RegisterWriterFactory plugs a format implementation in. The Parquet and
// Arrow engines register here during boot.
func RegisterWriterFactory(format Format, factory WriterFactory) {
	factories.Lock()
	defer factories.Unlock()
	factories.byFormat[format] = factory
}

func factoryFor(format Format) (WriterFactory, error) {
	factories.RLock()
	defer factories.RUnlock()
	f, ok := factories.byFormat[format]
	if !ok {
		return nil, errors.Errorf("no writer registered for %s", format)
	}
	return f, nil
}

func init() {
	RegisterWriterFactory(FormatCSV, newCSVWriter)
}

// FileMeta is the layout of the emitted dump metadata: one file_name column.
func FileMeta() *record.Meta {
	return record.NewNamedMeta([]string{"file_name"}, []sqlexec.Type{sqlexec.CharacterType(0, true)})
}

// Dump writes the records into rotated files and returns the produced
// paths. On error the partial files are removed unless KeepFilesOnError.
func Dump(records []*record.Record, meta *record.Meta, cfg Config) (files []string, retErr error) {
	cfg.normalize()
	defer func() {
		if retErr != nil && !cfg.KeepFilesOnError {
			for _, f := range files {
				_ = os.Remove(f)
			}
			files = nil
		}
	}()
	factory, err := factoryFor(cfg.Format)
	if err != nil {
		return nil, err
	}
	for start := 0; start < len(records) || start == 0; start += cfg.MaxRecordsPerFile {
		end := start + cfg.MaxRecordsPerFile
		if end > len(records) {
			end = len(records)
		}
		path := filepath.Join(cfg.Directory, uuid.NewString()+"."+cfg.Format.String())
		w, err := factory(cfg, meta, path)
		if err != nil {
			return files, err
		}
		files = append(files, path)
		for batch := start; batch < end; batch += cfg.RecordBatchSize {
			batchEnd := batch + cfg.RecordBatchSize
			if batchEnd > end {
				batchEnd = end
			}
			if err := w.WriteBatch(records[batch:batchEnd]); err != nil {
				_ = w.Close()
				return files, err
			}
		}
		if err := w.Close(); err != nil {
			return files, err
		}
		if len(records) == 0 {
			break
		}
	}
	return files, nil
}

// csvWriter is the debugging writer.
type csvWriter struct {
	file *os.File
	w    *csv.Writer
	meta *record.Meta
}

func newCSVWriter(cfg Config, meta *record.Meta, path string) (Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "creating dump directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "creating dump file")
	}
	return &csvWriter{file: f, w: csv.NewWriter(f), meta: meta}, nil
}

// WriteBatch implements Writer.
func (c *csvWriter) WriteBatch(records []*record.Record) error {
	for _, rec := range records {
		row := make([]string, c.meta.FieldCount())
		for i := range row {
			row[i] = formatField(rec.Get(i))
		}
		if err := c.w.Write(row); err != nil {
			return errors.Wrap(err, "writing dump row")
		}
	}
	return nil
}

// Close implements Writer.
func (c *csvWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		_ = c.file.Close()
		return err
	}
	return c.file.Close()
}

const nullField = "\\N"

func formatField(v sqlexec.Value) string {
	if v.Empty() {
		return nullField
	}
	switch v.Kind() {
	case sqlexec.TypeBoolean:
		return strconv.FormatBool(v.Bool())
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		return strconv.FormatInt(int64(v.Int4()), 10)
	case sqlexec.TypeInt8:
		return strconv.FormatInt(v.Int8(), 10)
	case sqlexec.TypeFloat4:
		return strconv.FormatFloat(float64(v.Float4()), 'g', -1, 32)
	case sqlexec.TypeFloat8:
		return strconv.FormatFloat(v.Float8(), 'g', -1, 64)
	case sqlexec.TypeDecimal:
		return decimal.Format(v.Decimal())
	}
	return v.String()
}

// Load reads one CSV dump file back as typed records.
func Load(path string, meta *record.Meta) ([]*record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening dump file")
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "reading dump file")
	}
	out := make([]*record.Record, 0, len(rows))
	for _, row := range rows {
		if len(row) != meta.FieldCount() {
			return nil, errors.Errorf("dump row has %d fields, layout has %d", len(row), meta.FieldCount())
		}
		rec := record.NewRecord(meta)
		for i, text := range row {
			v, err := parseField(text, meta.Type(i))
			if err != nil {
				return nil, err
			}
			rec.Set(i, v)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseField(text string, t sqlexec.Type) (sqlexec.Value, error) {
	if text == nullField {
		return sqlexec.Null(), nil
	}
	switch t.Kind {
	case sqlexec.TypeBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return sqlexec.Value{}, errors.Wrap(err, "parsing boolean field")
		}
		return sqlexec.BooleanValue(b), nil
	case sqlexec.TypeInt1, sqlexec.TypeInt2, sqlexec.TypeInt4:
		v, err := strconv.ParseInt(text, 10, 32)
		if err != nil {
			return sqlexec.Value{}, errors.Wrap(err, "parsing integer field")
		}
		return sqlexec.Int4Value(int32(v)), nil
	case sqlexec.TypeInt8:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return sqlexec.Value{}, errors.Wrap(err, "parsing integer field")
		}
		return sqlexec.Int8Value(v), nil
	case sqlexec.TypeFloat4:
		v, err := strconv.ParseFloat(text, 32)
		if err != nil {
			return sqlexec.Value{}, errors.Wrap(err, "parsing float field")
		}
		return sqlexec.Float4Value(float32(v)), nil
	case sqlexec.TypeFloat8:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return sqlexec.Value{}, errors.Wrap(err, "parsing float field")
		}
		return sqlexec.Float8Value(v), nil
	case sqlexec.TypeDecimal:
		d, st := decimal.Parse(text)
		if st.Syntax() {
			return sqlexec.Value{}, errors.Errorf("parsing decimal field %q", text)
		}
		return sqlexec.DecimalValue(d), nil
	case sqlexec.TypeCharacter:
		return sqlexec.CharacterValue(text), nil
	}
	return sqlexec.Value{}, errors.Errorf("dump load does not handle %s", t.Kind)
}
