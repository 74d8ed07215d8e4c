package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/spf13/viper"

	"github.com/rohan-flutterint/timescaledb-core/columnar"
	"github.com/rohan-flutterint/timescaledb-core/decompress"
	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/planner"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// tableConfig describes the compressed table. Columns are "name:TYPE",
// orderby entries "name [asc|desc] [nulls first|last]".
type tableConfig struct {
	Columns    []string          `mapstructure:"columns"`
	SegmentBy  []string          `mapstructure:"segmentby"`
	OrderBy    []string          `mapstructure:"orderby"`
	Algorithms map[string]string `mapstructure:"algorithms"`
}

type scanConfig struct {
	SortedMerge  bool   `mapstructure:"sorted-merge"`
	Bulk         bool   `mapstructure:"bulk"`
	VectorQuals  string `mapstructure:"vector-quals"`
	MaxBatchRows int    `mapstructure:"max-batch-rows"`
	BatchMemory  int    `mapstructure:"batch-memory"`
}

type config struct {
	LogLevel string      `mapstructure:"log-level"`
	Table    tableConfig `mapstructure:"table"`
	Scan     scanConfig  `mapstructure:"scan"`
}

// The default table is the one the generate command writes.
func setDefaults(v *viper.Viper) {
	v.SetDefault("log-level", "info")
	v.SetDefault("table.columns", []string{"device:STRING", "time:TIMESTAMP", "value:FLOAT64", "temp:INT32"})
	v.SetDefault("table.segmentby", []string{"device"})
	v.SetDefault("table.orderby", []string{"time"})
	v.SetDefault("table.algorithms", map[string]string{})
	v.SetDefault("scan.sorted-merge", true)
	v.SetDefault("scan.bulk", true)
	v.SetDefault("scan.vector-quals", "allow")
	v.SetDefault("scan.max-batch-rows", decompress.DefaultMaxBatchRows)
	v.SetDefault("scan.batch-memory", decompress.DefaultBatchMemoryLimit)
}

// initConfig layers defaults, the optional config file and TSDECOMPRESS_
// environment variables. Bound flags override all of them.
func initConfig() error {
	setDefaults(v)
	v.SetEnvPrefix("TSDECOMPRESS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "reading config %s", cfgFile)
	}
	return nil
}

func loadConfig(v *viper.Viper) (*config, error) {
	var c config
	if err := v.Unmarshal(&c); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &c, nil
}

// settings converts the table section.
func (t tableConfig) settings() (*planner.CompressionSettings, error) {
	s := &planner.CompressionSettings{SegmentBy: t.SegmentBy}
	for _, c := range t.Columns {
		name, typ, ok := strings.Cut(c, ":")
		if !ok {
			return nil, errors.Newf("column %q is not name:TYPE", c)
		}
		dt, err := vectorized.ParseDataType(strings.ToUpper(strings.TrimSpace(typ)))
		if err != nil {
			return nil, errors.Wrapf(err, "column %s", name)
		}
		s.Table = append(s.Table, planner.ColumnInfo{Name: strings.TrimSpace(name), Type: dt})
	}
	for _, o := range t.OrderBy {
		col, err := parseOrderColumn(o)
		if err != nil {
			return nil, err
		}
		s.OrderBy = append(s.OrderBy, col)
	}
	if len(t.Algorithms) > 0 {
		s.Algorithms = make(map[string]columnar.Algorithm, len(t.Algorithms))
		for name, a := range t.Algorithms {
			alg, err := columnar.ParseAlgorithm(strings.ToLower(a))
			if err != nil {
				return nil, errors.Wrapf(err, "column %s", name)
			}
			s.Algorithms[name] = alg
		}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func parseOrderColumn(s string) (planner.OrderColumn, error) {
	fields := strings.Fields(strings.ToLower(s))
	if len(fields) == 0 {
		return planner.OrderColumn{}, errors.New("empty orderby entry")
	}
	o := planner.OrderColumn{Column: fields[0]}
	rest := fields[1:]
	if len(rest) > 0 && (rest[0] == "asc" || rest[0] == "desc") {
		o.Descending = rest[0] == "desc"
		rest = rest[1:]
	}
	o.NullsFirst = o.Descending
	switch strings.Join(rest, " ") {
	case "":
	case "nulls first":
		o.NullsFirst = true
	case "nulls last":
		o.NullsFirst = false
	default:
		return planner.OrderColumn{}, errors.Newf("invalid orderby entry %q", s)
	}
	return o, nil
}

// options converts the scan section.
func (s scanConfig) options() (planner.Options, error) {
	mode, err := decompress.ParseVectorQualMode(s.VectorQuals)
	if err != nil {
		return planner.Options{}, err
	}
	opts := planner.DefaultOptions()
	opts.EnableSortedMerge = s.SortedMerge
	opts.EnableBulkDecompression = s.Bulk
	opts.VectorQuals = mode
	opts.MaxBatchRows = s.MaxBatchRows
	opts.BatchMemoryLimit = s.BatchMemory
	return opts, nil
}

// parseParams reads $n values given as n=value. Values are integers,
// floats, true/false or strings.
func parseParams(in []string) (expr.Params, error) {
	params := make(expr.Params, len(in))
	for _, p := range in {
		k, raw, ok := strings.Cut(p, "=")
		if !ok {
			return nil, errors.Newf("parameter %q is not n=value", p)
		}
		id, err := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(k), "$"))
		if err != nil || id <= 0 {
			return nil, errors.Newf("invalid parameter number in %q", p)
		}
		params[id] = parseParamValue(raw)
	}
	return params, nil
}

func parseParamValue(raw string) interface{} {
	if strings.EqualFold(raw, "null") {
		return nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
