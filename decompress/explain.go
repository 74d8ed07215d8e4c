package decompress

import (
	"strconv"
	"strings"
)

// ExplainField is one key/value line of the diagnostic dump.
type ExplainField struct {
	Key   string
	Value string
}

// Explain describes how an open operator executes.
type Explain struct {
	Fields []ExplainField
}

// Get returns the value of a field.
func (e Explain) Get(key string) (string, bool) {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (e Explain) String() string {
	var sb strings.Builder
	for _, f := range e.Fields {
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// Explain returns the diagnostic dump. Before Open only the scan id and
// state are known.
func (o *Operator) Explain() Explain {
	var e Explain
	add := func(key, value string) {
		e.Fields = append(e.Fields, ExplainField{Key: key, Value: value})
	}
	if !o.opened {
		add("Scan ID", o.id.String())
		add("State", o.state.String())
		return e
	}

	add("Queue", o.queueName())
	add("Sorted merge append", strconv.FormatBool(o.cfg.SortedMerge))
	add("Bulk Decompression", strconv.FormatBool(o.sc.bulk))
	if len(o.quals.vector) > 0 {
		parts := make([]string, len(o.quals.vector))
		for i, q := range o.quals.vector {
			parts[i] = q.source.String()
		}
		add("Vectorized Filter", strings.Join(parts, " AND "))
	}
	if len(o.quals.row) > 0 {
		parts := make([]string, len(o.quals.row))
		for i, q := range o.quals.row {
			parts[i] = q.String()
		}
		add("Filter", strings.Join(parts, " AND "))
	}
	if o.quals.constantFalse {
		add("One-Time Filter", "false")
	}
	add("Vectorized Aggregation", strconv.FormatBool(o.agg != nil))

	cols := make([]string, len(o.sc.table.columns))
	for i, c := range o.sc.table.columns {
		desc := c.Name + ":" + c.Role.String()
		if c.Role == CompressedValue && c.BulkDecompression {
			desc += "(bulk)"
		}
		cols[i] = desc
	}
	add("Columns", strings.Join(cols, ", "))
	add("Batch memory", strconv.Itoa(o.memory))
	add("Batch slots", strconv.Itoa(o.pool.capacity()))
	add("State", o.state.String())
	add("Scan ID", o.id.String())
	return e
}
