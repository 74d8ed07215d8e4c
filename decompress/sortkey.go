package decompress

import (
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// keyComparator compares one sort key of two output rows.
type keyComparator struct {
	idx        int // row index, Attno-1
	descending bool
	nullsFirst bool
	collator   *collate.Collator
}

func newKeyComparators(keys []SortKey, t *columnTable) ([]keyComparator, error) {
	out := make([]keyComparator, 0, len(keys))
	for _, k := range keys {
		_, col, ok := t.column(k.Attno)
		if !ok {
			return nil, configErrorf("sort key %d is not a decompressed column", k.Attno)
		}
		kc := keyComparator{idx: k.Attno - 1, descending: k.Descending, nullsFirst: k.NullsFirst}
		if coll := k.Collation; coll != "" && !strings.EqualFold(coll, "C") && !strings.EqualFold(coll, "POSIX") {
			if col.Type != vectorized.STRING {
				return nil, configErrorf("collation %q on non-string column %s", coll, col.Name)
			}
			tag, err := language.Parse(coll)
			if err != nil {
				return nil, configErrorf("sort key %s: unknown collation %q", col.Name, coll)
			}
			kc.collator = collate.New(tag)
		}
		out = append(out, kc)
	}
	return out, nil
}

// compare orders a and b. NULL placement follows nullsFirst regardless of
// the direction.
func (k *keyComparator) compare(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		if k.nullsFirst {
			return -1
		}
		return 1
	case b == nil:
		if k.nullsFirst {
			return 1
		}
		return -1
	}
	var cmp int
	if k.collator != nil {
		cmp = k.collator.CompareString(a.(string), b.(string))
	} else {
		// values of one column are always comparable
		cmp, _ = expr.Compare(a, b)
	}
	if k.descending {
		return -cmp
	}
	return cmp
}

func compareRows(keys []keyComparator, a, b []interface{}) int {
	for i := range keys {
		k := &keys[i]
		if cmp := k.compare(a[k.idx], b[k.idx]); cmp != 0 {
			return cmp
		}
	}
	return 0
}
