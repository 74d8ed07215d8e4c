package decompress

import (
	"github.com/cockroachdb/errors"

	"github.com/rohan-flutterint/timescaledb-core/expr"
	"github.com/rohan-flutterint/timescaledb-core/vectorized"
)

// scanContext is the state shared by the batches of one operator.
type scanContext struct {
	table       *columnTable
	bulk        bool
	sortedMerge bool
	maxRows     int
	vectorQuals []vectorQual
	rowQuals    []expr.Expr
	params      expr.Params
	metrics     *Metrics
}

func (sc *scanContext) rowQualsPass(row []interface{}) (bool, error) {
	for _, q := range sc.rowQuals {
		ok, err := expr.IsTrue(q, row, sc.params)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// vectorQual is "column op constant" bound to a filter kernel.
type vectorQual struct {
	source   expr.Expr // the qualifier as planned
	colIdx   int
	op       vectorized.FilterOperator
	constant interface{}
	kernel   vectorized.FilterKernel
}

// preparedQuals is the outcome of qualifier preparation.
type preparedQuals struct {
	vector []vectorQual
	row    []expr.Expr
	// constantFalse is set when a qualifier folds to false or NULL.
	constantFalse bool
}

// prepareQuals folds the qualifiers with the scan parameters, binds the
// vectorizable candidates to kernels and leaves the rest for row-at-a-time
// evaluation.
func prepareQuals(cfg *Config, t *columnTable, bulk bool) (*preparedQuals, error) {
	p := &preparedQuals{}
	addRow := func(q expr.Expr) error {
		folded, err := expr.Fold(q, cfg.Params)
		if err != nil {
			return errors.Wrapf(err, "qualifier %s", q)
		}
		keep, err := p.constant(folded)
		if err != nil || !keep {
			return err
		}
		for _, attno := range expr.Vars(folded) {
			if _, _, ok := t.column(attno); !ok {
				return configErrorf("qualifier %s references column %d which is not decompressed", q, attno)
			}
		}
		p.row = append(p.row, folded)
		return nil
	}

	for _, q := range cfg.RowQuals {
		if err := addRow(q); err != nil {
			return nil, err
		}
	}
	for _, q := range cfg.VectorQualCandidates {
		if cfg.Debug.VectorQuals == VectorQualsForbid {
			if err := addRow(q); err != nil {
				return nil, err
			}
			continue
		}
		vq, keep, reason, err := p.vectorize(cfg, t, bulk, q)
		if err != nil {
			return nil, err
		}
		switch {
		case !keep:
		case reason == "":
			p.vector = append(p.vector, vq)
		case cfg.Debug.VectorQuals == VectorQualsOnly:
			return nil, configErrorf("qualifier %s is not vectorized: %s", q, reason)
		default:
			if err := addRow(q); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// constant handles a qualifier that folded to a constant. It reports
// whether the qualifier must still be evaluated.
func (p *preparedQuals) constant(q expr.Expr) (bool, error) {
	c, ok := q.(*expr.Const)
	if !ok {
		return true, nil
	}
	switch v := c.Value.(type) {
	case nil:
		p.constantFalse = true
	case bool:
		if !v {
			p.constantFalse = true
		}
	default:
		return false, configErrorf("qualifier %s is not boolean", q)
	}
	return false, nil
}

// vectorize tries to turn a candidate into a vectorQual. A non-empty reason
// means the candidate has to be evaluated row by row; keep is false when
// the candidate folded to a constant and needs no evaluation at all.
func (p *preparedQuals) vectorize(cfg *Config, t *columnTable, bulk bool, q expr.Expr) (vq vectorQual, keep bool, reason string, err error) {
	folded, err := expr.Fold(q, cfg.Params)
	if err != nil {
		return vq, false, "", errors.Wrapf(err, "qualifier %s", q)
	}
	if keep, err := p.constant(folded); err != nil || !keep {
		return vq, false, "", err
	}

	op, ok := folded.(*expr.OpExpr)
	if !ok || !op.Op.IsComparison() {
		return vq, true, "not a comparison", nil
	}
	v, isVar := op.Left.(*expr.Var)
	rhs, operator := op.Right, op.Op
	if !isVar {
		if v, isVar = op.Right.(*expr.Var); !isVar {
			return vq, true, "no column operand", nil
		}
		commuted, ok := op.Op.Commutator()
		if !ok {
			return vq, true, "operator has no commutator", nil
		}
		rhs, operator = op.Left, commuted
	}
	if !expr.IsRuntimeConstant(rhs) {
		return vq, true, "comparison value is not a run-time constant", nil
	}

	idx, col, ok := t.column(v.Attno)
	if !ok {
		return vq, false, "", configErrorf("qualifier %s references column %d which is not decompressed", q, v.Attno)
	}
	switch {
	case col.Role != CompressedValue:
		return vq, true, "column is not compressed", nil
	case !col.BulkDecompression:
		return vq, true, "column has no bulk decompression", nil
	case !bulk:
		return vq, true, "bulk decompression is disabled", nil
	}

	// the comparison value was folded above; a NULL rejects every row
	c, ok := rhs.(*expr.Const)
	if !ok {
		return vq, true, "comparison value did not fold", nil
	}
	if c.Value == nil {
		p.constantFalse = true
		return vq, false, "", nil
	}
	fop, _ := operator.FilterOperator()
	kernel := vectorized.BindFilterKernel(fop, col.Type, c.Value)
	if kernel == nil {
		return vq, true, "no kernel for " + fop.String() + " on " + col.Type.String(), nil
	}
	return vectorQual{
		source:   q,
		colIdx:   idx,
		op:       fop,
		constant: c.Value,
		kernel:   kernel,
	}, true, "", nil
}
