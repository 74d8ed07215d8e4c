package vectorized

// Vectorized aggregation kernels. The unchecked integer sum relies on the
// caller bounding the vector length (see UncheckedSumSafe).

// SumIntegers adds up the non-null rows of an INT16 or INT32 vector into an
// int64 without overflow checks. It returns the sum and the number of
// non-null rows.
func SumIntegers(v *Vector) (int64, int) {
	switch data := v.Data.(type) {
	case []int16:
		return sumUnchecked(data[:v.Length], v.ValidityWords())
	case []int32:
		return sumUnchecked(data[:v.Length], v.ValidityWords())
	}
	return 0, 0
}

func sumUnchecked[T int16 | int32](data []T, validity []uint64) (int64, int) {
	if validity == nil {
		// four accumulators to shorten the dependency chain
		var s0, s1, s2, s3 int64
		n := len(data)
		end := n - n%4
		for i := 0; i < end; i += 4 {
			s0 += int64(data[i])
			s1 += int64(data[i+1])
			s2 += int64(data[i+2])
			s3 += int64(data[i+3])
		}
		sum := s0 + s1 + s2 + s3
		for i := end; i < n; i++ {
			sum += int64(data[i])
		}
		return sum, n
	}
	var sum int64
	valid := 0
	for i, x := range data {
		if RowPasses(validity, i) {
			sum += int64(x)
			valid++
		}
	}
	return sum, valid
}

// SumIntegersChecked is SumIntegers with an overflow check on every
// addition. It also accepts INT64 vectors.
func SumIntegersChecked(v *Vector) (int64, int, error) {
	validity := v.ValidityWords()
	var sum int64
	valid := 0
	add := func(i int, x int64) error {
		if validity != nil && !RowPasses(validity, i) {
			return nil
		}
		s, err := CheckedAddInt64(sum, x)
		if err != nil {
			return err
		}
		sum = s
		valid++
		return nil
	}
	switch data := v.Data.(type) {
	case []int16:
		for i, x := range data[:v.Length] {
			if err := add(i, int64(x)); err != nil {
				return 0, 0, err
			}
		}
	case []int32:
		for i, x := range data[:v.Length] {
			if err := add(i, int64(x)); err != nil {
				return 0, 0, err
			}
		}
	case []int64:
		for i, x := range data[:v.Length] {
			if err := add(i, x); err != nil {
				return 0, 0, err
			}
		}
	}
	return sum, valid, nil
}

// SumFloats adds up the non-null rows of a FLOAT32 or FLOAT64 vector in
// float64 precision.
func SumFloats(v *Vector) (float64, int) {
	validity := v.ValidityWords()
	var sum float64
	valid := 0
	switch data := v.Data.(type) {
	case []float32:
		for i, x := range data[:v.Length] {
			if validity == nil || RowPasses(validity, i) {
				sum += float64(x)
				valid++
			}
		}
	case []float64:
		for i, x := range data[:v.Length] {
			if validity == nil || RowPasses(validity, i) {
				sum += x
				valid++
			}
		}
	}
	return sum, valid
}
