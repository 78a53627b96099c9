package utils

import "fmt"

// TensorApply applies the 1D operator op (nOut x nIn) along direction dir of
// a tensor array with extents dims, direction 0 varying fastest.
func TensorApply(op Matrix, in []float64, dims []int, dir int) (out []float64, outDims []int) {
	var (
		nOut, nIn = op.Dims()
		opData    = op.Data()
		stride    = 1
		outer     = 1
	)
	if dims[dir] != nIn {
		panic(fmt.Errorf("tensor operator has %d columns, direction %d has extent %d", nIn, dir, dims[dir]))
	}
	for d := 0; d < dir; d++ {
		stride *= dims[d]
	}
	for d := dir + 1; d < len(dims); d++ {
		outer *= dims[d]
	}
	if len(in) != stride*nIn*outer {
		panic(fmt.Errorf("tensor array length %d does not match extents %v", len(in), dims))
	}
	outDims = make([]int, len(dims))
	copy(outDims, dims)
	outDims[dir] = nOut
	out = make([]float64, stride*nOut*outer)
	for o := 0; o < outer; o++ {
		inBase := stride * nIn * o
		outBase := stride * nOut * o
		for i := 0; i < nOut; i++ {
			row := opData[i*nIn : (i+1)*nIn]
			for s := 0; s < stride; s++ {
				var sum float64
				for j, val := range row {
					sum += val * in[inBase+s+stride*j]
				}
				out[outBase+s+stride*i] = sum
			}
		}
	}
	return
}

// TensorApplyAll applies one operator per direction, skipping nil operators
func TensorApplyAll(ops []Matrix, in []float64, dims []int) (out []float64, outDims []int) {
	out, outDims = in, dims
	for d, op := range ops {
		if op.IsEmpty() {
			continue
		}
		out, outDims = TensorApply(op, out, outDims, d)
	}
	return
}

// TensorSize is the product of the extents
func TensorSize(dims []int) (n int) {
	n = 1
	for _, d := range dims {
		n *= d
	}
	return
}

// TensorIndex splits a flat index into per direction indices
func TensorIndex(flat int, dims []int) (idx []int) {
	idx = make([]int, len(dims))
	for d, n := range dims {
		idx[d] = flat % n
		flat /= n
	}
	return
}

// TensorFlat is the inverse of TensorIndex
func TensorFlat(idx, dims []int) (flat int) {
	for d := len(dims) - 1; d >= 0; d-- {
		flat = flat*dims[d] + idx[d]
	}
	return
}
