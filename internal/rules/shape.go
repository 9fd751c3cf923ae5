package rules

// EffectiveKernel returns the extent a dilated kernel covers along one axis.
func EffectiveKernel(kernel, dilation int64) int64 {
	return dilation*(kernel-1) + 1
}

// TailResidual returns how much padding the pooling size equation needs
// beyond the input along one axis to produce out elements. Zero means the
// windows end exactly at the input edge.
func TailResidual(in, out, kernel, stride, dilation int64) int64 {
	return (out-1)*stride + EffectiveKernel(kernel, dilation) - in
}

// UnusedTailPadding reports whether the trailing padding of a 2-D window
// operator is never read, given its input and output shapes. Only the last
// two dimensions are checked; unknown dimensions fail the check.
func UnusedTailPadding(in, out []int64, kernel, stride, dilation []int64) bool {
	if len(in) < 2 || len(out) < 2 {
		return false
	}
	for axis := range 2 {
		i, o := in[len(in)-2+axis], out[len(out)-2+axis]
		if i < 0 || o < 0 {
			return false
		}
		if TailResidual(i, o, kernel[axis], stride[axis], dilation[axis]) != 0 {
			return false
		}
	}
	return true
}
