package typesystem

// Compat is the bitmask returned by Compatibility. Zero means identical.
type Compat uint8

const (
	ArrayDimMismatch Compat = 1 << iota
	IncompatibleTypes
	NumericAutoConversion
	NumericLossyConversion
	MatrixDimExtension
	MatrixDimIncompatible
)

// blocking flags forbid implicit promotion.
const blocking = ArrayDimMismatch | IncompatibleTypes | NumericLossyConversion | MatrixDimIncompatible

func (c Compat) Has(flag Compat) bool { return c&flag != 0 }

// Compatibility reports how value converts into target. Flags accumulate:
// an array depth mismatch is recorded and the bases are still compared.
func Compatibility(target, value Type) Compat {
	if target.Equal(value) {
		return 0
	}

	tb, vb := target, value
	if tb.IsArray() {
		tb = tb.Innermost()
	}
	if vb.IsArray() {
		vb = vb.Innermost()
	}

	var status Compat
	if target.ArrayDim() != value.ArrayDim() {
		status |= ArrayDimMismatch
	}
	if tb.Equal(vb) {
		return status
	}

	if !vb.IsNumeric() || !tb.IsNumeric() {
		return status | IncompatibleTypes
	}

	tr, tc := tb.shape()
	vr, vc := vb.shape()

	// scalar target only takes scalars
	if tr == -1 && tc == -1 {
		if vr != -1 || vc != -1 {
			return status | IncompatibleTypes
		}
		return status | numericScalar(tb, vb)
	}

	switch {
	case tr == vr && tc == vc:
	case vr <= tr && vc <= tc:
		status |= MatrixDimExtension
	default:
		status |= MatrixDimIncompatible
	}
	return status | numericScalar(tb.BaseType(), vb.BaseType())
}

// numericScalar compares two scalar numeric bases. bool behaves like a
// signed one-byte integer.
func numericScalar(target, value Type) Compat {
	if target.IsFraction() {
		if value.NumericSize() > target.NumericSize() {
			return NumericLossyConversion
		}
		return NumericAutoConversion
	}
	if value.IsFraction() {
		return NumericLossyConversion
	}
	switch vs, ts := value.NumericSize(), target.NumericSize(); {
	case vs < ts:
		return NumericAutoConversion
	case vs > ts:
		return NumericLossyConversion
	}
	switch tu, vu := target.IsUnsigned(), value.IsUnsigned(); {
	case tu == vu:
		return 0
	case tu:
		return NumericAutoConversion
	}
	return NumericLossyConversion
}

// Promotable reports whether value converts implicitly into target.
func Promotable(value, target Type) bool {
	return Compatibility(target, value)&blocking == 0
}

var promotionPriority = buildPromotionPriority()

func buildPromotionPriority() []Type {
	var out []Type
	for _, s := range NumericScalars {
		out = append(out, Of(s))
	}
	for _, s := range NumericScalars {
		for n := 2; n <= 4; n++ {
			out = append(out, WithShape(s, n, -1))
		}
	}
	for _, s := range NumericScalars {
		for r := 2; r <= 4; r++ {
			for c := 2; c <= 4; c++ {
				out = append(out, WithShape(s, r, c))
			}
		}
	}
	return out
}

// PromotionPriority lists promotion candidates: scalars by width, then
// vectors, then matrices.
func PromotionPriority() []Type {
	return append([]Type(nil), promotionPriority...)
}

// PromotableToOneOf returns the first priority entry that t's base
// promotes to, wrapped to t's array depth and present in set.
func PromotableToOneOf(t Type, set TypeSet) (Type, bool) {
	dim := t.ArrayDim()
	base := t
	if t.IsArray() {
		base = t.Innermost()
	}
	for _, p := range promotionPriority {
		wrapped := p.Wrap(dim)
		if !set.Contains(wrapped) {
			continue
		}
		if Promotable(base, p) {
			return wrapped, true
		}
	}
	return Type{}, false
}
