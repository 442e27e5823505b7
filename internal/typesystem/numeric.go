package typesystem

// NumericBaseType computes the common numeric type of two non-array
// operands. Any fraction gives float (double when either side is 8 bytes
// wide); integers keep the wider width and are unsigned when the unsigned
// side is at least as wide as the other. Vector and matrix shapes widen to
// the larger of both sides, vector lengths counting as matrix rows.
// With charAsBool a one-byte result is bool instead of char.
func NumericBaseType(lhs, rhs Type, charAsBool bool) Type {
	var scalar string
	if lhs.IsFraction() || rhs.IsFraction() {
		scalar = Float
		if lhs.IsBig() || rhs.IsBig() {
			scalar = Double
		}
	} else {
		prefix := ""
		ls, rs := lhs.NumericSize(), rhs.NumericSize()
		if (lhs.IsUnsigned() && ls >= rs) || (rhs.IsUnsigned() && rs >= ls) {
			prefix = "u"
		}
		switch max(ls, rs) {
		case 1:
			scalar = Char
			if charAsBool {
				scalar = Bool
				prefix = ""
			}
		case 2:
			scalar = Short
		case 4:
			scalar = Int
		default:
			scalar = Long
		}
		scalar = prefix + scalar
	}

	if lhs.IsMatrix() || rhs.IsMatrix() {
		lr, lc := lhs.MatrixDim()
		rr, rc := rhs.MatrixDim()
		rows := max(lr, rr, lhs.VectorDim(), rhs.VectorDim())
		cols := max(lc, rc)
		return WithShape(scalar, rows, cols)
	}
	if lhs.IsVector() || rhs.IsVector() {
		return WithShape(scalar, max(lhs.VectorDim(), rhs.VectorDim()), -1)
	}
	return Of(scalar)
}
