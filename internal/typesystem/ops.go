package typesystem

import "github.com/funvibe/flowc/internal/diagnostics"

// ----------------------------------------------------------------------------
// Binary operators
// ----------------------------------------------------------------------------

// Operand unwraps a bundle operand. A bundle must have exactly one output to
// take part in an expression.
func Operand(t Type) (Type, error) {
	if !t.IsBundle() {
		return t, nil
	}
	switch len(t.ports) {
	case 0:
		return Type{}, diagnostics.New(diagnostics.ErrE001, "No output ports on node.")
	case 1:
		return t.ports[0].Type, nil
	}
	return Type{}, diagnostics.Newf(diagnostics.ErrN003, "Too many ports on node: %v", t.PortNames())
}

func unsupported(op string, lhs, rhs Type) error {
	return diagnostics.Newf(diagnostics.ErrT001, "Operation '%s' not supported between '%s' and '%s'", op, lhs, rhs)
}

func dimMismatch() error {
	return diagnostics.New(diagnostics.ErrT004, "Array dimensions missmatch")
}

// MathOpType types an arithmetic operator. Scalars broadcast into arrays,
// vectors and matrices widen to the larger shape and fields only combine
// with fields. With concat, string + string is an element wise string
// concatenation.
func MathOpType(lhs, rhs Type, op string, concat bool) (Type, error) {
	lhs, err := Operand(lhs)
	if err != nil {
		return Type{}, err
	}
	rhs, err = Operand(rhs)
	if err != nil {
		return Type{}, err
	}

	ld, rd := lhs.ArrayDim(), rhs.ArrayDim()
	if ld != 0 && rd != 0 && ld != rd {
		return Type{}, dimMismatch()
	}
	dim := max(ld, rd)
	lb, rb := lhs.Innermost(), rhs.Innermost()

	if concat && op == "+" && lb.IsString() && rb.IsString() {
		return Of(String).Wrap(dim), nil
	}

	if lb.IsField() || rb.IsField() {
		if !lb.IsField() || !rb.IsField() {
			return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Operation '%s' unsupported between '%s' and '%s'", op, lhs, rhs)
		}
		if lb.IsVectorField() || rb.IsVectorField() {
			return Of(VectorField).Wrap(dim), nil
		}
		return Of(ScalarField).Wrap(dim), nil
	}

	switch {
	case lhs.IsNumeric() && rhs.IsNumeric():
		return NumericBaseType(lhs, rhs, false), nil
	case lhs.IsArray() && rhs.IsArray():
		if !lb.IsNumeric() || !rb.IsNumeric() {
			return Type{}, unsupported(op, lhs, rhs)
		}
		return NumericBaseType(lb, rb, false).Wrap(dim), nil
	case lhs.IsArray() && rhs.IsNumeric() && lb.IsNumeric():
		return NumericBaseType(rhs, lb, false).Wrap(ld), nil
	case rhs.IsArray() && lhs.IsNumeric() && rb.IsNumeric():
		return NumericBaseType(lhs, rb, false).Wrap(rd), nil
	}
	return Type{}, unsupported(op, lhs, rhs)
}

// CompareType types a single comparison. Vectors and matrices only support
// equality.
func CompareType(lhs, rhs Type, op string) (Type, error) {
	lhs, err := Operand(lhs)
	if err != nil {
		return Type{}, err
	}
	rhs, err = Operand(rhs)
	if err != nil {
		return Type{}, err
	}

	dim := max(lhs.ArrayDim(), rhs.ArrayDim())
	lb, rb := lhs.Innermost(), rhs.Innermost()

	if op != "==" && op != "!=" {
		if lb.IsVector() || lb.IsMatrix() || rb.IsVector() || rb.IsMatrix() {
			return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Comparing vectors/matrices with '%s' not yet supported", op)
		}
	}
	numeric := lb.IsNumeric() && rb.IsNumeric()
	text := lb.IsString() && rb.IsString()
	if !numeric && !text {
		return Type{}, unsupported(op, lhs, rhs)
	}
	return Of(Bool).Wrap(dim), nil
}

// CompareChainType types a chained comparison: every pair is typed on its
// own and the results are folded with &&.
func CompareChainType(operands []Type, ops []string) (Type, error) {
	if len(operands) != len(ops)+1 || len(ops) == 0 {
		return Type{}, diagnostics.New(diagnostics.ErrS001, "Malformed comparison")
	}
	var results []Type
	for i, op := range ops {
		t, err := CompareType(operands[i], operands[i+1], op)
		if err != nil {
			return Type{}, err
		}
		results = append(results, t)
	}
	out := results[0]
	for _, t := range results[1:] {
		var err error
		if out, err = LogicType(out, t, "&&"); err != nil {
			return Type{}, err
		}
	}
	return out, nil
}

// LogicType types &&, || and ^. Both operands must be bool based; the result
// takes the wider vector or matrix shape.
func LogicType(lhs, rhs Type, op string) (Type, error) {
	lhs, err := Operand(lhs)
	if err != nil {
		return Type{}, err
	}
	rhs, err = Operand(rhs)
	if err != nil {
		return Type{}, err
	}

	ld, rd := lhs.ArrayDim(), rhs.ArrayDim()
	if ld != 0 && rd != 0 && ld != rd {
		return Type{}, dimMismatch()
	}
	lb, rb := lhs.Innermost(), rhs.Innermost()
	if !lb.IsBool() || !rb.IsBool() {
		return Type{}, unsupported(op, lb, rb)
	}

	lr, lc := lb.shape()
	rr, rc := rb.shape()
	return WithShape(Bool, max(lr, rr), max(lc, rc)).Wrap(max(ld, rd)), nil
}

// ----------------------------------------------------------------------------
// Unary operators
// ----------------------------------------------------------------------------

// NotType types logical inversion.
func NotType(v Type) (Type, error) {
	v, err := Operand(v)
	if err != nil {
		return Type{}, err
	}
	if !v.Scalar().IsBool() {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Cannot invert type '%s'", v)
	}
	return v, nil
}

// NegateType types arithmetic negation. Unsigned bases move to the next
// signed type able to hold the negated value.
func NegateType(v Type) (Type, error) {
	v, err := Operand(v)
	if err != nil {
		return Type{}, err
	}
	scalar := v.Scalar()
	if v.Innermost().IsField() {
		return v, nil
	}
	if !scalar.IsNumeric() {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Cant negate value of type '%s'", v)
	}
	if !scalar.IsUnsigned() {
		return v, nil
	}
	switch {
	case scalar.IsBig():
		return v.WithScalar(Double), nil
	case scalar.tag == UInt:
		return v.WithScalar(Float), nil
	case scalar.NumericSize() == 1:
		return v.WithScalar(Short), nil
	}
	return v.WithScalar(Int), nil
}

// ----------------------------------------------------------------------------
// Composite literals
// ----------------------------------------------------------------------------

// ArrayLiteralType returns the element type of an array literal. Equal
// element types are kept as they are; numeric elements of different types
// widen to a common numeric type.
func ArrayLiteralType(values []Type) (Type, error) {
	if len(values) == 0 {
		return Type{}, diagnostics.New(diagnostics.ErrE001, "Cannot infer the type of an empty array")
	}
	types := make([]Type, len(values))
	for i, v := range values {
		if v.IsBundle() && len(v.ports) != 1 {
			return Type{}, diagnostics.New(diagnostics.ErrT001, "NODE types cannot be put into arrays")
		}
		types[i] = v.Unwrap()
	}

	same := true
	for _, t := range types[1:] {
		if !t.Equal(types[0]) {
			same = false
			break
		}
	}
	if same {
		if types[0].ArrayDim() >= MaxArrayDim {
			return Type{}, diagnostics.New(diagnostics.ErrT004, "Arrays beyond 3 dimensions are not supported")
		}
		return types[0], nil
	}

	arrays := 0
	dims := map[int]bool{}
	for _, t := range types {
		if t.IsArray() {
			arrays++
		}
		dims[t.ArrayDim()] = true
	}
	if arrays != 0 && arrays != len(types) {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Mixed array and non-array types. This is not yet supported")
	}
	if len(dims) > 1 {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Mixed arrays of different dimensions. This is not yet supported")
	}
	dim := types[0].ArrayDim()
	if dim >= MaxArrayDim {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Arrays beyond 3 dimensions are not supported")
	}

	numeric := 0
	for _, t := range types {
		if t.Innermost().IsNumeric() {
			numeric++
		}
	}
	switch {
	case numeric == 0:
		return Type{}, diagnostics.New(diagnostics.ErrT001, "Type missmatch")
	case numeric != len(types):
		return Type{}, diagnostics.New(diagnostics.ErrT001, "Mixed numeric and non numeric values")
	}

	rows, cols := -1, -1
	for _, t := range types {
		r, c := t.Innermost().shape()
		rows, cols = max(rows, r), max(cols, c)
	}
	return WithShape(literalScalar(types), rows, cols).Wrap(dim), nil
}

// literalScalar picks the common scalar base of mixed numeric elements.
// Fractions win; integers take the widest width and are unsigned when any
// element of that width is.
func literalScalar(types []Type) string {
	fraction, big := false, false
	width := 0
	for _, t := range types {
		s := t.Scalar()
		fraction = fraction || s.IsFraction()
		big = big || s.IsBig()
		width = max(width, s.NumericSize())
	}
	if fraction {
		if big {
			return Double
		}
		return Float
	}
	unsigned := false
	for _, t := range types {
		s := t.Scalar()
		if s.NumericSize() == width && s.IsUnsigned() {
			unsigned = true
		}
	}
	base := map[int]string{1: Char, 2: Short, 4: Int, 8: Long}[width]
	if unsigned {
		base = "u" + base
	}
	return base
}

// VectorLiteralType types a vector literal of the given component base.
// Every component is a scalar (or an array of scalars, which broadcasts).
func VectorLiteralType(values []Type, component string) (Type, error) {
	if len(values) < 2 || len(values) > 4 {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Vectors need 2 to 4 components, got %d", len(values))
	}
	dims := map[int]bool{}
	for _, v := range values {
		v = v.Unwrap()
		if v.IsArray() {
			dims[v.ArrayDim()] = true
		}
		inner := v.Innermost()
		if inner.IsVector() || inner.IsMatrix() {
			return Type{}, diagnostics.New(diagnostics.ErrT001, "Must be single value")
		}
	}
	if len(dims) > 1 {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Incompatible array dimensions")
	}
	return WithShape(component, len(values), -1).Wrap(anyKey(dims)), nil
}

// MatrixLiteralType types a matrix literal given per column either one
// value (a vector or scalar filling the column) or the column's values.
func MatrixLiteralType(cols [][]Type, component string) (Type, error) {
	if len(cols) < 2 || len(cols) > 4 {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Matrices need 2 to 4 columns, got %d", len(cols))
	}
	dims := map[int]bool{}
	rows := 0
	for _, col := range cols {
		if len(col) == 1 {
			t := col[0].Unwrap()
			if t.IsArray() {
				dims[t.ArrayDim()] = true
				t = t.Innermost()
			}
			switch {
			case t.IsMatrix():
				return Type{}, diagnostics.New(diagnostics.ErrT001, "Cant connect matrix to matrix column")
			case t.IsVector():
				rows = max(rows, t.VectorDim())
			case !t.IsNumeric():
				return Type{}, diagnostics.New(diagnostics.ErrT001, "Need to connect numeric value to column")
			}
			continue
		}
		rows = max(rows, len(col))
		for _, v := range col {
			v = v.Unwrap()
			if v.IsArray() {
				dims[v.ArrayDim()] = true
				v = v.Innermost()
			}
			if !v.IsNumeric() {
				return Type{}, diagnostics.New(diagnostics.ErrT001, "Need to connect numeric value to value")
			}
		}
	}
	if len(dims) > 1 {
		return Type{}, diagnostics.New(diagnostics.ErrT004, "Array dimension missmatch")
	}
	if rows == 0 {
		return Type{}, diagnostics.New(diagnostics.ErrT001, "Cant determine row count")
	}
	if rows > 4 {
		return Type{}, diagnostics.Newf(diagnostics.ErrT001, "Matrices have at most 4 rows, got %d", rows)
	}
	return WithShape(component, rows, len(cols)).Wrap(anyKey(dims)), nil
}

func anyKey(m map[int]bool) int {
	for k := range m {
		return k
	}
	return 0
}

// ----------------------------------------------------------------------------
// Literal hints
// ----------------------------------------------------------------------------

var suffixTypes = map[string]string{
	"c":  Char,
	"uc": UChar,
	"s":  Short,
	"us": UShort,
	"i":  Int,
	"ui": UInt,
	"u":  UInt,
	"l":  Long,
	"ul": ULong,
	"f":  Float,
	"d":  Double,
	"b":  Bool,
}

// LiteralHint returns the type selected by a number literal suffix.
func LiteralHint(suffix string) (Type, error) {
	s, ok := suffixTypes[suffix]
	if !ok {
		return Type{}, diagnostics.Newf(diagnostics.ErrS001, "Unknown number suffix '%s'", suffix)
	}
	return Of(s), nil
}
