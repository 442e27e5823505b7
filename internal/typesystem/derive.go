package typesystem

// DerivationKind names a pure function computing a dependent port type
// from a resolved required port type.
type DerivationKind uint8

const (
	DeriveSame DerivationKind = iota
	DeriveArrDown
	DeriveArrUp
	DeriveArrFlat
	DeriveTranspose
	DeriveToVec3
	DeriveToVec4
	DeriveToScalar
	DeriveToMtx3x3
	DeriveToFloat
	DeriveReplaceBase
	DeriveReplaceFullBase
	DeriveLiteral
)

var derivationNames = [...]string{
	DeriveSame:            "same",
	DeriveArrDown:         "arr_down",
	DeriveArrUp:           "arr_up",
	DeriveArrFlat:         "arr_flat",
	DeriveTranspose:       "transpose",
	DeriveToVec3:          "to_vec3",
	DeriveToVec4:          "to_vec4",
	DeriveToScalar:        "to_scalar",
	DeriveToMtx3x3:        "to_mtx3x3",
	DeriveToFloat:         "to_float",
	DeriveReplaceBase:     "replace_base",
	DeriveReplaceFullBase: "replace_full_base",
	DeriveLiteral:         "literal",
}

func (k DerivationKind) String() string {
	if int(k) < len(derivationNames) {
		return derivationNames[k]
	}
	return "unknown"
}

// Derivation is a named derivation plus its argument for the parameterised
// kinds. It is plain data so registration tables stay declarative.
type Derivation struct {
	Kind DerivationKind
	Arg  string
}

var (
	Same      = Derivation{Kind: DeriveSame}
	ArrDown   = Derivation{Kind: DeriveArrDown}
	ArrUp     = Derivation{Kind: DeriveArrUp}
	ArrFlat   = Derivation{Kind: DeriveArrFlat}
	Transpose = Derivation{Kind: DeriveTranspose}
	ToVec3    = Derivation{Kind: DeriveToVec3}
	ToVec4    = Derivation{Kind: DeriveToVec4}
	ToScalar  = Derivation{Kind: DeriveToScalar}
	ToMtx3x3  = Derivation{Kind: DeriveToMtx3x3}
	ToFloat   = Derivation{Kind: DeriveToFloat}
)

// ReplaceBase swaps the scalar base, keeping vector or matrix shape and array
// depth.
func ReplaceBase(scalar string) Derivation {
	return Derivation{Kind: DeriveReplaceBase, Arg: scalar}
}

// ReplaceFullBase swaps everything below the array levels.
func ReplaceFullBase(tag string) Derivation {
	return Derivation{Kind: DeriveReplaceFullBase, Arg: tag}
}

// Literal ignores the input and yields tag.
func Literal(tag string) Derivation {
	return Derivation{Kind: DeriveLiteral, Arg: tag}
}

func (d Derivation) String() string {
	if d.Arg != "" {
		return d.Kind.String() + "(" + d.Arg + ")"
	}
	return d.Kind.String()
}

// Apply computes the dependent type.
func (d Derivation) Apply(t Type) Type {
	dim := t.ArrayDim()
	inner := t.Innermost()

	switch d.Kind {
	case DeriveSame:
		return t
	case DeriveArrDown:
		return t.Element()
	case DeriveArrUp:
		return t.Wrap(1)
	case DeriveArrFlat:
		return inner.Wrap(1)
	case DeriveTranspose:
		r, c := inner.MatrixDim()
		if r < 0 {
			return t
		}
		return WithShape(inner.BaseType().tag, c, r).Wrap(dim)
	case DeriveToVec3:
		return reshape(inner, 3, -1).Wrap(dim)
	case DeriveToVec4:
		return reshape(inner, 4, -1).Wrap(dim)
	case DeriveToMtx3x3:
		return reshape(inner, 3, 3).Wrap(dim)
	case DeriveToScalar:
		return inner.BaseType().Wrap(dim)
	case DeriveToFloat:
		scalar := Float
		if inner.IsBig() {
			scalar = Double
		}
		return t.WithScalar(scalar)
	case DeriveReplaceBase:
		return t.WithScalar(d.Arg)
	case DeriveReplaceFullBase:
		return Of(d.Arg).Wrap(dim)
	case DeriveLiteral:
		return Of(d.Arg)
	}
	return t
}

// reshape gives inner's scalar base a new vector or matrix shape.
func reshape(inner Type, rows, cols int) Type {
	return WithShape(inner.BaseType().tag, rows, cols)
}
