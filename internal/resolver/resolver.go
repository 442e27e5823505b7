// Package resolver decides, for every call of a polymorphic catalog
// operator, the concrete type of each of its ports.
//
// An operator's first overload may leave ports as "auto". Those ports are
// inferred from the argument types through overload sets registered per
// operator: declarative groups (a candidate set for one required port plus
// derivations for the ports that follow it) or custom resolver functions.
// Operators without registered sets fall back to their port suggestions.
package resolver

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/funvibe/flowc/internal/catalog"
	"github.com/funvibe/flowc/internal/diagnostics"
	"github.com/funvibe/flowc/internal/typesystem"
)

// Call is what a custom resolver sees: the port layout of the operator's
// first overload and one argument type per input port.
type Call struct {
	Op          string
	InputNames  []string
	OutputNames []string
	In          []typesystem.Type
	Out         []typesystem.Type
	Args        []typesystem.Type
}

// ResolverFunc computes the port types of a call. It must return one type
// per input and one per output port.
type ResolverFunc func(c *Call) (in, out []typesystem.Type, err error)

// Group is one declarative overload group: the accepted types of a required
// auto port and the derivations of the auto ports after it.
type Group struct {
	Candidates typesystem.TypeSet
	Dependents []typesystem.Derivation
}

// G builds a Group.
func G(candidates typesystem.TypeSet, dependents ...typesystem.Derivation) Group {
	return Group{Candidates: candidates, Dependents: dependents}
}

type overloadSet struct {
	groups []Group
	fn     ResolverFunc
}

// Resolver owns a private copy of the catalog whose overload lists it
// rewrites during registration.
type Resolver struct {
	cat       *catalog.Catalog
	sets      *typesystem.Sets
	overloads map[string][]overloadSet
	logger    *slog.Logger
	strict    bool

	passed  []string
	skipped []string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for the registration summary.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// WithStrict controls what happens when a registration fails its
// consistency check or names an operator the catalog lacks. Strict (the
// default) fails construction; otherwise the registration is logged and
// skipped.
func WithStrict(strict bool) Option {
	return func(r *Resolver) { r.strict = strict }
}

// New builds a resolver over a copy of cat and runs every registration
// family.
func New(cat *catalog.Catalog, opts ...Option) (*Resolver, error) {
	r := NewEmpty(cat, opts...)
	if err := r.registerAll(); err != nil {
		return nil, err
	}
	r.logger.Info("overload registration done",
		"passed", len(r.passed), "skipped", len(r.skipped),
		"summary", fmt.Sprintf("Passed %d tests, skipped %d", len(r.passed), len(r.skipped)))
	return r, nil
}

// NewEmpty builds a resolver without any registrations.
func NewEmpty(cat *catalog.Catalog, opts ...Option) *Resolver {
	r := &Resolver{
		cat:       cat.Clone(),
		overloads: make(map[string][]overloadSet),
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		strict:    true,
	}
	r.sets = r.cat.Sets()
	for _, o := range opts {
		o(r)
	}
	return r
}

// Catalog is the resolver's own catalog copy, including rewritten overload
// lists.
func (r *Resolver) Catalog() *catalog.Catalog { return r.cat }

// Sets are the named type sets over the catalog universe.
func (r *Resolver) Sets() *typesystem.Sets { return r.sets }

// Checked returns the number of registrations that passed their
// consistency check and the number that were skipped.
func (r *Resolver) Checked() (passed, skipped int) { return len(r.passed), len(r.skipped) }

// Resolve computes the port types of a call of op with the given argument
// types. Missing trailing arguments take the declared port type.
func (r *Resolver) Resolve(op string, args []typesystem.Type) (in, out []typesystem.Type, err error) {
	full, ok := r.cat.Resolve(op)
	if !ok {
		return nil, nil, diagnostics.Newf(diagnostics.ErrN003, "Operator/compound '%s' does not exist!", op)
	}
	o, _ := r.cat.Lookup(full)

	sig := o.Primary()
	declIn := tagsOf(nonEmpty(sig.In))
	declOut := tagsOf(sig.Out)

	inputs := make([]typesystem.Type, 0, len(declIn))
	for _, a := range args {
		inputs = append(inputs, a.Unwrap())
	}
	for i := len(inputs); i < len(declIn); i++ {
		inputs = append(inputs, declIn[i])
	}
	return r.resolve(full, o, declIn, declOut, inputs)
}

func nonEmpty(ss []string) []string {
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func tagsOf(ss []string) []typesystem.Type {
	out := make([]typesystem.Type, len(ss))
	for i, s := range ss {
		out[i] = typesystem.Of(s)
	}
	return out
}

func autoIndexes(ports []typesystem.Type) []int {
	var idx []int
	for i, t := range ports {
		if t.IsAuto() {
			idx = append(idx, i)
		}
	}
	return idx
}

func quoteList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = "'" + n + "'"
	}
	return "[" + strings.Join(q, ", ") + "]"
}

type resolution struct {
	ports    []typesystem.Type
	promoted []bool
}

func (a resolution) sameAs(b resolution) bool {
	if len(a.ports) != len(b.ports) {
		return false
	}
	for i := range a.ports {
		if !a.ports[i].Equal(b.ports[i]) {
			return false
		}
	}
	return true
}

func anyTrue(bs []bool) bool {
	for _, b := range bs {
		if b {
			return true
		}
	}
	return false
}

func (r *Resolver) resolve(name string, op *catalog.Operator, declIn, declOut, inputs []typesystem.Type) ([]typesystem.Type, []typesystem.Type, error) {
	if len(inputs) > len(declIn) {
		return nil, nil, diagnostics.New(diagnostics.ErrE001, "Too many arguments")
	}
	nIn := len(declIn)
	inNames := op.InputNames()
	allNames := append(op.InputNames(), op.OutputNames()...)

	ports := append(append([]typesystem.Type{}, declIn...), declOut...)
	auto := autoIndexes(ports)
	sets := r.overloads[name]
	suggestions := op.Suggestions()

	if len(auto) > 0 && len(sets) == 0 {
		for _, idx := range auto {
			if idx >= len(suggestions) || len(suggestions[idx]) == 0 {
				continue
			}
			ports[idx] = typesystem.Of(suggestions[idx][0])
			for _, s := range suggestions[idx] {
				if inputs[idx].Tag() == s {
					ports[idx] = inputs[idx]
					break
				}
			}
		}
		auto = autoIndexes(ports)
		if len(auto) > 0 {
			var missing []string
			for _, idx := range auto {
				missing = append(missing, allNames[idx])
			}
			return nil, nil, diagnostics.Newf(diagnostics.ErrN003,
				"Cant find overload information for ports %s on '%s'", quoteList(missing), name)
		}
	}

	var resolutions []resolution
	if len(auto) == 0 {
		resolutions = append(resolutions, resolution{ports: ports, promoted: make([]bool, len(ports))})
	}

	var lastErr error
	for _, set := range sets {
		if set.fn != nil {
			call := &Call{
				Op:          name,
				InputNames:  inNames,
				OutputNames: op.OutputNames(),
				In:          append([]typesystem.Type{}, declIn...),
				Out:         append([]typesystem.Type{}, declOut...),
				Args:        append([]typesystem.Type{}, inputs...),
			}
			in, out, err := set.fn(call)
			if err != nil {
				lastErr = err
				continue
			}
			if len(in) != nIn {
				return nil, nil, diagnostics.Newf(diagnostics.ErrC001, "'%s' returned the wrong number of input port types", name)
			}
			if len(out) != len(declOut) {
				return nil, nil, diagnostics.Newf(diagnostics.ErrC001, "'%s' returned the wrong number of output port types", name)
			}
			return in, out, nil
		}

		res, err := r.applyGroups(set.groups, ports, auto, inputs, inNames, suggestions)
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		dup := false
		for _, existing := range resolutions {
			if existing.sameAs(res) {
				dup = true
				break
			}
		}
		if !dup {
			resolutions = append(resolutions, res)
		}
	}

	if len(resolutions) == 0 && len(inputs) > 0 {
		if lastErr != nil {
			return nil, nil, lastErr
		}
		return nil, nil, diagnostics.Newf(diagnostics.ErrE001, "No resolutions found for '%s'", name)
	}
	if len(resolutions) == 0 {
		return ports[:nIn], ports[nIn:], nil
	}
	return r.pickResolution(resolutions, inputs, inNames, nIn)
}

// applyGroups runs one declarative overload set: every group consumes its
// required auto port and derives the auto ports that follow it.
func (r *Resolver) applyGroups(groups []Group, ports []typesystem.Type, auto []int, inputs []typesystem.Type, inNames []string, suggestions [][]string) (resolution, error) {
	ports = append([]typesystem.Type{}, ports...)
	promoted := make([]bool, len(ports))
	if len(auto) == 0 {
		return resolution{ports: ports, promoted: promoted}, nil
	}

	var required []int
	k := 0
	for _, g := range groups {
		if k >= len(auto) {
			break
		}
		required = append(required, auto[k])
		k += 1 + len(g.Dependents)
	}
	if len(required) > 0 && required[len(required)-1] >= len(inputs) {
		return resolution{}, diagnostics.Newf(diagnostics.ErrT001, "Cant infer type for port '%s'", portName(inNames, required[len(required)-1]))
	}

	k = 0
	for gi, g := range groups {
		if gi >= len(required) {
			break
		}
		idx := required[gi]
		typ := inputs[idx]
		if typ.IsAuto() && idx < len(suggestions) && len(suggestions[idx]) > 0 {
			typ = typesystem.Of(suggestions[idx][0])
		}

		orig := typ
		if !g.Candidates.Contains(typ) {
			if typ.IsAuto() {
				return resolution{}, diagnostics.Newf(diagnostics.ErrT001, "Missing required argument for port '%s'", portName(inNames, idx))
			}
			var ok bool
			typ, ok = promoteInto(typ, g.Candidates)
			if !ok {
				if orig.Scalar().IsBool() {
					asChar := orig.WithScalar(typesystem.Char)
					if typ, ok = promoteInto(asChar, g.Candidates); !ok {
						return resolution{}, diagnostics.Newf(diagnostics.ErrT001, "Invalid value type '%s' for port '%s'", asChar, portName(inNames, idx))
					}
				} else {
					return resolution{}, diagnostics.Newf(diagnostics.ErrT001, "Invalid type '%s' for port '%s'", orig, portName(inNames, idx))
				}
			}
		}

		changed := !typ.Equal(orig)
		ports[auto[k]] = typ
		promoted[auto[k]] = changed
		for j, d := range g.Dependents {
			if k+1+j >= len(auto) {
				break
			}
			pos := auto[k+1+j]
			ports[pos] = d.Apply(typ)
			promoted[pos] = changed
		}
		k += 1 + len(g.Dependents)
	}
	return resolution{ports: ports, promoted: promoted}, nil
}

// promoteInto walks the promotion priority at t's array depth and returns
// the first candidate t's element type widens to.
func promoteInto(t typesystem.Type, candidates typesystem.TypeSet) (typesystem.Type, bool) {
	dim := t.ArrayDim()
	elem := t.Innermost()
	for _, p := range typesystem.PromotionPriority() {
		target := p.Wrap(dim)
		if !candidates.Contains(target) {
			continue
		}
		if typesystem.Promotable(elem, p) {
			return target, true
		}
	}
	return typesystem.Type{}, false
}

func portName(names []string, idx int) string {
	if idx < len(names) {
		return names[idx]
	}
	return fmt.Sprintf("#%d", idx)
}

// pickResolution checks every resolution against the arguments. An exact
// match wins at once; otherwise the surviving resolutions must agree on
// their vector and matrix shapes.
func (r *Resolver) pickResolution(resolutions []resolution, inputs []typesystem.Type, inNames []string, nIn int) ([]typesystem.Type, []typesystem.Type, error) {
	inputs = append([]typesystem.Type{}, inputs...)
	var lastErr error
	var valid []resolution

	for _, res := range resolutions {
		perfect := true
		ok := true
		for i := 0; i < len(inputs) && i < nIn; i++ {
			arg := inputs[i].Unwrap()
			target := res.ports[i]

			if arg.IsAuto() && !target.IsAuto() {
				inputs[i] = target
				continue
			}
			if arg.Equal(target) && !anyTrue(res.promoted) {
				continue
			}
			perfect = false

			label := target.Tag()
			switch label {
			case "*":
				continue
			case "[]":
				if arg.IsArray() {
					continue
				}
				label = "array"
			case "[1]", "[2]", "[3]":
				want := int(label[1] - '0')
				if arg.ArrayDim() == want {
					continue
				}
				label = fmt.Sprintf("%dD-array", want)
			}
			if label != target.Tag() || !typesystem.Promotable(arg, target) {
				code := diagnostics.ErrT001
				if typesystem.Compatibility(target, arg).Has(typesystem.NumericLossyConversion) {
					code = diagnostics.ErrT002
				}
				lastErr = diagnostics.Newf(code, "Cant promote '%s' to '%s' on port '%s'", arg, label, portName(inNames, i))
				ok = false
				break
			}
		}
		if ok {
			valid = append(valid, res)
			if perfect {
				return res.ports[:nIn], res.ports[nIn:], nil
			}
		}
	}

	switch {
	case len(valid) == 1:
		return valid[0].ports[:nIn], valid[0].ports[nIn:], nil
	case len(valid) > 1:
		ref := valid[0].ports[:nIn]
		for _, other := range valid[1:] {
			for i := range ref {
				a, b := ref[i].Innermost(), other.ports[i].Innermost()
				ar, ac := a.MatrixDim()
				br, bc := b.MatrixDim()
				if a.VectorDim() != b.VectorDim() || ar != br || ac != bc {
					return nil, nil, diagnostics.Newf(diagnostics.ErrT003, "Ambiguous promotion on port '%s'", portName(inNames, i))
				}
			}
		}
		return valid[0].ports[:nIn], valid[0].ports[nIn:], nil
	}
	if lastErr != nil {
		return nil, nil, lastErr
	}
	last := resolutions[len(resolutions)-1]
	return last.ports[:nIn], last.ports[nIn:], nil
}
