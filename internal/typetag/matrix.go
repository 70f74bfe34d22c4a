package typetag

// Matrix defines which producer kinds may bind to which consumer kinds beyond
// exact equality. The matrix is deliberately configurable: implicit numeric
// widening is a frequent source of subtle compatibility bugs, so the rule in
// force must be explicit and overridable rather than baked into the checker.
type Matrix map[Kind]map[Kind]bool

// DefaultMatrix returns the standard compatibility rule: every kind binds to
// itself, and an integer producer may additionally bind to a float consumer.
// The reverse (float producer, integer consumer) is not allowed.
func DefaultMatrix() Matrix {
	return Matrix{
		KindInteger: {KindFloat: true},
	}
}

// Compatible reports whether a value produced with tag `from` may bind to an
// input declared with tag `to`. Lists are compatible when their element kinds
// are compatible under the same rule.
func (m Matrix) Compatible(from, to Tag) bool {
	if from.IsList() != to.IsList() {
		return false
	}
	if from.IsList() {
		return m.kindCompatible(from.elem, to.elem)
	}
	return m.kindCompatible(from.kind, to.kind)
}

func (m Matrix) kindCompatible(from, to Kind) bool {
	if from == to {
		return true
	}
	return m[from][to]
}

// Comparable reports whether two tags may appear on opposite sides of a
// condition predicate: equal, or compatible in either direction.
func (m Matrix) Comparable(a, b Tag) bool {
	return m.Compatible(a, b) || m.Compatible(b, a)
}
