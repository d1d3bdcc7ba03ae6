package filter

import "reflect"

// Equal reports whether two trees describe the same predicate shape. Numbers
// compare by value regardless of Go kind and dates compare by instant, so a
// tree built with the typed helpers equals its parsed wire form.
func Equal(a, b Filter) bool {
	if isNilFilter(a) || isNilFilter(b) {
		return isNilFilter(a) && isNilFilter(b)
	}

	switch x := a.(type) {
	case *Leaf:
		y, ok := b.(*Leaf)
		if !ok {
			return false
		}
		return x.Field == y.Field && x.Type == y.Type && x.Op == y.Op && valuesEqual(x.Type, x.Value, y.Value)

	case *Group:
		y, ok := b.(*Group)
		if !ok || x.Op != y.Op || len(x.Filters) != len(y.Filters) {
			return false
		}
		for i := range x.Filters {
			if !Equal(x.Filters[i], y.Filters[i]) {
				return false
			}
		}
		return true

	case *Relation:
		y, ok := b.(*Relation)
		if !ok {
			return false
		}
		return x.Relationship == y.Relationship && Equal(x.Filter, y.Filter)
	}
	return reflect.DeepEqual(a, b)
}

func isNilFilter(f Filter) bool {
	if f == nil {
		return true
	}
	v := reflect.ValueOf(f)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

func valuesEqual(t PrimitiveType, a, b any) bool {
	if isList(a) || isList(b) {
		xs, okx := listItems(a)
		ys, oky := listItems(b)
		if !okx || !oky || len(xs) != len(ys) {
			return false
		}
		for i := range xs {
			if !valuesEqual(t, xs[i], ys[i]) {
				return false
			}
		}
		return true
	}

	switch t {
	case TypeNumber:
		x, okx := toFloat(a)
		y, oky := toFloat(b)
		if okx && oky {
			return x == y
		}
	case TypeDate:
		x, okx := ToDate(a)
		y, oky := ToDate(b)
		if okx && oky {
			return x.Equal(y)
		}
	}
	return reflect.DeepEqual(a, b)
}
