package filter

// CheckStructure validates f without reference to a model: every leaf type and
// operator must be legal together, every value must match its operator's
// arity, and every group must have a known connective and at least one child.
func CheckStructure(f Filter, opts ...Option) error {
	o := buildOptions(opts)
	return checkNode(f, rootPath, 1, o.maxDepth)
}

func checkNode(f Filter, path string, depth, maxDepth int) error {
	if depth > maxDepth {
		return structural(path, "nesting depth exceeds %d", maxDepth)
	}

	switch n := f.(type) {
	case *Leaf:
		if n == nil {
			return structural(path, "filter is null")
		}
		return checkLeaf(n, path)

	case *Group:
		if n == nil {
			return structural(path, "filter is null")
		}
		if !n.Op.Valid() {
			return &InvalidGroupOperatorError{Path: path, Op: string(n.Op)}
		}
		if len(n.Filters) == 0 {
			return &EmptyGroupError{Path: path, Op: n.Op}
		}
		for i, child := range n.Filters {
			if err := checkNode(child, childPath(path, i), depth+1, maxDepth); err != nil {
				return err
			}
		}
		return nil

	case *Relation:
		if n == nil {
			return structural(path, "filter is null")
		}
		if n.Relationship == "" {
			return structural(path, "relationship is required")
		}
		if err := checkRelationInner(n, path); err != nil {
			return err
		}
		return checkNode(n.Filter, innerPath(path), depth+1, maxDepth)

	case nil:
		return structural(path, "filter is null")
	}

	return structural(path, "unsupported filter node %s", describeNode(f))
}

// checkRelationInner requires the inner filter of a relation to be a leaf or
// a group. Nested relations go through a group.
func checkRelationInner(r *Relation, path string) error {
	if _, ok := r.Filter.(*Relation); ok {
		return structural(innerPath(path), "relation filter must be a leaf or a group, not another relation")
	}
	return nil
}

func checkLeaf(l *Leaf, path string) error {
	if l.Field == "" {
		return structural(path, "field is required")
	}
	family, ok := FamilyFor(l.Type)
	if !ok {
		return structural(path, "unknown filter type %q", l.Type)
	}
	if err := family.Check(l.Op, l.Value); err != nil {
		return &StructuralError{Path: path, Reason: err.Error()}
	}
	return nil
}
