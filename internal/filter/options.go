package filter

// DefaultMaxDepth bounds the nesting of groups and relations in one tree.
const DefaultMaxDepth = 32

type options struct {
	maxDepth int
	resolver ModelResolver
}

// Option configures parsing and validation.
type Option func(*options)

// WithMaxDepth overrides DefaultMaxDepth. Values below 1 are ignored.
func WithMaxDepth(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxDepth = n
		}
	}
}

// WithRelatedScope validates the inner filter of a relation against the
// related model's own fields and relationships, resolved through r. Without it
// the inner filter is checked against the enclosing model.
func WithRelatedScope(r ModelResolver) Option {
	return func(o *options) {
		o.resolver = r
	}
}

func buildOptions(opts []Option) options {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
