package filter

// Schema is the single validation entry point for one model: it accepts a
// filter only when every reference is declared and the tree is structurally
// valid.
type Schema struct {
	model     *Model
	validator *ModelValidator
	opts      options
	rawOpts   []Option
}

// NewSchema builds the composite validator for m.
func NewSchema(m *Model, opts ...Option) *Schema {
	return &Schema{
		model:     m,
		validator: NewModelValidator(m, opts...),
		opts:      buildOptions(opts),
		rawOpts:   opts,
	}
}

// Model returns the model the schema validates against.
func (s *Schema) Model() *Model {
	return s.model
}

// Validator returns the reference validator.
func (s *Schema) Validator() *ModelValidator {
	return s.validator
}

// Validate runs the reference check, then the structural check. The reference
// check goes first so that misspelled fields surface before value-shape errors.
func (s *Schema) Validate(f Filter) error {
	if err := s.validator.Validate(f); err != nil {
		return err
	}
	return checkNode(f, rootPath, 1, s.opts.maxDepth)
}

// Parse decodes the wire form of a filter and validates it. On failure no tree
// is returned.
func (s *Schema) Parse(data []byte) (Filter, error) {
	f, err := Parse(data, s.rawOpts...)
	if err != nil {
		return nil, err
	}
	if err := s.Validate(f); err != nil {
		return nil, err
	}
	return f, nil
}
