package protocol

// def is the declarative Protocol implementation backing the built-in
// descriptors. The defaults function receives the field name and layer
// context and returns the derived value, or false to leave the field zeroed.
type def struct {
	name     string
	minSize  int
	specs    []FieldSpec
	index    map[string]FieldSpec
	defaults func(name string, ctx DefaultContext) ([]byte, bool)
}

func newDef(name string, minSize int, specs []FieldSpec, defaults func(string, DefaultContext) ([]byte, bool)) *def {
	index := make(map[string]FieldSpec, len(specs))
	for _, spec := range specs {
		index[spec.Name] = spec
	}
	return &def{
		name:     name,
		minSize:  minSize,
		specs:    specs,
		index:    index,
		defaults: defaults,
	}
}

func (d *def) Name() string { return d.name }

func (d *def) MinHeaderSize() int { return d.minSize }

func (d *def) FieldSpec(name string) (FieldSpec, bool) {
	spec, ok := d.index[name]
	return spec, ok
}

func (d *def) FieldSpecs() []FieldSpec {
	specs := make([]FieldSpec, len(d.specs))
	copy(specs, d.specs)
	return specs
}

func (d *def) DefaultValue(name string, ctx DefaultContext) ([]byte, bool) {
	if d.defaults == nil {
		return nil, false
	}
	return d.defaults(name, ctx)
}
