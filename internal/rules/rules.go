package rules

// LoadAndCompile is the full load path: read a config directory, validate,
// compile. Warnings from loading, validation, and mod merging are combined.
func LoadAndCompile(dir string) (*Compiled, []Warning, error) {
	res, err := Load(dir)
	if err != nil {
		return nil, nil, err
	}
	warns, err := Validate(&res.Set)
	warns = append(res.Warnings, warns...)
	if err != nil {
		return nil, warns, err
	}
	c, err := Compile(res)
	if err != nil {
		return nil, warns, err
	}
	return c, warns, nil
}

// CompileSet validates and compiles an in-memory set. Used by tests and by
// the benchmark harness to build fixture worlds without touching disk.
func CompileSet(set MaterialSet) (*Compiled, error) {
	res := &LoadResult{Set: set, Remap: NewIDRemap(set.MaxID())}
	if _, err := Validate(&res.Set); err != nil {
		return nil, err
	}
	return Compile(res)
}
