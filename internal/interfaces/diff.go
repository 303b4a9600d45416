package interfaces

// DiffOptions controls the similarity tolerance of a comparison
type DiffOptions struct {
	Threshold float64 // 0..1, per-pixel colour distance tolerance
	IncludeAA bool    // count anti-aliased pixels as differences
}

// DiffResult is the outcome of one image comparison
type DiffResult struct {
	Same      bool
	DiffCount int
	Width     int
	Height    int
}

// DiffOracle compares a captured image against its golden and writes a diff image
type DiffOracle interface {
	Compare(testedPath, goldenPath, diffPath string, opts DiffOptions) (DiffResult, error)
}
