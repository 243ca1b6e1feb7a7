package evidence

// Set bundles the optional evidence of a run. Nil members mean the evidence
// type was not supplied.
type Set struct {
	Introns  *Introns
	Coverage *Coverage
}

// HasIntrons reports whether intron evidence was supplied.
func (s *Set) HasIntrons() bool {
	return s != nil && s.Introns != nil
}

// HasCoverage reports whether coverage evidence was supplied.
func (s *Set) HasCoverage() bool {
	return s != nil && s.Coverage != nil
}
