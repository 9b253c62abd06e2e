package reference

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithMaxElems caps the element count of any single decoded reference
// array.
func WithMaxElems(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxElems = n
		}
	}
}

// WithExpectedSubjects pins the subject ids the reference archive must
// contain. Load refuses an archive whose subject set differs.
func WithExpectedSubjects(ids []string) Option {
	return func(s *Store) {
		if len(ids) > 0 {
			s.expected = append([]string(nil), ids...)
		}
	}
}
