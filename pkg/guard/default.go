package guard

import "sync"

var (
	defaultMu       sync.Mutex
	defaultInstance *Authorizer
	defaultBuild    func() *Authorizer
)

// SetDefaultEvaluator registers the evaluator (and options) the process-wide
// default authorizer is built from. Construction is lazy; calling this again
// discards any previously built instance. Prefer constructing one Authorizer
// with New at process start and passing it explicitly; the default exists for
// call sites where threading a dependency through is not worth it.
func SetDefaultEvaluator(evaluator Evaluator, opts ...Option) {
	if evaluator == nil {
		panic("guard: evaluator cannot be nil")
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	defaultBuild = func() *Authorizer { return New(evaluator, opts...) }
	defaultInstance = nil
}

// Default returns the lazily-constructed process-wide authorizer.
// Panics if SetDefaultEvaluator has not been called.
func Default() *Authorizer {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultInstance == nil {
		if defaultBuild == nil {
			panic("guard: no default evaluator registered")
		}
		defaultInstance = defaultBuild()
	}
	return defaultInstance
}
