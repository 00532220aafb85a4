package dedupe

// Option applies a configuration option to the deduper.
type Option func(*setDeduper)

// WithKeyFunc normalizes keys before comparison, e.g. lowercasing emails.
func WithKeyFunc(fn func(string) string) Option {
	return func(d *setDeduper) {
		if fn != nil {
			d.norm = fn
		}
	}
}
