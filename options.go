package spritefill

// Option configures a Builder. It is accepted by Attach and Builder.Apply.
//
// Example:
//
//	p, err := spritefill.Attach(doc,
//	    spritefill.FromConfig(cfg),
//	    func(b *spritefill.Builder) { b.WithWatch(false) },
//	)
type Option func(*Builder)

// FromConfig applies a loaded Config.
func FromConfig(cfg Config) Option {
	return func(b *Builder) {
		b.WithConfig(cfg)
	}
}

// WithListeners registers fns for every lifecycle event.
func WithListeners(fns ...Listener) Option {
	return func(b *Builder) {
		for _, fn := range fns {
			b.WithListener(fn)
		}
	}
}
