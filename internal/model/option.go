package model

// Option is an explicit optional value: the "inherits from head default"
// semantic for a phase element's configuration override is visible at the
// type level instead of being modeled as a null reference.
type Option[T any] struct {
	value T
	set   bool
}

// Some returns a populated Option.
func Some[T any](v T) Option[T] { return Option[T]{value: v, set: true} }

// None returns an empty Option.
func None[T any]() Option[T] { return Option[T]{} }

// IsSome reports whether the option carries a value.
func (o Option[T]) IsSome() bool { return o.set }

// Get returns the value and whether it was present.
func (o Option[T]) Get() (T, bool) { return o.value, o.set }

// OrElse returns the held value, or fallback if none is set.
func (o Option[T]) OrElse(fallback T) T {
	if o.set {
		return o.value
	}
	return fallback
}
