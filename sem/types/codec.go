package types

// ValueCodec turns user text into typed values and back. Implementations
// live outside the storage core; the CLI uses package yamlio.
type ValueCodec interface {
	// Parse converts text into a value for property p. kind is the declared
	// storage kind of p (KindUnknown when undeclared).
	Parse(p Property, kind Kind, text string) (DataItem, error)

	// Format renders a value for display
	Format(item DataItem) string
}
