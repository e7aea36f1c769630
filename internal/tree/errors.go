package tree

import "errors"

var (
	// ErrTreeStructure means a cell's center of mass fell outside the
	// cell. It is only possible if insertion or aggregation is broken.
	ErrTreeStructure = errors.New("tree structure error")

	// ErrUnknownCriterion is returned by Build when the configured
	// critical radius criterion is not one of the known values.
	ErrUnknownCriterion = errors.New("unknown critical radius criterion")

	// ErrMaxDepth is returned when two bodies are so close together that
	// separating them would need more than Options.MaxDepth levels.
	ErrMaxDepth = errors.New("maximum tree depth exceeded")

	// ErrBadBody is returned when a body position is NaN or infinite, or
	// so large that the root cell cannot be sized to hold it.
	ErrBadBody = errors.New("bad body position")

	// ErrBadOptions covers the remaining invalid Options values.
	ErrBadOptions = errors.New("invalid tree options")
)
