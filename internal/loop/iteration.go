package loop

// IterationController tracks progress against the iteration ceiling. The
// ceiling is the hard termination guarantee: whatever the evaluator says, the
// loop stops when the controller is exhausted.
type IterationController struct {
	max     int
	current int
}

// NewIterationController creates a controller with the given ceiling. A
// ceiling below one is raised to one so the loop always runs at least once.
func NewIterationController(max int) *IterationController {
	if max < 1 {
		max = 1
	}
	return &IterationController{max: max}
}

// ShouldContinue reports whether another iteration may start.
func (c *IterationController) ShouldContinue() bool {
	return c.current < c.max
}

// Increment advances to the next iteration and returns its number (1-based).
func (c *IterationController) Increment() int {
	c.current++
	return c.current
}

// Iteration returns the current iteration number.
func (c *IterationController) Iteration() int {
	return c.current
}

// IsAtMax reports whether the ceiling has been reached.
func (c *IterationController) IsAtMax() bool {
	return c.current >= c.max
}

// Max returns the ceiling.
func (c *IterationController) Max() int {
	return c.max
}
