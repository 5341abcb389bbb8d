package session

import "fmt"

// Checklist tracks completion over the active plan's items. completed is
// always parallel to the plan; currentIndex advances forward only and is
// never moved back to an earlier item automatically.
type Checklist struct {
	completed []bool
	current   int
}

func NewChecklist(n int) *Checklist {
	return &Checklist{completed: make([]bool, n)}
}

// Toggle flips item i. When the current item is toggled complete, the
// pointer advances to the next incomplete item at a higher index; it is
// left unchanged when no such item exists. Items stay independently
// toggleable regardless of order.
func (c *Checklist) Toggle(i int) error {
	if i < 0 || i >= len(c.completed) {
		return fmt.Errorf("checklist index %d out of range [0,%d)", i, len(c.completed))
	}

	c.completed[i] = !c.completed[i]
	if i != c.current || !c.completed[i] {
		return nil
	}
	for j := i + 1; j < len(c.completed); j++ {
		if !c.completed[j] {
			c.current = j
			break
		}
	}
	return nil
}

func (c *Checklist) Len() int          { return len(c.completed) }
func (c *Checklist) CurrentIndex() int { return c.current }

// Completed returns a copy of the completion flags.
func (c *Checklist) Completed() []bool {
	out := make([]bool, len(c.completed))
	copy(out, c.completed)
	return out
}

// Done reports whether every item is complete.
func (c *Checklist) Done() bool {
	for _, done := range c.completed {
		if !done {
			return false
		}
	}
	return true
}
