package cmdb

// cascade bounds the propagation of one mutation through relations. Each
// dependent value may be visited once per mutation and the chain of nested
// visits may not exceed limit.
type cascade struct {
	limit int
	depth int
	seen  map[[2]string]bool
}

func newCascade(limit int) *cascade {
	return &cascade{limit: limit, seen: make(map[[2]string]bool)}
}

// enter records a visit of value valueID of field fieldID. Call leave when
// the visit is done.
func (c *cascade) enter(fieldID, valueID string) error {
	key := [2]string{fieldID, valueID}
	if c.seen[key] {
		return errCascadeCycle(fieldID, valueID, "value reached twice")
	}
	if c.depth >= c.limit {
		return errCascadeCycle(fieldID, valueID, "depth limit reached")
	}
	c.seen[key] = true
	c.depth++
	return nil
}

func (c *cascade) leave() {
	c.depth--
}

// visit runs fn inside enter and leave.
func (c *cascade) visit(fieldID, valueID string, fn func() error) error {
	if err := c.enter(fieldID, valueID); err != nil {
		return err
	}
	defer c.leave()
	return fn()
}
