package kernel

import (
	"sort"
	"sync"
)

// Children is the set of child records a process owns until it waits on
// them or exits.
type Children struct {
	mu    sync.Mutex
	procs map[int]*Process
}

func NewChildren() *Children {
	return &Children{
		procs: make(map[int]*Process),
	}
}

func (c *Children) Add(p *Process) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.procs[p.Pid] = p
}

func (c *Children) Lookup(pid int) (*Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.procs[pid]
	return p, ok
}

// Take removes pid from the set and returns it. Ownership moves to the
// caller.
func (c *Children) Take(pid int) (*Process, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.procs[pid]
	if !ok {
		return nil, false
	}

	delete(c.procs, pid)

	return p, true
}

func (c *Children) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.procs)
}

// DetachAll empties the set and returns the former members in pid order.
func (c *Children) DetachAll() []*Process {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]*Process, 0, len(c.procs))
	for _, p := range c.procs {
		out = append(out, p)
	}

	c.procs = make(map[int]*Process)

	sort.Slice(out, func(i, j int) bool {
		return out[i].Pid < out[j].Pid
	})

	return out
}
