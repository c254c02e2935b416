package kernel

import "sync"

// ProcessManager is the pid table. Pids are assigned in increasing order
// and never reused.
type ProcessManager struct {
	mu        sync.RWMutex
	highWater int
	processes map[int]*Process
}

func NewProcessManager() *ProcessManager {
	return &ProcessManager{
		processes: make(map[int]*Process),
	}
}

func (p *ProcessManager) AssignPid(proc *Process) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.highWater++
	pid := p.highWater
	p.processes[pid] = proc
	proc.Pid = pid

	return pid
}

func (p *ProcessManager) Lookup(pid int) (*Process, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	proc, ok := p.processes[pid]
	return proc, ok
}

func (p *ProcessManager) RemoveProc(proc *Process) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.processes, proc.Pid)
}

func (p *ProcessManager) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return len(p.processes)
}
