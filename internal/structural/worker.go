package structural

import (
	"log"

	"alkahest/internal/sim"
)

// Worker couples a solver to the destruction ring. The orchestrator drains
// it between frames: events buffered during tick N reach the solver after
// tick N completes, and the resulting fall commands land in tick N+1 or
// N+2. That latency is the contract; the solver never touches pool memory
// while a tick is in flight.
type Worker struct {
	solver *Solver
	ring   *sim.EventRing
	logger *log.Logger
}

// NewWorker wires a worker over a solver and a ring.
func NewWorker(solver *Solver, ring *sim.EventRing, logger *log.Logger) *Worker {
	return &Worker{solver: solver, ring: ring, logger: logger}
}

// RunOnce drains the ring and processes everything buffered.
func (w *Worker) RunOnce() {
	if events := w.ring.Drain(); len(events) > 0 {
		w.solver.Process(events)
	}
}
