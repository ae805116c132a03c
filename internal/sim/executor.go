package sim

import "alkahest/internal/sim/kernels"

// cpuExecutor runs the pass kernels inline on the host. It is the
// reference implementation of the tick: deterministic, byte-exact, and the
// one the test suite pins the contract against.
type cpuExecutor struct{}

// NewCPUExecutor returns the host-side reference executor.
func NewCPUExecutor() Executor { return cpuExecutor{} }

func (cpuExecutor) Name() string { return "cpu" }

func (cpuExecutor) Run(job *kernels.TickJob) error {
	kernels.Run(job)
	return nil
}
