package gateway

import (
	"github.com/rishav/risk-gateway/internal/metrics"
	"github.com/rishav/risk-gateway/internal/risk"
)

// Handle is the explicit, shared-state handle every Connection borrows from
// the reactor during its turn: the risk engine and the process-wide
// sequence-number generator. It exists in place of a raw Connection -> Server
// back-pointer — its lifetime is owned by whoever constructs the reactor,
// guaranteed to outlive every Connection built against it.
type Handle struct {
	Risk    *risk.Engine
	Metrics *metrics.Registry // nil is valid: metrics are an optional side channel
	seq     uint32
}

// NewHandle wires a Handle around an already-constructed risk engine. The
// returned Handle has no metrics registry; set Metrics directly to attach
// one.
func NewHandle(engine *risk.Engine) *Handle {
	return &Handle{Risk: engine}
}

// nextSequence draws the next process-wide monotonic sequence number. Only
// ever called from the single reactor turn that owns this Handle, so no
// atomic or lock is needed.
func (h *Handle) nextSequence() uint32 {
	h.seq++
	return h.seq
}
