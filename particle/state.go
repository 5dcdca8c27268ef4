package particle

import "fmt"

// TrackingState is the per-step displacement status. States below Out keep
// the particle in the local set at synchronization.
type TrackingState uint8

const (
	ToSync   TrackingState = iota // Must be propagated, possibly on another rank
	Treated                       // Displacement finished for this step
	Stuck                         // Deposited, not moving
	Out                           // Left the domain (outlet, capture)
	ToDelete                      // Marked for deletion before tracking
	Err                           // Lost by the tracking algorithm
)

func (s TrackingState) String() string {
	switch s {
	case ToSync:
		return "to_sync"
	case Treated:
		return "treated"
	case Stuck:
		return "stuck"
	case Out:
		return "out"
	case ToDelete:
		return "to_delete"
	case Err:
		return "error"
	}
	return fmt.Sprintf("TrackingState(%d)", uint8(s))
}

// Kept reports whether a particle in this state remains in the local set.
func (s TrackingState) Kept() bool {
	return s < Out
}

// CellKind discriminates the Cell variant.
type CellKind uint8

const (
	CellPendingDelete CellKind = iota
	CellActive
	CellStuck
)

// Cell is the owning cell of a particle: active in a cell, stuck in a cell
// (deposited, cell identity kept) or pending deletion.
type Cell struct {
	Kind CellKind
	ID   int
}

// InCell returns an active cell variant.
func InCell(id int) Cell { return Cell{Kind: CellActive, ID: id} }

// StuckIn returns a stuck cell variant.
func StuckIn(id int) Cell { return Cell{Kind: CellStuck, ID: id} }

// PendingDelete returns the deletion variant.
func PendingDelete() Cell { return Cell{Kind: CellPendingDelete, ID: -1} }

func (c Cell) IsActive() bool        { return c.Kind == CellActive }
func (c Cell) IsStuck() bool         { return c.Kind == CellStuck }
func (c Cell) IsPendingDelete() bool { return c.Kind == CellPendingDelete }

// HasCell reports whether the variant carries a cell identity.
func (c Cell) HasCell() bool { return c.Kind != CellPendingDelete }

// Unstick returns the active variant of a stuck cell.
func (c Cell) Unstick() Cell {
	if c.Kind == CellStuck {
		return InCell(c.ID)
	}
	return c
}

func (c Cell) String() string {
	switch c.Kind {
	case CellActive:
		return fmt.Sprintf("cell(%d)", c.ID)
	case CellStuck:
		return fmt.Sprintf("stuck(%d)", c.ID)
	}
	return "pending_delete"
}

// DepositionFlag is the wall interaction status used by the deposition and
// resuspension models.
type DepositionFlag uint8

const (
	InFlow DepositionFlag = iota
	Deposited
	Rolling
	ImposedMotion
	NoMotion
)

func (d DepositionFlag) String() string {
	switch d {
	case InFlow:
		return "in_flow"
	case Deposited:
		return "deposited"
	case Rolling:
		return "rolling"
	case ImposedMotion:
		return "imposed_motion"
	case NoMotion:
		return "no_motion"
	}
	return fmt.Sprintf("DepositionFlag(%d)", uint8(d))
}

// OnWall reports whether the particle sits on a wall face.
func (d DepositionFlag) OnWall() bool {
	return d == Deposited || d == Rolling
}

// Phase is the near-wall Markov state of the deposition model.
type Phase int

const (
	PhaseLeftLayer  Phase = -2 // Left the boundary layer during the step
	PhaseOutside    Phase = -1 // Outside the boundary layer
	PhaseInnerZone  Phase = 0  // Diffusion in the inner zone
	PhaseSweep      Phase = 1  // Coherent structure toward the wall
	PhaseDiffusion  Phase = 2  // Diffusion in the outer zone
	PhaseEjection   Phase = 3  // Coherent structure away from the wall
	PhaseInnerEntry Phase = 10 // Entered the inner zone from outside the layer
	PhaseAfterSweep Phase = 12 // Diffusion following a structure
	PhaseOuterEntry Phase = 20 // Entered the outer zone from outside the layer
	PhaseCrossOut   Phase = 30 // Crossed from the inner to the outer zone
)
