package consts

const (
	StiffRatio        = 0.1   // branch is stiff when |L/R| < StiffRatio*dt
	NegligibleCurrent = 1e-4  // stiff loop currents below this snap to zero (A)
	LeakageCurrent    = 1e-6  // off-state leakage, ROff = level/LeakageCurrent (A)
	ForwardThreshold  = 1.0   // forward voltage for diode/switch turn-on (V)
	MinResistance     = 1e-6  // resistance floor for zero-ohm branches in nodal analysis (ohm)
	Gmin              = 1e-12 // diagonal conductance added to the nodal matrix (S)
	MaxFreewheel      = 50    // device state fixed point iteration cap
	StiffStreakLimit  = 10    // current sign flips before a branch is forced stiff
	MinStepFraction   = 1e-3  // minimum time granularity as a fraction of dt
	PivotTolerance    = 1e-9  // zero test for loop elimination
	MaxCurrent        = 1e9   // branch currents beyond this abort the run as diverged (A)
)
