package escrow

// transitionTable maps a status to the statuses it may move to.
type transitionTable map[Status][]Status

func (t transitionTable) allows(from, to Status) bool {
	for _, s := range t[from] {
		if s == to {
			return true
		}
	}
	return false
}

func (t transitionTable) targets(from Status) []Status {
	return append([]Status(nil), t[from]...)
}

// Built once at init and never written afterwards.
var (
	statusTransitions = transitionTable{
		StatusInitiated: {StatusPending, StatusCancelled},
		StatusPending:   {StatusActive, StatusCancelled},
		StatusActive:    {StatusCompleted, StatusDisputed, StatusCancelled},
		StatusDisputed:  {StatusCompleted, StatusCancelled, StatusRefunded},
	}

	disputeTransitions = transitionTable{
		StatusPending: {StatusDisputed},
		StatusActive:  {StatusDisputed},
	}

	resolutionTransitions = transitionTable{
		StatusDisputed: {StatusCompleted, StatusRefunded},
	}
)

// CanTransition reports whether UpdateStatus may move from one status to another.
func CanTransition(from, to Status) bool {
	return statusTransitions.allows(from, to)
}

// NextStatuses returns the statuses UpdateStatus accepts from the given one.
func NextStatuses(from Status) []Status {
	return statusTransitions.targets(from)
}

// CanFileDispute reports whether a dispute may be filed in the given status.
func CanFileDispute(from Status) bool {
	return disputeTransitions.allows(from, StatusDisputed)
}

// ResolutionTarget returns the status a dispute resolution leads to.
func ResolutionTarget(r Resolution) Status {
	if r == ResolutionFullRefund {
		return StatusRefunded
	}
	return StatusCompleted
}

// statusRoles lists which participants may request a target status.
// Targets not listed are open to buyer, seller and admin.
var statusRoles = map[Status][]ParticipantRole{
	StatusCompleted: {RoleSeller, RoleAdmin},
	StatusDisputed:  {RoleBuyer, RoleSeller},
}

func mayRequest(role ParticipantRole, to Status) bool {
	allowed, ok := statusRoles[to]
	if !ok {
		return role != RoleNone
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
