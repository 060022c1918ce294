package model

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// Lane returns the queue lane a tier is enqueued into.
func (t Tier) Lane() Lane {
	if t == TierPaid {
		return LanePriority
	}
	return LaneStandard
}

type Lane string

const (
	LanePriority Lane = "priority"
	LaneStandard Lane = "standard"
)

type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

func (r Role) Valid() bool {
	return r == RoleInitiator || r == RoleResponder
}

// Other returns the counterpart role in the same pairing.
func (r Role) Other() Role {
	if r == RoleInitiator {
		return RoleResponder
	}
	return RoleInitiator
}

type QueueState string

const (
	QueueStateIdle    QueueState = "idle"
	QueueStateWaiting QueueState = "waiting"
	QueueStatePaired  QueueState = "paired"
)
