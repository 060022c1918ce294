package model

import "time"

// Pairing is immutable once created. ParticipantA is the priority-favoured
// side and always takes the initiator role.
type Pairing struct {
	ID           string    `json:"id" db:"id"`
	ParticipantA string    `json:"participantA" db:"participant_a"`
	ParticipantB string    `json:"participantB" db:"participant_b"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// RoleOf returns the role identity holds in the pairing, or false when the
// identity is not a participant.
func (p Pairing) RoleOf(identity string) (Role, bool) {
	switch identity {
	case p.ParticipantA:
		return RoleInitiator, true
	case p.ParticipantB:
		return RoleResponder, true
	default:
		return "", false
	}
}

// Assignment points a participant at its active pairing.
type Assignment struct {
	PairingID string    `json:"pairingId"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
}

type QueueStatus struct {
	State     QueueState `json:"state"`
	PairingID string     `json:"pairingId,omitempty"`
	Role      Role       `json:"role,omitempty"`
}

type QueueStats struct {
	WaitingPriority int64  `json:"waitingPriority"`
	WaitingStandard int64  `json:"waitingStandard"`
	Waiting         int64  `json:"waiting"`
	Paired          int64  `json:"paired"`
	PairedTotal     *int64 `json:"pairedTotal,omitempty"`
}
