package store

import "fmt"

const (
	PriorityLaneKey   = "queue:priority"
	StandardLaneKey   = "queue:standard"
	ActivePairingsKey = "pairings:active"
)

func TicketKey(identity string) string {
	return fmt.Sprintf("ticket:%s", identity)
}

func AssignmentKey(identity string) string {
	return fmt.Sprintf("assignment:%s", identity)
}

func PairingKey(pairingID string) string {
	return fmt.Sprintf("pairing:%s", pairingID)
}

func DescriptionKey(pairingID, role string) string {
	return fmt.Sprintf("pairing:%s:sdp:%s", pairingID, role)
}

func GraceKey(identity string) string {
	return fmt.Sprintf("grace:%s", identity)
}

func ReconnectClaimKey(identity string) string {
	return fmt.Sprintf("grace:%s:claimed", identity)
}
