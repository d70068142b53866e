package realtime

import "pipeline-orchestrator/internal/domain"

// Contract is the wire message sent to sessions for one completed mutation.
type Contract struct {
	Kind             domain.EntityKind       `json:"kind"`
	Operation        string                  `json:"operation"`
	Result           any                     `json:"result"`
	NotificationType domain.NotificationType `json:"notification_type"`
	Message          string                  `json:"message"`
}

func NewContract(event domain.Event) Contract {
	return Contract{
		Kind:             event.Kind,
		Operation:        event.Operation,
		Result:           event.Payload,
		NotificationType: event.Notification,
		Message:          event.Message,
	}
}
