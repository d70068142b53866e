package domain

type NotificationType string

const (
	NotificationNone    NotificationType = "none"
	NotificationCreated NotificationType = "created"
	NotificationUpdated NotificationType = "updated"
	NotificationDeleted NotificationType = "deleted"
)

// ServiceResult is the outcome of a service operation. Err wraps one of the
// package sentinels when the operation failed.
type ServiceResult[T any] struct {
	Object       T                `json:"object"`
	Err          error            `json:"-"`
	Message      string           `json:"message"`
	Notification NotificationType `json:"notification_type"`
}

func (r ServiceResult[T]) HasError() bool { return r.Err != nil }

func Succeeded[T any](obj T, notification NotificationType, msg string) ServiceResult[T] {
	return ServiceResult[T]{Object: obj, Message: msg, Notification: notification}
}

func Failed[T any](obj T, err error, msg string) ServiceResult[T] {
	return ServiceResult[T]{Object: obj, Err: err, Message: msg, Notification: NotificationNone}
}

// Event describes a completed mutation for notification fan-out.
type Event struct {
	Kind         EntityKind       `json:"kind"`
	Operation    string           `json:"operation"`
	Scope        Scope            `json:"scope"`
	Payload      any              `json:"payload"`
	Notification NotificationType `json:"notification_type"`
	Message      string           `json:"message"`
}

func NewEvent[T any](kind EntityKind, operation string, scope Scope, res ServiceResult[T]) Event {
	return Event{
		Kind:         kind,
		Operation:    operation,
		Scope:        scope,
		Payload:      res.Object,
		Notification: res.Notification,
		Message:      res.Message,
	}
}
