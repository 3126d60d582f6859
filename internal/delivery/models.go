package delivery

import "github.com/google/uuid"

// Issue is one immutable newsletter edition. The worker only ever reads it.
type Issue struct {
	ID          uuid.UUID
	Title       string
	HTMLContent string
	TextContent string
}

// Subscriber is a confirmed recipient as stored by the signup flow. Stored
// rows may predate validation, so the store re-checks both fields on every
// lookup before the worker is allowed to dispatch to them.
type Subscriber struct {
	Email string `validate:"required,email"`
	Name  string `validate:"required"`
}
