package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrInvalidSubscriber marks stored contact details that fail validation.
// Permanent for that row: the worker logs it and finalizes the task without
// a delivery attempt.
var ErrInvalidSubscriber = errors.New("invalid subscriber data")

// Store looks up issue content and subscriber identity. Read-only from the
// worker's perspective; every lookup is a fresh query, nothing is cached.
type Store struct {
	db       *sql.DB
	validate *validator.Validate
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:       db,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (s *Store) Issue(ctx context.Context, id uuid.UUID) (Issue, error) {
	issue := Issue{ID: id}
	err := s.db.QueryRowContext(ctx, `
		SELECT title, html_content, text_content
		FROM newsletter_issues
		WHERE newsletter_issue_id = $1
	`, id).Scan(&issue.Title, &issue.HTMLContent, &issue.TextContent)
	if err != nil {
		return Issue{}, fmt.Errorf("fetch newsletter issue %s: %w", id, err)
	}
	return issue, nil
}

// Subscriber fetches a subscription row by its raw stored address and
// re-validates it. Corrupt or legacy rows surface as ErrInvalidSubscriber.
func (s *Store) Subscriber(ctx context.Context, email string) (Subscriber, error) {
	subscriber := Subscriber{}
	err := s.db.QueryRowContext(ctx, `
		SELECT email, name
		FROM subscriptions
		WHERE email = $1
	`, email).Scan(&subscriber.Email, &subscriber.Name)
	if err != nil {
		return Subscriber{}, fmt.Errorf("fetch subscriber: %w", err)
	}

	if err := s.validate.Struct(subscriber); err != nil {
		return Subscriber{}, fmt.Errorf("%w: %v", ErrInvalidSubscriber, err)
	}

	return subscriber, nil
}
