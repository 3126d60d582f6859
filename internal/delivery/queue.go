package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const defaultClaimLease = 5 * time.Minute

// ClaimedTask is one delivery task locked by this worker. The row lock is
// held by an open transaction until Complete commits the delete or Release
// rolls back and returns the task to the backlog.
type ClaimedTask interface {
	IssueID() uuid.UUID
	SubscriberEmail() string
	Complete(ctx context.Context) error
	Release() error
}

// Queue is the durable issue_delivery_queue table: one row per
// (newsletter issue, subscriber) pair still owed a delivery.
type Queue struct {
	db         *sql.DB
	claimLease time.Duration
}

func NewQueue(db *sql.DB, claimLease time.Duration) *Queue {
	if claimLease <= 0 {
		claimLease = defaultClaimLease
	}
	return &Queue{db: db, claimLease: claimLease}
}

// Claim locks at most one task for exclusive processing. Rows locked by
// other transactions are skipped rather than waited on, so concurrent
// workers never observe the same row. Returns nil when the backlog is
// empty; that is not an error.
//
// The claim lease bounds how long a stalled worker can sit on a row: the
// transaction is killed by the server once it idles past the lease, which
// releases the lock and makes the row claimable again.
func (q *Queue) Claim(ctx context.Context) (ClaimedTask, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction: %w", err)
	}

	lease := fmt.Sprintf("SET LOCAL idle_in_transaction_session_timeout = '%dms'", q.claimLease.Milliseconds())
	if _, err := tx.ExecContext(ctx, lease); err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("set claim lease: %w", err)
	}

	row := tx.QueryRowContext(ctx, `
		SELECT newsletter_issue_id, subscriber_email
		FROM issue_delivery_queue
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`)

	task := queueTask{}
	if err := row.Scan(&task.issueID, &task.email); err != nil {
		_ = tx.Rollback()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select delivery task: %w", err)
	}

	task.tx = tx
	return &task, nil
}

// Publish records a newsletter issue and fans it out: one delivery task per
// confirmed subscriber, inserted in the same transaction so the worker can
// never observe the issue without its full backlog. Returns the number of
// tasks enqueued.
func (q *Queue) Publish(ctx context.Context, issue Issue) (int64, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin publish transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO newsletter_issues (newsletter_issue_id, title, text_content, html_content)
		VALUES ($1, $2, $3, $4)
	`, issue.ID, issue.Title, issue.TextContent, issue.HTMLContent)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("insert newsletter issue: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		SELECT $1, email
		FROM subscriptions
		WHERE status = 'confirmed'
	`, issue.ID)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("enqueue delivery tasks: %w", err)
	}

	enqueued, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit publish transaction: %w", err)
	}

	return enqueued, nil
}

// Pending reports the current backlog size across all issues.
func (q *Queue) Pending(ctx context.Context) (int, error) {
	var pending int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issue_delivery_queue`).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("count delivery tasks: %w", err)
	}
	return pending, nil
}

type queueTask struct {
	tx      *sql.Tx
	issueID uuid.UUID
	email   string
}

func (t *queueTask) IssueID() uuid.UUID {
	return t.issueID
}

func (t *queueTask) SubscriberEmail() string {
	return t.email
}

// Complete deletes the task and commits, releasing the row lock
// permanently. Called after exactly one processing attempt, whatever its
// outcome. On failure the delete never becomes visible and the task is
// reclaimable once the transaction aborts.
func (t *queueTask) Complete(ctx context.Context) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2
	`, t.issueID, t.email)
	if err != nil {
		_ = t.tx.Rollback()
		return fmt.Errorf("delete delivery task: %w", err)
	}

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit delivery task removal: %w", err)
	}

	return nil
}

// Release aborts the claim, returning the task to the backlog untouched.
func (t *queueTask) Release() error {
	return t.tx.Rollback()
}
