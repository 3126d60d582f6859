package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueueWithMock(t *testing.T) (*Queue, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewQueue(db, 5*time.Minute), mock
}

func TestClaimLocksOneTaskAndKeepsTheTransactionOpen(t *testing.T) {
	queue, mock := newQueueWithMock(t)
	issueID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL idle_in_transaction_session_timeout = '300000ms'").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT newsletter_issue_id, subscriber_email FROM issue_delivery_queue").
		WillReturnRows(sqlmock.NewRows([]string{"newsletter_issue_id", "subscriber_email"}).
			AddRow(issueID.String(), "a@example.com"))

	task, err := queue.Claim(context.Background())
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, issueID, task.IssueID())
	assert.Equal(t, "a@example.com", task.SubscriberEmail())

	mock.ExpectExec("DELETE FROM issue_delivery_queue").
		WithArgs(issueID, "a@example.com").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, task.Complete(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimReturnsNothingOnEmptyBacklog(t *testing.T) {
	queue, mock := newQueueWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL idle_in_transaction_session_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT newsletter_issue_id, subscriber_email FROM issue_delivery_queue").
		WillReturnRows(sqlmock.NewRows([]string{"newsletter_issue_id", "subscriber_email"}))
	mock.ExpectRollback()

	task, err := queue.Claim(context.Background())

	assert.NoError(t, err)
	assert.Nil(t, task)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimSurfacesStoreErrors(t *testing.T) {
	queue, mock := newQueueWithMock(t)

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	task, err := queue.Claim(context.Background())

	require.Error(t, err)
	assert.Nil(t, task)
	assert.Contains(t, err.Error(), "begin claim transaction")
}

func TestClaimRollsBackWhenTheSelectFails(t *testing.T) {
	queue, mock := newQueueWithMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL idle_in_transaction_session_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT newsletter_issue_id, subscriber_email FROM issue_delivery_queue").
		WillReturnError(errors.New("relation does not exist"))
	mock.ExpectRollback()

	task, err := queue.Claim(context.Background())

	require.Error(t, err)
	assert.Nil(t, task)
	assert.Contains(t, err.Error(), "select delivery task")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteRollsBackWhenTheDeleteFails(t *testing.T) {
	queue, mock := newQueueWithMock(t)
	issueID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL idle_in_transaction_session_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT newsletter_issue_id, subscriber_email FROM issue_delivery_queue").
		WillReturnRows(sqlmock.NewRows([]string{"newsletter_issue_id", "subscriber_email"}).
			AddRow(issueID.String(), "a@example.com"))

	task, err := queue.Claim(context.Background())
	require.NoError(t, err)

	mock.ExpectExec("DELETE FROM issue_delivery_queue").
		WithArgs(issueID, "a@example.com").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err = task.Complete(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "delete delivery task")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseReturnsTheTaskToTheBacklog(t *testing.T) {
	queue, mock := newQueueWithMock(t)
	issueID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL idle_in_transaction_session_timeout").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT newsletter_issue_id, subscriber_email FROM issue_delivery_queue").
		WillReturnRows(sqlmock.NewRows([]string{"newsletter_issue_id", "subscriber_email"}).
			AddRow(issueID.String(), "a@example.com"))
	mock.ExpectRollback()

	task, err := queue.Claim(context.Background())
	require.NoError(t, err)

	assert.NoError(t, task.Release())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishFansOutOneTaskPerConfirmedSubscriber(t *testing.T) {
	queue, mock := newQueueWithMock(t)
	issue := Issue{
		ID:          uuid.New(),
		Title:       "Hello",
		HTMLContent: "<p>Hi</p>",
		TextContent: "Hi",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO newsletter_issues").
		WithArgs(issue.ID, issue.Title, issue.TextContent, issue.HTMLContent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO issue_delivery_queue").
		WithArgs(issue.ID).
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectCommit()

	enqueued, err := queue.Publish(context.Background(), issue)

	require.NoError(t, err)
	assert.Equal(t, int64(3), enqueued)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishRollsBackWhenFanOutFails(t *testing.T) {
	queue, mock := newQueueWithMock(t)
	issue := Issue{ID: uuid.New(), Title: "Hello", HTMLContent: "<p>Hi</p>", TextContent: "Hi"}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO newsletter_issues").
		WithArgs(issue.ID, issue.Title, issue.TextContent, issue.HTMLContent).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO issue_delivery_queue").
		WithArgs(issue.ID).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := queue.Publish(context.Background(), issue)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "enqueue delivery tasks")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPendingCountsTheBacklog(t *testing.T) {
	queue, mock := newQueueWithMock(t)

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	pending, err := queue.Pending(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 7, pending)
}
