package facades

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresFacade seeds and inspects the delivery schema for integration
// tests running against a real database.
type PostgresFacade struct {
	db *sql.DB
}

func NewPostgresDSNFromEnv() string {
	host := os.Getenv("POSTGRES_HOST")
	port := os.Getenv("POSTGRES_PORT")
	user := os.Getenv("POSTGRES_USER")
	password := os.Getenv("POSTGRES_PASSWORD")
	database := os.Getenv("POSTGRES_DATABASE")

	if host == "" {
		host = "127.0.0.1"
	}
	if port == "" {
		port = "5432"
	}
	if user == "" {
		user = "postgres"
	}
	if password == "" {
		password = "test"
	}
	if database == "" {
		database = "newsletter_test"
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}

func NewPostgresFacade() (*PostgresFacade, error) {
	db, err := sql.Open("postgres", NewPostgresDSNFromEnv())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &PostgresFacade{db: db}, nil
}

func (f *PostgresFacade) GetDB() *sql.DB {
	return f.db
}

func (f *PostgresFacade) Close() error {
	return f.db.Close()
}

func (f *PostgresFacade) AddSubscriber(ctx context.Context, email, name, status string) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO subscriptions (email, name, status)
		VALUES ($1, $2, $3)
	`, email, name, status)
	if err != nil {
		return fmt.Errorf("failed to insert subscriber: %w", err)
	}
	return nil
}

func (f *PostgresFacade) AddIssue(ctx context.Context, title, htmlContent, textContent string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO newsletter_issues (newsletter_issue_id, title, text_content, html_content)
		VALUES ($1, $2, $3, $4)
	`, id, title, textContent, htmlContent)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to insert issue: %w", err)
	}
	return id, nil
}

func (f *PostgresFacade) AddDeliveryTask(ctx context.Context, issueID uuid.UUID, email string) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		VALUES ($1, $2)
	`, issueID, email)
	if err != nil {
		return fmt.Errorf("failed to insert delivery task: %w", err)
	}
	return nil
}

func (f *PostgresFacade) QueueSize(ctx context.Context) (int, error) {
	var size int
	err := f.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issue_delivery_queue`).Scan(&size)
	return size, err
}

func (f *PostgresFacade) Cleanup(ctx context.Context) error {
	_, err := f.db.ExecContext(ctx, `
		TRUNCATE issue_delivery_queue, newsletter_issues, subscriptions
	`)
	return err
}

// WaitForPostgresReady polls until the database accepts connections, for
// tests started alongside a containerized server.
func WaitForPostgresReady(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		facade, err := NewPostgresFacade()
		if err == nil {
			_ = facade.Close()
			return nil
		}
		time.Sleep(500 * time.Millisecond)
	}

	return fmt.Errorf("timeout waiting for postgres to be ready")
}
