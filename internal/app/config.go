package app

import (
	"time"

	"newsletter-courier/internal/courier"
	"newsletter-courier/internal/delivery"
)

type DatabaseConfig struct {
	DSN          string `yaml:"dsn" validate:"required"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"required,min=1"`
}

type CourierConfig struct {
	BaseURL            string `yaml:"base_url" validate:"required,url"`
	SenderEmail        string `yaml:"sender_email" validate:"required,email"`
	SenderName         string `yaml:"sender_name" validate:"required"`
	AuthorizationToken string `yaml:"authorization_token" validate:"required"`
	RequestTimeout     int    `yaml:"request_timeout" validate:"required"` // seconds
}

type WorkerConfig struct {
	Count         int `yaml:"count" validate:"required,min=1"`
	IdleInterval  int `yaml:"idle_interval" validate:"required"`  // seconds
	FaultInterval int `yaml:"fault_interval" validate:"required"` // seconds
	ClaimLease    int `yaml:"claim_lease" validate:"required"`    // seconds
}

type MetricsConfig struct {
	Port int `yaml:"port"` // 0 disables the /metrics server
}

type HealthConfig struct {
	Port int `yaml:"port"` // 0 disables the /health-check server
}

type Config struct {
	Database DatabaseConfig `yaml:"database" validate:"required"`
	Courier  CourierConfig  `yaml:"courier" validate:"required"`
	Worker   WorkerConfig   `yaml:"worker" validate:"required"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Health   HealthConfig   `yaml:"health"`
}

func (c *Config) getCourierConfig() courier.Config {
	return courier.Config{
		BaseURL:            c.Courier.BaseURL,
		SenderEmail:        c.Courier.SenderEmail,
		SenderName:         c.Courier.SenderName,
		AuthorizationToken: c.Courier.AuthorizationToken,
		RequestTimeout:     time.Duration(c.Courier.RequestTimeout) * time.Second,
	}
}

func (c *Config) getWorkerConfig() delivery.WorkerConfig {
	return delivery.WorkerConfig{
		IdleInterval:  time.Duration(c.Worker.IdleInterval) * time.Second,
		FaultInterval: time.Duration(c.Worker.FaultInterval) * time.Second,
	}
}

func (c *Config) getClaimLease() time.Duration {
	return time.Duration(c.Worker.ClaimLease) * time.Second
}
