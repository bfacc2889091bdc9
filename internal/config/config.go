package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration

	// Database
	SQLiteDBPath string
	DataBackend  string

	// AMQP
	AMQPURL            string
	AMQPExchange       string
	AMQPEventsQueue    string
	AMQPReconcileQueue string

	// Worker
	ReconcileInterval    time.Duration
	BudgetCheckInterval  time.Duration
	ReportExportInterval time.Duration

	// Google Sheets export (optional)
	GoogleSpreadsheetID string
	SheetsExportEnabled bool
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8082"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 15*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/hisab.db"),
		DataBackend:  getEnv("DATA_BACKEND", "sqlite"),

		AMQPURL:            getEnv("AMQP_URL", ""),
		AMQPExchange:       getEnv("AMQP_EXCHANGE", "hisab"),
		AMQPEventsQueue:    getEnv("AMQP_EVENTS_QUEUE", "ledger_events"),
		AMQPReconcileQueue: getEnv("AMQP_RECONCILE_QUEUE", "reconcile_requests"),

		ReconcileInterval:    getEnvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		BudgetCheckInterval:  getEnvDuration("BUDGET_CHECK_INTERVAL", 1*time.Hour),
		ReportExportInterval: getEnvDuration("REPORT_EXPORT_INTERVAL", 24*time.Hour),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
	}
	cfg.SheetsExportEnabled = cfg.GoogleSpreadsheetID != ""

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}

		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsQueue == "" {
			errors = append(errors, "AMQP events queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPReconcileQueue == "" {
			errors = append(errors, "AMQP reconcile queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPEventsQueue != "" && c.AMQPEventsQueue == c.AMQPReconcileQueue {
			errors = append(errors, "AMQP events queue and reconcile queue must be distinct")
		}
	}

	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}

	if c.ReconcileInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at least 1 minute", c.ReconcileInterval))
	} else if c.ReconcileInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid reconcile interval %v: must be at most 24 hours", c.ReconcileInterval))
	}

	if c.BudgetCheckInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid budget check interval %v: must be at least 1 minute", c.BudgetCheckInterval))
	} else if c.BudgetCheckInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid budget check interval %v: must be at most 7 days", c.BudgetCheckInterval))
	}

	if c.ReportExportInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid report export interval %v: must be at least 1 minute", c.ReportExportInterval))
	} else if c.ReportExportInterval > 7*24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report export interval %v: must be at most 7 days", c.ReportExportInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
