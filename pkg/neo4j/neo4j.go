package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Config describes the Neo4j connection. Fields are read with envconfig under the NEO4J prefix.
type Config struct {
	URI                   string `split_words:"true" default:"neo4j://localhost:7687"`
	Username              string `split_words:"true" default:"neo4j"`
	Password              string `split_words:"true"`
	Database              string `split_words:"true" default:"neo4j"`
	MaxConnectionPoolSize int    `split_words:"true" default:"50"`
	// Seconds.
	ConnectionTimeout int `split_words:"true" default:"10"`
	ConnectRetries    int `split_words:"true" default:"5"`
}

// New creates a driver and verifies connectivity, retrying with exponential backoff.
func (c *Config) New(ctx context.Context) (neo4j.DriverWithContext, error) {
	auth := neo4j.BasicAuth(c.Username, c.Password, "")
	timeout := time.Duration(c.ConnectionTimeout) * time.Second

	configure := func(cfg *neo4j.Config) {
		if c.MaxConnectionPoolSize > 0 {
			cfg.MaxConnectionPoolSize = c.MaxConnectionPoolSize
		}
		if timeout > 0 {
			cfg.ConnectionAcquisitionTimeout = timeout
		}
	}

	retries := c.ConnectRetries
	if retries <= 0 {
		retries = 1
	}
	delay := 100 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		driver, err := neo4j.NewDriverWithContext(c.URI, auth, configure)
		if err == nil {
			if err = driver.VerifyConnectivity(ctx); err == nil {
				return driver, nil
			}
			_ = driver.Close(ctx)
		}
		lastErr = err

		if timeout > 0 && delay > timeout {
			delay = timeout
		}
		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return nil, fmt.Errorf("neo4j connect cancelled: %w", ctx.Err())
		}
	}

	return nil, fmt.Errorf("neo4j connect failed after %d attempts: %w", retries, lastErr)
}
