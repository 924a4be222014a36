package scylla

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

var keyspacePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

type Config struct {
	Hosts             []string
	Keyspace          string
	Username          string
	Password          string
	ReplicationFactor int
	Consistency       gocql.Consistency
	Timeout           time.Duration
}

// NewSession ensures the keyspace and history table exist and returns a
// session bound to the keyspace.
func NewSession(ctx context.Context, cfg Config, logger *slog.Logger) (*gocql.Session, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}

	baseSession, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer baseSession.Close()
	if err := ensureKeyspace(ctx, baseSession, cfg); err != nil {
		return nil, err
	}

	session, err := newCluster(cfg, cfg.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.Keyspace, err)
	}
	if err := ensureTables(ctx, session, cfg); err != nil {
		session.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	}
	return session, nil
}

func validate(cfg Config) error {
	if len(cfg.Hosts) == 0 {
		return fmt.Errorf("scylla: at least one host is required")
	}
	if !keyspacePattern.MatchString(cfg.Keyspace) {
		return fmt.Errorf("invalid keyspace name: %s", cfg.Keyspace)
	}
	return nil
}

func newCluster(cfg Config, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = cfg.Consistency
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}
	}
	return cluster
}

func ensureKeyspace(ctx context.Context, session *gocql.Session, cfg Config) error {
	rf := cfg.ReplicationFactor
	if rf <= 0 {
		rf = 1
	}
	cql := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.Keyspace, rf,
	)
	if err := session.Query(cql).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace: %w", err)
	}
	return nil
}

func ensureTables(ctx context.Context, session *gocql.Session, cfg Config) error {
	history := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.booking_history (
	booking_id text,
	at timestamp,
	event_id text,
	event text,
	from_status text,
	to_status text,
	trigger text,
	reason text,
	PRIMARY KEY (booking_id, at, event_id)
) WITH CLUSTERING ORDER BY (at ASC, event_id ASC);`, cfg.Keyspace)
	if err := session.Query(history).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create booking_history table: %w", err)
	}
	return nil
}
