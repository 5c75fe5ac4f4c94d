// Package firewallports tracks the cluster-wide allowed and restricted
// TCP/UDP port sets surfaced at /allowed-ports and /restricted-ports.
// It is pure bookkeeping: applying the sets to node firewalls is the node
// installer's job and stays out of scope here.
package firewallports

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kuberdock/kuberdock/internal/apierr"
)

// Protocol is one of the two transport protocols a port rule applies to.
type Protocol string

const (
	ProtocolTCP Protocol = "tcp"
	ProtocolUDP Protocol = "udp"
)

func (p Protocol) valid() bool {
	return p == ProtocolTCP || p == ProtocolUDP
}

// Kind distinguishes the allowed-ports list from the restricted-ports list.
type Kind string

const (
	KindAllowed    Kind = "allowed"
	KindRestricted Kind = "restricted"
)

// Rule is a single (port, protocol) entry in one of the two lists.
type Rule struct {
	Port     int
	Protocol Protocol
}

// Store persists allowed/restricted port rules.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a firewallports Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// List returns every rule of the given kind, ordered by port.
func (s *Store) List(ctx context.Context, kind Kind) ([]Rule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT port, protocol FROM firewall_port WHERE kind = $1 ORDER BY port
	`, string(kind))
	if err != nil {
		return nil, fmt.Errorf("listing %s ports: %w", kind, err)
	}
	defer rows.Close()

	var out []Rule
	for rows.Next() {
		var r Rule
		var proto string
		if err := rows.Scan(&r.Port, &proto); err != nil {
			return nil, fmt.Errorf("scanning firewall rule: %w", err)
		}
		r.Protocol = Protocol(proto)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, kind Kind, rule Rule) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx, `
		SELECT 1 FROM firewall_port WHERE kind = $1 AND port = $2 AND protocol = $3
	`, string(kind), rule.Port, string(rule.Protocol)).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking firewall rule: %w", err)
	}
	return true, nil
}

// Add inserts a rule, failing with Conflict if it already exists.
func (s *Store) Add(ctx context.Context, kind Kind, rule Rule) error {
	if !rule.Protocol.valid() {
		return apierr.New(apierr.KindValidationError, "protocol must be tcp or udp")
	}
	if rule.Port < 1 || rule.Port > 65535 {
		return apierr.New(apierr.KindValidationError, "port must be between 1 and 65535")
	}

	already, err := s.exists(ctx, kind, rule)
	if err != nil {
		return err
	}
	if already {
		return apierr.New(apierr.KindConflict, fmt.Sprintf(
			"port %d/%s is already in the %s list", rule.Port, rule.Protocol, kind))
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO firewall_port (kind, port, protocol) VALUES ($1, $2, $3)
	`, string(kind), rule.Port, string(rule.Protocol))
	if err != nil {
		return fmt.Errorf("inserting %s port rule: %w", kind, err)
	}
	return nil
}

// Remove deletes a rule. Removing a rule that doesn't exist is a no-op,
// matching the original's idempotent delete.
func (s *Store) Remove(ctx context.Context, kind Kind, rule Rule) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM firewall_port WHERE kind = $1 AND port = $2 AND protocol = $3
	`, string(kind), rule.Port, string(rule.Protocol))
	if err != nil {
		return fmt.Errorf("removing %s port rule: %w", kind, err)
	}
	return nil
}
