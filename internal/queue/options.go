package queue

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// nameRe validates queue names: 1–64 chars, lowercase letters, digits or
// hyphens, starting with a letter or digit.
var nameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9\-]{0,63}$`)

// ErrInvalidName is returned when a queue name fails validation.
var ErrInvalidName = errors.New("queue: invalid queue name")

// Options holds the tunable parameters of one queue. The zero value of any
// field is replaced by its default; use DefaultOptions for the full set.
type Options struct {
	// Name identifies the queue. Informational only; one store holds one queue.
	Name string

	// Dedup enables duplicate suppression via the dedup index.
	Dedup bool

	// RequireAck controls the delivery contract. When true (the default) a
	// received message stays stored under a lease until Ack. When false the
	// message is deleted in the same transaction that delivers it.
	RequireAck bool

	// VisibilityTimeoutSecs is the lease duration after a delivery, during
	// which the message is invisible to further Receive calls.
	VisibilityTimeoutSecs int

	// MaxReceives bounds delivery attempts. A message whose lease expires
	// after its MaxReceives-th delivery is moved to the dead-letter partition.
	MaxReceives int

	// MaxRetentionHours bounds the age of entries kept by SweepDeadMessages.
	MaxRetentionHours int

	// SweepLive extends the retention sweep to live messages that have never
	// been delivered. Off by default: only dead letters are swept.
	SweepLive bool
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Name:                  "default",
		Dedup:                 false,
		RequireAck:            true,
		VisibilityTimeoutSecs: 30,
		MaxReceives:           3,
		MaxRetentionHours:     168, // one week
	}
}

// withDefaults fills zero-valued fields. RequireAck is deliberately not
// touched: false is a meaningful setting, so the caller that wants the
// default must start from DefaultOptions.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Name == "" {
		o.Name = def.Name
	}
	if o.VisibilityTimeoutSecs == 0 {
		o.VisibilityTimeoutSecs = def.VisibilityTimeoutSecs
	}
	if o.MaxReceives == 0 {
		o.MaxReceives = def.MaxReceives
	}
	if o.MaxRetentionHours == 0 {
		o.MaxRetentionHours = def.MaxRetentionHours
	}
	return o
}

// Validate returns the first inconsistency found.
func (o Options) Validate() error {
	if !nameRe.MatchString(o.Name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, o.Name)
	}
	if o.VisibilityTimeoutSecs < 1 {
		return errors.New("queue: visibility timeout must be at least 1 second")
	}
	if o.MaxReceives < 1 {
		return errors.New("queue: max receives must be at least 1")
	}
	if o.MaxRetentionHours < 1 {
		return errors.New("queue: max retention must be at least 1 hour")
	}
	return nil
}

func (o Options) visibilityTimeout() time.Duration {
	return time.Duration(o.VisibilityTimeoutSecs) * time.Second
}

func (o Options) maxRetention() time.Duration {
	return time.Duration(o.MaxRetentionHours) * time.Hour
}
