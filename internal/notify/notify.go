// Package notify delivers recovery verification codes over out-of-band
// channels. The vault core never talks to the network itself; it hands a
// code and a destination to a Channel.
package notify

import (
	"log/slog"

	"github.com/coffer-fs/coffer/internal/apperr"
	"github.com/coffer-fs/coffer/internal/domain"
)

// Channel sends a verification code to one kind of destination.
type Channel interface {
	// Kind names the channel implementation.
	Kind() domain.ChannelKind
	// Available reports whether the channel is configured well enough to
	// attempt a send.
	Available() bool
	// Send delivers the code to the address. The code expires; minutes
	// tells the recipient how long it stays valid.
	Send(address, code string, minutes int) error
}

// Dispatcher routes a recovery channel to its implementation.
type Dispatcher struct {
	channels map[domain.ChannelKind]Channel
	logger   *slog.Logger
}

// NewDispatcher indexes the given channels by kind. A later channel of the
// same kind replaces an earlier one.
func NewDispatcher(logger *slog.Logger, channels ...Channel) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{channels: make(map[domain.ChannelKind]Channel, len(channels)), logger: logger}
	for _, ch := range channels {
		d.channels[ch.Kind()] = ch
	}
	return d
}

// Dispatch sends a code through the implementation matching the configured
// channel.
func (d *Dispatcher) Dispatch(ch domain.RecoveryChannel, code string, minutes int) error {
	impl, ok := d.channels[ch.Kind]
	if !ok || !impl.Available() {
		return apperr.Newf(apperr.CodeChannelUnavailable, "no %s delivery is configured", ch.Kind)
	}
	if err := impl.Send(ch.Address, code, minutes); err != nil {
		return apperr.Wrapf(apperr.CodeChannelUnavailable, err, "sending code over %s", ch.Kind)
	}
	d.logger.Info("verification code dispatched", "channel", ch.Kind)
	return nil
}

// Noop is a channel that accepts every send and delivers nothing. Useful
// in tests.
type Noop struct {
	Channel domain.ChannelKind
}

func (n Noop) Kind() domain.ChannelKind       { return n.Channel }
func (n Noop) Available() bool                { return true }
func (n Noop) Send(string, string, int) error { return nil }
