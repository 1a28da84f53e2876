// Package session binds one Target description to one physical probe for
// the lifetime of an operation, and owns releasing that probe.
package session

import (
	"fmt"
	"io"

	"github.com/arm-debug/probeutil/internal/coresight"
	"github.com/arm-debug/probeutil/internal/probe"
	"github.com/arm-debug/probeutil/internal/target"
	"github.com/arm-debug/probeutil/internal/xerrors"
	"github.com/arm-debug/probeutil/internal/xferlog"
)

// Session is the exclusive owner of one MasterProbe for one Target, for the
// duration of an operation. There is no finalizer: Go has no deterministic
// destructors, so release is Close()'s job alone, and every caller must
// `defer session.Close()`.
type Session struct {
	target   *target.Target
	master   *coresight.MasterProbe
	protocol probe.WireProtocol
	closed   bool
	poisoned error
}

// Open attaches p with the requested protocol and binds it to tg.
func Open(p probe.DebugProbe, tg *target.Target, protocol probe.WireProtocol) (*Session, error) {
	negotiated, err := p.Attach(protocol)
	if err != nil {
		return nil, err
	}
	if negotiated != protocol {
		xferlog.Warnf("session: probe %s negotiated %s instead of requested %s", p.Name(), negotiated, protocol)
	}
	return &Session{target: tg, master: coresight.New(p), protocol: protocol}, nil
}

// Target returns the bound chip description.
func (s *Session) Target() *target.Target { return s.target }

// Probe returns the bound AP/DP layer, for constructing a memory.Interface
// or core.Core against a specific AP. It fails if the session has been
// invalidated by Invalidate.
func (s *Session) Probe() (*coresight.MasterProbe, error) {
	if s.poisoned != nil {
		return nil, s.poisoned
	}
	return s.master, nil
}

// Invalidate is called by an operation that hit err while it held the
// probe. A recoverable error leaves the session usable for a retry. Only a
// ProbeTransport error for which a reattach also fails poisons the
// session; the caller's next Probe() call then returns
// the poisoning error instead of a stale MasterProbe.
func (s *Session) Invalidate(err error) error {
	if err == nil || s.poisoned != nil {
		return err
	}
	if !xerrors.Is(err, xerrors.KindProbeTransport) {
		return err
	}
	if _, reattachErr := s.master.Probe().Attach(s.protocol); reattachErr != nil {
		s.poisoned = fmt.Errorf("session: probe unreachable after transport error, reattach failed: %w", err)
		xferlog.Warnf("session: %v", s.poisoned)
	}
	return err
}

// Close detaches the probe and, if the probe implements io.Closer, closes
// it to release its handle. Idempotent: calling it more than once (e.g.
// once explicitly and once via a deferred call) is harmless.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	p := s.master.Probe()
	err := p.Detach()
	if c, ok := p.(io.Closer); ok {
		if cerr := c.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
