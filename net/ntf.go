package net

import (
	"errors"
	"fmt"

	"github.com/lcx/flightrpc/metrics"
)

// NtfSender delivers unsolicited pushes through a CSTransport, paced by a funnel limiter.
type NtfSender struct {
	cs      CSTransport
	limiter *FunnelLimiter
}

// NewNtfSender creates a push sender. pushRateLimit is pushes per second; 0 sends unpaced.
func NewNtfSender(cs CSTransport, pushRateLimit int) *NtfSender {
	return &NtfSender{
		cs:      cs,
		limiter: NewFunnelLimiter(pushRateLimit),
	}
}

// NtfClient sends pkg to pkg.Addr. The package must be a push.
func (s *NtfSender) NtfClient(pkg *TransSendPkg) error {
	if pkg == nil {
		return errors.New("ntf pkg is nil")
	}
	if !pkg.Ntf {
		return fmt.Errorf("tag:%d ntf pkg is not a push", pkg.Tag)
	}
	if !pkg.Addr.IsValid() {
		return fmt.Errorf("tag:%d ntf invalid addr", pkg.Tag)
	}
	if s.cs == nil {
		return fmt.Errorf("tag:%d ntf CSTransport nil", pkg.Tag)
	}

	s.limiter.Take()
	if err := s.cs.SendToClient(pkg); err != nil {
		metrics.IncrCounterWithDimGroup("net", "ntf_send_total", 1, metrics.Dimension{"result": "error"})
		return err
	}
	metrics.IncrCounterWithDimGroup("net", "ntf_send_total", 1, metrics.Dimension{"result": "ok"})
	return nil
}

// SetRateLimit changes the push pacing.
func (s *NtfSender) SetRateLimit(pushRateLimit int) {
	s.limiter.Reload(pushRateLimit)
}
