package coordinator

import (
	"log/slog"

	"github.com/sebas/callbridge/services/callbridge/session"
)

// Platform callbacks addressed to an existing call. Each one is a no-op
// for an unknown id.

func (c *Coordinator) OnAnswer(callID string) {
	c.logErr("answer", callID, c.WithSession(callID, (*session.Session).Answer))
}

func (c *Coordinator) OnReject(callID string) {
	c.logErr("reject", callID, c.WithSession(callID, (*session.Session).Reject))
}

func (c *Coordinator) OnAbort(callID string) {
	c.logErr("abort", callID, c.WithSession(callID, (*session.Session).Abort))
}

func (c *Coordinator) OnDisconnect(callID string) {
	c.logErr("disconnect", callID, c.WithSession(callID, (*session.Session).Hangup))
}

func (c *Coordinator) OnHold(callID string) {
	c.logErr("hold", callID, c.WithSession(callID, (*session.Session).Hold))
}

func (c *Coordinator) OnUnhold(callID string) {
	c.logErr("unhold", callID, c.WithSession(callID, (*session.Session).Unhold))
}

func (c *Coordinator) OnPlayDTMF(callID string, digit rune) {
	err := c.WithSession(callID, func(s *session.Session) error {
		return s.PlayDigit(digit)
	})
	c.logErr("dtmf", callID, err)
}

func (c *Coordinator) OnAudioStateChanged(callID string, muted bool, route int, supportedRoutes int) {
	_ = c.WithSession(callID, func(s *session.Session) error {
		s.SetAudioState(session.AudioState{
			Muted:           muted,
			Route:           session.Route(route),
			SupportedRoutes: session.Route(supportedRoutes),
		})
		return nil
	})
}

func (c *Coordinator) OnExtrasChanged(callID string, extras map[string]any) {
	_ = c.WithSession(callID, func(s *session.Session) error {
		s.MergeExtras(extras)
		return nil
	})
}

func (c *Coordinator) OnConference(first, second string) {
	c.logErr("conference", first, c.Conference(first, second))
}

func (c *Coordinator) logErr(op, callID string, err error) {
	if err != nil {
		slog.Warn("[Coordinator] Platform callback failed", "op", op, "call_id", callID, "error", err)
	}
}
