package authsession

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsession/session"
)

// ListSessions returns the active refresh sessions of accountID, newest
// first. currentRefresh, when set, flags the caller's own session.
func (e *Engine) ListSessions(ctx context.Context, accountID, currentRefresh string) ([]SessionInfo, error) {
	if e == nil || e.refresh == nil {
		return nil, ErrEngineNotReady
	}
	views, err := e.refresh.ListActive(ctx, accountID, currentRefresh)
	if err != nil {
		return nil, e.storeFailure(ctx, "sessions.list", err)
	}

	out := make([]SessionInfo, 0, len(views))
	for _, v := range views {
		out = append(out, SessionInfo{
			ID:         v.ID,
			DeviceName: v.Device.Name,
			IP:         v.Device.IP,
			UserAgent:  v.Device.UserAgent,
			CreatedAt:  v.CreatedAt,
			LastUsedAt: v.LastUsedAt,
			ExpiresAt:  v.ExpiresAt,
			Current:    v.Current,
		})
	}
	return out, nil
}

// RevokeSession revokes one session of accountID. Sessions of other
// accounts report ErrResourceNotFound, the same as missing ones.
func (e *Engine) RevokeSession(ctx context.Context, accountID, sessionID string) error {
	if e == nil || e.refresh == nil {
		return ErrEngineNotReady
	}
	err := e.refresh.RevokeByID(ctx, sessionID, accountID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return ErrResourceNotFound
	case err != nil:
		return e.storeFailure(ctx, "sessions.revoke_by_id", err)
	}

	e.metricInc(MetricSessionRevoked)
	e.emitAudit(ctx, auditEventSessionRevoked, true, accountID, sessionID, nil, nil)
	return nil
}
