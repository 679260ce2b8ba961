package session

import (
	"crypto/subtle"
	"sort"
	"time"
)

// DeviceMeta describes the client a refresh record was issued to.
type DeviceMeta struct {
	Name      string
	IP        string
	UserAgent string
}

// Record is one refresh-token session. Only the SHA-256 of the raw secret is
// ever held; the secret itself leaves the store exactly once, on issue.
type Record struct {
	ID         string
	AccountID  string
	SecretHash [32]byte
	Device     DeviceMeta
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  time.Time
}

// Active reports whether the record can still be exchanged at now.
func (r *Record) Active(now time.Time) bool {
	return r != nil && !r.Revoked && now.Before(r.ExpiresAt)
}

// Check maps an inactive record to the matching sentinel.
func (r *Record) Check(now time.Time) error {
	switch {
	case r == nil:
		return ErrNotFound
	case r.Revoked:
		return ErrRevoked
	case !now.Before(r.ExpiresAt):
		return ErrExpired
	}
	return nil
}

// View is the caller-safe projection of a Record used by session listings.
type View struct {
	ID         string
	Device     DeviceMeta
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
	Current    bool
}

// ViewOf projects r, flagging it as current when its hash equals currentHash.
func ViewOf(r *Record, currentHash [32]byte, hasCurrent bool) View {
	current := hasCurrent && subtle.ConstantTimeCompare(r.SecretHash[:], currentHash[:]) == 1
	return View{
		ID:         r.ID,
		Device:     r.Device,
		CreatedAt:  r.CreatedAt,
		LastUsedAt: r.LastUsedAt,
		ExpiresAt:  r.ExpiresAt,
		Current:    current,
	}
}

// SortNewestFirst orders views by creation time, newest first. Record ids
// are ULIDs, so they break ties in the same order.
func SortNewestFirst(views []View) {
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID > views[j].ID
		}
		return views[i].CreatedAt.After(views[j].CreatedAt)
	})
}
