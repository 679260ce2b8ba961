package security

import (
	"fmt"
	"time"
)

// Thresholds below which a setting is reported as weak.
const (
	MinArgonMemoryKiB = 19 * 1024
	MaxAccessTTL      = time.Hour
	MaxResetTTL       = 24 * time.Hour
)

type PasswordReport struct {
	Memory      uint32 `json:"memory_kib"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"salt_length"`
	KeyLength   uint32 `json:"key_length"`
	MinLength   int    `json:"min_length"`
}

type Report struct {
	SigningAlgorithm    string         `json:"signing_algorithm"`
	AccessTTL           time.Duration  `json:"access_ttl"`
	RefreshTTL          time.Duration  `json:"refresh_ttl"`
	Argon2              PasswordReport `json:"argon2"`
	RefreshRotation     bool           `json:"refresh_rotation"`
	ReuseDetection      bool           `json:"reuse_detection"`
	SubjectTracking     bool           `json:"subject_tracking"`
	LockoutActive       bool           `json:"lockout_active"`
	RateLimitingActive  bool           `json:"rate_limiting_active"`
	RateLimitFailClosed bool           `json:"rate_limit_fail_closed"`
	ResetTokenTTL       time.Duration  `json:"reset_token_ttl"`
	AuditEnabled        bool           `json:"audit_enabled"`
	Warnings            []string       `json:"warnings,omitempty"`
}

type ReportInput struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	Password            PasswordReport
	TrackSubjects       bool
	MaxLoginAttempts    int
	LockoutDuration     time.Duration
	RateLimitEnabled    bool
	RateLimitFailClosed bool
	ResetTTL            time.Duration
	AuditEnabled        bool
}

// BuildReport derives the posture of input. Rotation and reuse detection
// are always on; they are reported so the output is self-describing.
func BuildReport(input ReportInput) Report {
	r := Report{
		SigningAlgorithm:    input.SigningAlgorithm,
		AccessTTL:           input.AccessTTL,
		RefreshTTL:          input.RefreshTTL,
		Argon2:              input.Password,
		RefreshRotation:     true,
		ReuseDetection:      true,
		SubjectTracking:     input.TrackSubjects,
		LockoutActive:       input.MaxLoginAttempts > 0 && input.LockoutDuration > 0,
		RateLimitingActive:  input.RateLimitEnabled,
		RateLimitFailClosed: input.RateLimitEnabled && input.RateLimitFailClosed,
		ResetTokenTTL:       input.ResetTTL,
		AuditEnabled:        input.AuditEnabled,
	}

	if input.AccessTTL > MaxAccessTTL {
		r.Warnings = append(r.Warnings, fmt.Sprintf("access tokens live %s; revocation relies on the denylist for that long", input.AccessTTL))
	}
	if input.Password.Memory < MinArgonMemoryKiB {
		r.Warnings = append(r.Warnings, fmt.Sprintf("argon2 memory %d KiB is below %d KiB", input.Password.Memory, MinArgonMemoryKiB))
	}
	if !r.LockoutActive {
		r.Warnings = append(r.Warnings, "account lockout is disabled")
	}
	if !r.RateLimitingActive {
		r.Warnings = append(r.Warnings, "rate limiting is disabled")
	}
	if !r.SubjectTracking {
		r.Warnings = append(r.Warnings, "subject tracking is off; logout-all cannot blacklist outstanding access tokens")
	}
	if input.ResetTTL > MaxResetTTL {
		r.Warnings = append(r.Warnings, fmt.Sprintf("reset tokens live %s", input.ResetTTL))
	}
	return r
}
