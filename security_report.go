package authsession

import "github.com/MrEthical07/authsession/internal/security"

type (
	SecurityReport         = security.Report
	PasswordSecurityReport = security.PasswordReport
)

// BuildSecurityReport summarizes the posture of cfg without connecting to
// any backend.
func BuildSecurityReport(cfg Config) SecurityReport {
	return security.BuildReport(security.ReportInput{
		SigningAlgorithm: "HS512",
		AccessTTL:        cfg.JWT.AccessTTL,
		RefreshTTL:       cfg.Refresh.TTL,
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
			MinLength:   cfg.Password.Policy.MinLength,
		},
		TrackSubjects:       cfg.Revocation.TrackSubjects,
		MaxLoginAttempts:    cfg.Lockout.MaxAttempts,
		LockoutDuration:     cfg.Lockout.Duration,
		RateLimitEnabled:    cfg.RateLimit.Enabled,
		RateLimitFailClosed: cfg.RateLimit.FailClosed,
		ResetTTL:            cfg.PasswordReset.TTL,
		AuditEnabled:        cfg.Audit.Enabled,
	})
}

// SecurityReport reports the posture of the engine's configuration.
func (e *Engine) SecurityReport() SecurityReport {
	return BuildSecurityReport(e.config)
}
