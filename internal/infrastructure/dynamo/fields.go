package dynamo

// DynamoDB attribute names used in key, condition and update expressions.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldEmail         = "email"
	fieldGoogleSub     = "google_sub"
	fieldEmailVerified = "email_verified"
	fieldLastLoginAt   = "last_login_at"

	fieldOTPKey    = "otp_key"
	fieldOTPID     = "otp_id"
	fieldAttempts  = "attempts"
	fieldUsed      = "used"
	fieldExpiresAt = "expires_at"
)

const googleSubIndex = "google_sub-index"
