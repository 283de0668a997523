package bus

// User is the identity view carried in reply envelopes. It never includes
// credential material.
type User struct {
	ID           int64  `json:"id"`
	Email        string `json:"email"`
	Username     string `json:"username,omitempty"`
	AvatarKey    string `json:"avatarKey,omitempty"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	TwoFAEnabled bool   `json:"twofaEnabled,omitempty"`
	NeedsSetup   bool   `json:"needsSetup,omitempty"`
}

// Reply is the flat envelope every auth.* subject answers with. Optional
// fields are populated per operation; Kind carries the error taxonomy tag
// the gateway maps to an HTTP status.
type Reply struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`

	Token         string `json:"token,omitempty"`
	RefreshToken  string `json:"refreshToken,omitempty"`
	TwoFARequired bool   `json:"twofaRequired,omitempty"`
	User          *User  `json:"user,omitempty"`

	// 2FA setup payload.
	Secret     string `json:"secret,omitempty"`
	OtpauthURL string `json:"otpauth_url,omitempty"`
	QR         string `json:"qr,omitempty"`

	// Avatar upload payload.
	UploadKey string `json:"uploadKey,omitempty"`
	UploadURL string `json:"uploadUrl,omitempty"`
}

// OK returns a success envelope.
func OK() *Reply {
	return &Reply{Success: true}
}

// Fail returns a failure envelope with the given taxonomy kind and message.
func Fail(kind, message string) *Reply {
	return &Reply{Success: false, Kind: kind, Error: message}
}
