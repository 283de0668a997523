package bus

// Subjects mirror the gateway's HTTP routes 1:1 with dotted names.
const (
	SubjectLogin           = "auth.login"
	SubjectRegister        = "auth.register"
	SubjectOAuthCallback   = "auth.google.callback"
	SubjectTwoFASetup      = "auth.2fa.setup"
	SubjectTwoFAEnable     = "auth.2fa.enable"
	SubjectTwoFAVerify     = "auth.2fa.verify"
	SubjectTwoFADisable    = "auth.2fa.disable"
	SubjectSMSSend         = "auth.2fa.sms.send"
	SubjectSMSVerify       = "auth.2fa.sms.verify"
	SubjectEmailSend       = "auth.2fa.email.send"
	SubjectEmailVerify     = "auth.2fa.email.verify"
	SubjectTokenRefresh    = "auth.token.refresh"
	SubjectLogout          = "auth.logout"
	SubjectMe              = "auth.me"
	SubjectSetUsername     = "auth.set-username"
	SubjectAvatarUpload    = "auth.avatar.upload"
	SubjectEventRegistered = "auth.events.registered"
)
