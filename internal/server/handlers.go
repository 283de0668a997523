package server

import (
	"context"
	"encoding/json"

	"github.com/osokin-dev/gatehouse/internal/apperr"
	"github.com/osokin-dev/gatehouse/internal/bus"
	"github.com/osokin-dev/gatehouse/internal/identity"
	"github.com/osokin-dev/gatehouse/internal/logging"
	"github.com/osokin-dev/gatehouse/internal/server/models"
	"github.com/osokin-dev/gatehouse/internal/twofa"
)

type identitySvc interface {
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	Register(ctx context.Context, email, password string) (*models.Identity, error)
	OAuthCallback(ctx context.Context, code string) (*identity.Session, error)
	SetUsername(ctx context.Context, identityID int64, username, avatarKey string) (*identity.Session, error)
	Me(ctx context.Context, identityID int64) (*models.Identity, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	IssueSession(ctx context.Context, ident *models.Identity) (*identity.Session, error)
}

type twofaSvc interface {
	SetupTOTP(ctx context.Context, email string) (*twofa.Setup, error)
	EnableTOTP(ctx context.Context, identityID int64, secret, proof string) error
	VerifyTOTP(ctx context.Context, identityID int64, proof string) error
	DisableTOTP(ctx context.Context, identityID int64, proof string) error
	SendSMSCode(ctx context.Context, phone string) error
	VerifySMSCode(ctx context.Context, phone, code string) error
	SendEmailCode(ctx context.Context, email string) error
	VerifyEmailCode(ctx context.Context, email, code string) error
}

type avatarSvc interface {
	PresignedPutURL(ctx context.Context) (string, string, error)
	PresignedGetURL(ctx context.Context, key string) (string, error)
}

// Handlers binds bus subjects to the identity, 2FA and avatar services.
type Handlers struct {
	identity identitySvc
	twofa    twofaSvc
	avatars  avatarSvc
	logger   logging.Logger
}

func NewHandlers(is identitySvc, ts twofaSvc, as avatarSvc, logger logging.Logger) *Handlers {
	return &Handlers{
		identity: is,
		twofa:    ts,
		avatars:  as,
		logger:   logger.With("module", "handlers"),
	}
}

// Register subscribes every auth.* subject on the bus client.
func (h *Handlers) Register(client *bus.Client) error {
	routes := map[string]bus.Handler{
		bus.SubjectLogin:         h.Login,
		bus.SubjectRegister:      h.RegisterIdentity,
		bus.SubjectOAuthCallback: h.OAuthCallback,
		bus.SubjectTwoFASetup:    h.TwoFASetup,
		bus.SubjectTwoFAEnable:   h.TwoFAEnable,
		bus.SubjectTwoFAVerify:   h.TwoFAVerify,
		bus.SubjectTwoFADisable:  h.TwoFADisable,
		bus.SubjectSMSSend:       h.SMSSend,
		bus.SubjectSMSVerify:     h.SMSVerify,
		bus.SubjectEmailSend:     h.EmailSend,
		bus.SubjectEmailVerify:   h.EmailVerify,
		bus.SubjectTokenRefresh:  h.TokenRefresh,
		bus.SubjectLogout:        h.Logout,
		bus.SubjectMe:            h.Me,
		bus.SubjectSetUsername:   h.SetUsername,
		bus.SubjectAvatarUpload:  h.AvatarUpload,
	}
	for subject, handler := range routes {
		if _, err := client.Subscribe(subject, handler); err != nil {
			return err
		}
	}
	return nil
}

// failReply maps a service error into the envelope. Internal failures are
// logged with detail but leave with a generic message.
func (h *Handlers) failReply(ctx context.Context, err error) *bus.Reply {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal {
		h.logger.Error(ctx, "request failed", "error", err)
		return bus.Fail(string(kind), "internal error")
	}
	return bus.Fail(string(kind), err.Error())
}

func badPayload() *bus.Reply {
	return bus.Fail(string(apperr.KindValidation), "malformed payload")
}

func userView(identity *models.Identity) *bus.User {
	return &bus.User{
		ID:           identity.ID,
		Email:        identity.Email,
		Username:     identity.Username,
		AvatarKey:    identity.AvatarKey,
		TwoFAEnabled: identity.TwoFAEnabled,
		NeedsSetup:   identity.NeedsSetup(),
	}
}

func sessionReply(session *identity.Session) *bus.Reply {
	reply := bus.OK()
	reply.User = userView(session.Identity)
	if session.TwoFARequired {
		reply.TwoFARequired = true
		return reply
	}
	reply.Token = session.Token
	reply.RefreshToken = session.RefreshToken
	return reply
}

func (h *Handlers) Login(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	session, err := h.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		return h.failReply(ctx, err)
	}
	return sessionReply(session)
}

func (h *Handlers) RegisterIdentity(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	created, err := h.identity.Register(ctx, req.Email, req.Password)
	if err != nil {
		return h.failReply(ctx, err)
	}

	reply := bus.OK()
	reply.User = userView(created)
	return reply
}

func (h *Handlers) OAuthCallback(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}
	if req.Code == "" {
		return bus.Fail(string(apperr.KindValidation), "missing code")
	}

	session, err := h.identity.OAuthCallback(ctx, req.Code)
	if err != nil {
		return h.failReply(ctx, err)
	}
	return sessionReply(session)
}

func (h *Handlers) TwoFASetup(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	setup, err := h.twofa.SetupTOTP(ctx, req.Email)
	if err != nil {
		return h.failReply(ctx, err)
	}

	reply := bus.OK()
	reply.Secret = setup.Secret
	reply.OtpauthURL = setup.OtpauthURL
	reply.QR = setup.QR
	return reply
}

func (h *Handlers) TwoFAEnable(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		UserID int64  `json:"userId"`
		Secret string `json:"secret"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.twofa.EnableTOTP(ctx, req.UserID, req.Secret, req.Token); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

// TwoFAVerify completes a pending login: a valid proof mints the session
// the password step withheld.
func (h *Handlers) TwoFAVerify(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		UserID int64  `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.twofa.VerifyTOTP(ctx, req.UserID, req.Token); err != nil {
		return h.failReply(ctx, err)
	}

	current, err := h.identity.Me(ctx, req.UserID)
	if err != nil {
		return h.failReply(ctx, err)
	}
	session, err := h.identity.IssueSession(ctx, current)
	if err != nil {
		return h.failReply(ctx, err)
	}
	return sessionReply(session)
}

func (h *Handlers) TwoFADisable(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		UserID int64  `json:"userId"`
		Token  string `json:"token"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.twofa.DisableTOTP(ctx, req.UserID, req.Token); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) SMSSend(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}
	if req.Phone == "" {
		return bus.Fail(string(apperr.KindValidation), "missing phone")
	}

	if err := h.twofa.SendSMSCode(ctx, req.Phone); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) SMSVerify(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Phone string `json:"phone"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.twofa.VerifySMSCode(ctx, req.Phone, req.Code); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) EmailSend(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}
	if req.Email == "" {
		return bus.Fail(string(apperr.KindValidation), "missing email")
	}

	if err := h.twofa.SendEmailCode(ctx, req.Email); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) EmailVerify(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.twofa.VerifyEmailCode(ctx, req.Email, req.Code); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) TokenRefresh(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	session, err := h.identity.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return h.failReply(ctx, err)
	}
	return sessionReply(session)
}

func (h *Handlers) Logout(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	if err := h.identity.Logout(ctx, req.RefreshToken); err != nil {
		return h.failReply(ctx, err)
	}
	return bus.OK()
}

func (h *Handlers) Me(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	current, err := h.identity.Me(ctx, req.UserID)
	if err != nil {
		return h.failReply(ctx, err)
	}

	reply := bus.OK()
	reply.User = userView(current)
	if current.AvatarKey != "" {
		if url, err := h.avatars.PresignedGetURL(ctx, current.AvatarKey); err == nil {
			reply.User.AvatarURL = url
		} else {
			h.logger.Warn(ctx, "avatar presign failed", "identity_id", current.ID, "error", err)
		}
	}
	return reply
}

func (h *Handlers) SetUsername(ctx context.Context, data []byte) *bus.Reply {
	var req struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return badPayload()
	}

	session, err := h.identity.SetUsername(ctx, req.UserID, req.Username, req.Avatar)
	if err != nil {
		return h.failReply(ctx, err)
	}
	return sessionReply(session)
}

func (h *Handlers) AvatarUpload(ctx context.Context, data []byte) *bus.Reply {
	key, url, err := h.avatars.PresignedPutURL(ctx)
	if err != nil {
		return h.failReply(ctx, err)
	}

	reply := bus.OK()
	reply.UploadKey = key
	reply.UploadURL = url
	return reply
}
