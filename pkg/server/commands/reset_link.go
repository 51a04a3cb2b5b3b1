package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patrongate/patrongate/internal/pipeline"
	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Configuration entries consulted by the reset-link workflows.
const (
	resetConfigModule = "PATRONGATE"
	resetConfigName   = "resetPassword"

	configCodeHost       = "HOST"
	configCodeLinkPath   = "RESET_PASSWORD_UI_PATH"
	configCodeExpiration = "RESET_PASSWORD_LINK_EXPIRATION_TIME"
)

const (
	defaultResetLinkPath   = "/reset-password"
	defaultLinkExpiration  = 24 * time.Hour
	resetActionClaim       = "passwordResetActionId"
	eventPasswordReset     = "RESET_PASSWORD_EVENT"
	eventPasswordCreate    = "CREATE_PASSWORD_EVENT"
	eventPasswordChanged   = "PASSWORD_CHANGED_EVENT"
	eventPasswordCreatedOK = "PASSWORD_CREATED_EVENT"
)

// Pipeline context keys shared by the reset workflows.
const (
	ctxKeyConfig         = "config"
	ctxKeyUser           = "user"
	ctxKeyActionID       = "actionId"
	ctxKeyPasswordExists = "passwordExists"
	ctxKeyToken          = "token"
	ctxKeyLink           = "link"
)

// ResetLink is the outcome of a generate-link run.
type ResetLink struct {
	Link string `json:"link"`
}

type GenerateResetLinkParams struct {
	UserID string
}

// GenerateResetLinkCommand creates a time-bounded password reset link for
// one user: persist a reset action, sign a token referencing it, compose
// the link from the tenant's configured host, and notify the user.
type GenerateResetLinkCommand struct {
	client        gateway.Client
	users         *clients.Users
	configuration *clients.Configuration
	credentials   *clients.Credentials
	signer        *clients.TokenSigner
	notifications *clients.Notifications
	logger        logger.Logger
	now           func() time.Time
}

type GenerateResetLinkOption func(*GenerateResetLinkCommand)

func WithGenerateResetLinkLogger(l logger.Logger) GenerateResetLinkOption {
	return func(c *GenerateResetLinkCommand) {
		c.logger = l
	}
}

// WithGenerateResetLinkClock overrides the expiry clock in tests.
func WithGenerateResetLinkClock(now func() time.Time) GenerateResetLinkOption {
	return func(c *GenerateResetLinkCommand) {
		c.now = now
	}
}

func NewGenerateResetLinkCommand(client gateway.Client, opts ...GenerateResetLinkOption) *GenerateResetLinkCommand {
	c := &GenerateResetLinkCommand{
		client:        client,
		users:         clients.NewUsers(client),
		configuration: clients.NewConfiguration(client),
		credentials:   clients.NewCredentials(client),
		signer:        clients.NewTokenSigner(client),
		notifications: clients.NewNotifications(client),
		logger:        logger.NewNoopLogger(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *GenerateResetLinkCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *GenerateResetLinkParams) (*ResetLink, error) {
	runner := pipeline.NewRunner("generate-reset-link", []pipeline.Step{
		{Name: "load_configuration", Run: func(ctx context.Context, pctx *pipeline.Context) error {
			values, err := c.configuration.Lookup(ctx, conn, resetConfigModule, resetConfigName)
			if err != nil {
				return err
			}
			pctx.Set(ctxKeyConfig, values)
			return nil
		}},
		{Name: "load_user", Run: func(ctx context.Context, pctx *pipeline.Context) error {
			user, err := c.users.FindByID(ctx, conn, params.UserID)
			if err != nil {
				encoded := serverErrors.FromError(err)
				if encoded.HTTPStatus() == 404 {
					return serverErrors.UnprocessableInput("user.not-found", params.UserID)
				}
				return err
			}
			if username, _ := user["username"].(string); username == "" {
				return serverErrors.UnprocessableInput("user.absent.username", params.UserID)
			}
			pctx.Set(ctxKeyUser, user)
			return nil
		}},
		{Name: "persist_reset_action", Run: func(ctx context.Context, pctx *pipeline.Context) error {
			action := clients.ResetAction{
				ID:             uuid.NewString(),
				UserID:         params.UserID,
				ExpirationTime: c.now().Add(linkExpiration(configValues(pctx))),
			}
			passwordExists, err := c.credentials.CreateResetAction(ctx, conn, action)
			if err != nil {
				return err
			}
			pctx.Set(ctxKeyActionID, action.ID)
			pctx.Set(ctxKeyPasswordExists, passwordExists)
			return nil
		}},
		{Name: "sign_token", Run: func(ctx context.Context, pctx *pipeline.Context) error {
			user, _ := pctx.Get(ctxKeyUser)
			username, _ := user.(map[string]any)["username"].(string)
			token, err := c.signer.Sign(ctx, conn, map[string]any{
				"sub":            username,
				resetActionClaim: pctx.GetString(ctxKeyActionID),
			})
			if err != nil {
				return err
			}
			pctx.Set(ctxKeyToken, token)
			return nil
		}},
		{Name: "compose_link", Run: func(ctx context.Context, pctx *pipeline.Context) error {
			values := configValues(pctx)
			host := values[configCodeHost]
			if host == "" {
				return serverErrors.UnprocessableInput("config.absent.host", resetConfigModule+"/"+resetConfigName)
			}
			path := values[configCodeLinkPath]
			if path == "" {
				path = defaultResetLinkPath
			}
			pctx.Set(ctxKeyLink, strings.TrimSuffix(host, "/")+path+"/"+pctx.GetString(ctxKeyToken))
			return nil
		}},
		{Name: "notify_user", BestEffort: true, Run: func(ctx context.Context, pctx *pipeline.Context) error {
			event := eventPasswordCreate
			if exists, _ := pctx.Get(ctxKeyPasswordExists); exists == true {
				event = eventPasswordReset
			}
			user, _ := pctx.Get(ctxKeyUser)
			return c.notifications.Send(ctx, conn, clients.Notification{
				RecipientID: params.UserID,
				EventConfig: event,
				Context: map[string]any{
					"user": user,
					"link": pctx.GetString(ctxKeyLink),
				},
				Language: "en",
			})
		}},
	}, pipeline.WithLogger(c.logger))

	pctx, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}
	return &ResetLink{Link: pctx.GetString(ctxKeyLink)}, nil
}

func configValues(pctx *pipeline.Context) map[string]string {
	values, _ := pctx.Get(ctxKeyConfig)
	m, _ := values.(map[string]string)
	return m
}

// linkExpiration reads the configured link lifetime in hours, falling
// back to one day on absent or malformed values.
func linkExpiration(values map[string]string) time.Duration {
	raw := values[configCodeExpiration]
	if raw == "" {
		return defaultLinkExpiration
	}
	hours, err := strconv.Atoi(raw)
	if err != nil || hours <= 0 {
		return defaultLinkExpiration
	}
	return time.Duration(hours) * time.Hour
}

// ResetActionContext is the validated state both the validate and reset
// operations work from.
type ResetActionContext struct {
	ActionID string
	UserID   string
}

// ValidateResetLinkCommand checks the reset token presented by a caller:
// parse the action reference out of the token, load the persisted
// action, and verify it has not expired and its user still exists.
type ValidateResetLinkCommand struct {
	users       *clients.Users
	credentials *clients.Credentials
	logger      logger.Logger
	now         func() time.Time
}

type ValidateResetLinkOption func(*ValidateResetLinkCommand)

func WithValidateResetLinkLogger(l logger.Logger) ValidateResetLinkOption {
	return func(c *ValidateResetLinkCommand) {
		c.logger = l
	}
}

func WithValidateResetLinkClock(now func() time.Time) ValidateResetLinkOption {
	return func(c *ValidateResetLinkCommand) {
		c.now = now
	}
}

func NewValidateResetLinkCommand(client gateway.Client, opts ...ValidateResetLinkOption) *ValidateResetLinkCommand {
	c := &ValidateResetLinkCommand{
		users:       clients.NewUsers(client),
		credentials: clients.NewCredentials(client),
		logger:      logger.NewNoopLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ValidateResetLinkCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext) (*ResetActionContext, error) {
	actionID, err := resetActionIDFromToken(conn.AuthToken)
	if err != nil {
		return nil, err
	}

	action, err := c.credentials.GetResetAction(ctx, conn, actionID)
	if err != nil {
		encoded := serverErrors.FromError(err)
		if encoded.HTTPStatus() == 404 {
			return nil, serverErrors.UnprocessableInput("link.invalid", actionID)
		}
		return nil, err
	}
	if c.now().After(action.ExpirationTime) {
		return nil, serverErrors.UnprocessableInput("link.expired", actionID)
	}

	if _, err := c.users.FindByID(ctx, conn, action.UserID); err != nil {
		encoded := serverErrors.FromError(err)
		if encoded.HTTPStatus() == 404 {
			return nil, serverErrors.UnprocessableInput("user.not-found", action.UserID)
		}
		return nil, err
	}

	return &ResetActionContext{ActionID: actionID, UserID: action.UserID}, nil
}

// resetActionIDFromToken extracts the reset action reference from a link
// token. The signing service verified the token at the gateway; here only
// the claim payload is read.
func resetActionIDFromToken(token string) (string, error) {
	if token == "" {
		return "", serverErrors.UnprocessableInput("link.invalid", "no token on request")
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", serverErrors.UnprocessableInput("link.invalid", err.Error())
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", serverErrors.UnprocessableInput("link.invalid", "unexpected claims shape")
	}
	actionID, _ := claims[resetActionClaim].(string)
	if actionID == "" {
		return "", serverErrors.UnprocessableInput("link.invalid", "token carries no reset action")
	}
	return actionID, nil
}

type ResetPasswordParams struct {
	NewPassword string
}

// ResetPasswordCommand consumes a validated reset link: the same checks
// as validation, then the credential write, then a best-effort
// notification about the change.
type ResetPasswordCommand struct {
	validate      *ValidateResetLinkCommand
	credentials   *clients.Credentials
	notifications *clients.Notifications
	logger        logger.Logger
}

type ResetPasswordOption func(*ResetPasswordCommand)

func WithResetPasswordLogger(l logger.Logger) ResetPasswordOption {
	return func(c *ResetPasswordCommand) {
		c.logger = l
		WithValidateResetLinkLogger(l)(c.validate)
	}
}

func WithResetPasswordClock(now func() time.Time) ResetPasswordOption {
	return func(c *ResetPasswordCommand) {
		WithValidateResetLinkClock(now)(c.validate)
	}
}

func NewResetPasswordCommand(client gateway.Client, opts ...ResetPasswordOption) *ResetPasswordCommand {
	c := &ResetPasswordCommand{
		validate:      NewValidateResetLinkCommand(client),
		credentials:   clients.NewCredentials(client),
		notifications: clients.NewNotifications(client),
		logger:        logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResetPasswordCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ResetPasswordParams) error {
	if params.NewPassword == "" {
		return serverErrors.UnprocessableInput("password.absent", "new password is required")
	}

	action, err := c.validate.Execute(ctx, conn)
	if err != nil {
		return err
	}

	isNew, err := c.credentials.ResetPassword(ctx, conn, action.ActionID, params.NewPassword)
	if err != nil {
		return err
	}

	event := eventPasswordChanged
	if isNew {
		event = eventPasswordCreatedOK
	}
	if err := c.notifications.Send(ctx, conn, clients.Notification{
		RecipientID: action.UserID,
		EventConfig: event,
		Language:    "en",
	}); err != nil {
		c.logger.Warn("password change notification failed",
			zap.String("userId", action.UserID), zap.Error(err))
	}
	return nil
}
