package commands

import (
	"context"

	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

type UpdateUserParams struct {
	ID   string
	User map[string]any
}

// UpdateUserCommand overwrites one user record in the user store. The
// composite slots are views over other services; only the user record
// itself is writable here.
type UpdateUserCommand struct {
	users  *clients.Users
	logger logger.Logger
}

type UpdateUserOption func(*UpdateUserCommand)

func WithUpdateUserLogger(l logger.Logger) UpdateUserOption {
	return func(c *UpdateUserCommand) {
		c.logger = l
	}
}

func NewUpdateUserCommand(client gateway.Client, opts ...UpdateUserOption) *UpdateUserCommand {
	c := &UpdateUserCommand{
		users:  clients.NewUsers(client),
		logger: logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *UpdateUserCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *UpdateUserParams) error {
	if params.User == nil {
		return serverErrors.UnprocessableInput("user.absent", "a user record is required")
	}
	if bodyID, _ := params.User["id"].(string); bodyID != "" && bodyID != params.ID {
		return serverErrors.UnprocessableInput("user.id.mismatch", bodyID)
	}
	return c.users.Update(ctx, conn, params.ID, params.User)
}

type ChangePasswordParams struct {
	OldPassword string
	NewPassword string
}

// ChangePasswordCommand performs an authenticated self-service password
// change. The caller is resolved from the auth token; the credentials
// store verifies the old password.
type ChangePasswordCommand struct {
	users       *clients.Users
	credentials *clients.Credentials
	logger      logger.Logger
}

type ChangePasswordOption func(*ChangePasswordCommand)

func WithChangePasswordLogger(l logger.Logger) ChangePasswordOption {
	return func(c *ChangePasswordCommand) {
		c.logger = l
	}
}

func NewChangePasswordCommand(client gateway.Client, opts ...ChangePasswordOption) *ChangePasswordCommand {
	c := &ChangePasswordCommand{
		users:       clients.NewUsers(client),
		credentials: clients.NewCredentials(client),
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ChangePasswordCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ChangePasswordParams) error {
	if params.OldPassword == "" || params.NewPassword == "" {
		return serverErrors.UnprocessableInput("password.absent", "old and new passwords are required")
	}

	userID, err := userIDFromToken(conn.AuthToken)
	if err != nil {
		return err
	}
	user, err := c.users.FindByID(ctx, conn, userID)
	if err != nil {
		return err
	}
	username, _ := user["username"].(string)
	if username == "" {
		return serverErrors.UnprocessableInput("user.absent.username", userID)
	}

	return c.credentials.UpdatePassword(ctx, conn, userID, username, params.OldPassword, params.NewPassword)
}

type DeleteCredentialsParams struct {
	UserID string
}

// DeleteCredentialsCommand removes a user's stored credentials so the
// next sign-in forces the reset flow.
type DeleteCredentialsCommand struct {
	credentials *clients.Credentials
	logger      logger.Logger
}

type DeleteCredentialsOption func(*DeleteCredentialsCommand)

func WithDeleteCredentialsLogger(l logger.Logger) DeleteCredentialsOption {
	return func(c *DeleteCredentialsCommand) {
		c.logger = l
	}
}

func NewDeleteCredentialsCommand(client gateway.Client, opts ...DeleteCredentialsOption) *DeleteCredentialsCommand {
	c := &DeleteCredentialsCommand{
		credentials: clients.NewCredentials(client),
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *DeleteCredentialsCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *DeleteCredentialsParams) error {
	exists, err := c.credentials.Exists(ctx, conn, params.UserID)
	if err != nil {
		return err
	}
	if !exists {
		return serverErrors.NotFound("/authn/credentials?userId=" + params.UserID)
	}
	return c.credentials.Delete(ctx, conn, params.UserID)
}
