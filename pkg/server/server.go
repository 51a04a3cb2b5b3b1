// Package server is the business-logic facade of patrongate. It owns the
// gateway client and dispatches each operation to its command.
package server

import (
	"context"

	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	"github.com/patrongate/patrongate/pkg/server/commands"
	serverconfig "github.com/patrongate/patrongate/pkg/server/config"
)

// Server routes operations to their commands. Commands are built per
// call; they are cheap and carry no state between requests.
type Server struct {
	client    gateway.Client
	logger    logger.Logger
	listLimit int
	maxLimit  int
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithListLimits overrides the default and maximum page sizes for list
// operations.
func WithListLimits(defaultLimit, maxLimit int) Option {
	return func(s *Server) {
		s.listLimit = defaultLimit
		s.maxLimit = maxLimit
	}
}

// New builds a server around an already-configured gateway client.
func New(client gateway.Client, opts ...Option) *Server {
	s := &Server{
		client:    client,
		logger:    logger.NewNoopLogger(),
		listLimit: serverconfig.DefaultListLimit,
		maxLimit:  serverconfig.DefaultMaxListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetPatron returns the composite view of one user by id.
func (s *Server) GetPatron(ctx context.Context, conn *gateway.ConnectionContext, id string, includes []string) (*commands.CompositeUser, error) {
	return commands.NewComposeUserQuery(s.client, commands.WithComposeUserQueryLogger(s.logger)).
		Execute(ctx, conn, &commands.ComposeUserParams{ID: id, Includes: includes})
}

// GetPatronSelf returns the composite view of the calling user, resolved
// from the auth token.
func (s *Server) GetPatronSelf(ctx context.Context, conn *gateway.ConnectionContext, includes []string) (*commands.CompositeUser, error) {
	return commands.NewComposeUserQuery(s.client, commands.WithComposeUserQueryLogger(s.logger)).
		Execute(ctx, conn, &commands.ComposeUserParams{Self: true, Includes: includes})
}

// GetPatrons returns a composed page of users matching a query.
func (s *Server) GetPatrons(ctx context.Context, conn *gateway.ConnectionContext, query string, limit int, includes []string) (*commands.CompositeUsers, error) {
	if limit <= 0 {
		limit = s.listLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}
	return commands.NewComposeUsersQuery(s.client, commands.WithComposeUsersQueryLogger(s.logger)).
		Execute(ctx, conn, &commands.ComposeUsersParams{Query: query, Limit: limit, Includes: includes})
}

// GetPatronSummary returns the open-item tallies for one user.
func (s *Server) GetPatronSummary(ctx context.Context, conn *gateway.ConnectionContext, id string) (*commands.UserSummary, error) {
	return commands.NewUserSummaryQuery(s.client, commands.WithUserSummaryQueryLogger(s.logger)).
		Execute(ctx, conn, &commands.UserSummaryParams{UserID: id})
}

// UpdatePatron overwrites one user record.
func (s *Server) UpdatePatron(ctx context.Context, conn *gateway.ConnectionContext, id string, user map[string]any) error {
	return commands.NewUpdateUserCommand(s.client, commands.WithUpdateUserLogger(s.logger)).
		Execute(ctx, conn, &commands.UpdateUserParams{ID: id, User: user})
}

// ChangePassword performs a self-service password change for the caller.
func (s *Server) ChangePassword(ctx context.Context, conn *gateway.ConnectionContext, oldPassword, newPassword string) error {
	return commands.NewChangePasswordCommand(s.client, commands.WithChangePasswordLogger(s.logger)).
		Execute(ctx, conn, &commands.ChangePasswordParams{OldPassword: oldPassword, NewPassword: newPassword})
}

// DeletePatronCredentials removes a user's stored credentials.
func (s *Server) DeletePatronCredentials(ctx context.Context, conn *gateway.ConnectionContext, id string) error {
	return commands.NewDeleteCredentialsCommand(s.client, commands.WithDeleteCredentialsLogger(s.logger)).
		Execute(ctx, conn, &commands.DeleteCredentialsParams{UserID: id})
}

// GenerateResetLink creates a password reset link for one user.
func (s *Server) GenerateResetLink(ctx context.Context, conn *gateway.ConnectionContext, userID string) (*commands.ResetLink, error) {
	return commands.NewGenerateResetLinkCommand(s.client, commands.WithGenerateResetLinkLogger(s.logger)).
		Execute(ctx, conn, &commands.GenerateResetLinkParams{UserID: userID})
}

// ValidateResetLink checks the reset token on the connection.
func (s *Server) ValidateResetLink(ctx context.Context, conn *gateway.ConnectionContext) error {
	_, err := commands.NewValidateResetLinkCommand(s.client, commands.WithValidateResetLinkLogger(s.logger)).
		Execute(ctx, conn)
	return err
}

// ResetPassword consumes a reset link and writes the new password.
func (s *Server) ResetPassword(ctx context.Context, conn *gateway.ConnectionContext, newPassword string) error {
	return commands.NewResetPasswordCommand(s.client, commands.WithResetPasswordLogger(s.logger)).
		Execute(ctx, conn, &commands.ResetPasswordParams{NewPassword: newPassword})
}

// ForgottenPassword starts a reset for a user located by identifier.
func (s *Server) ForgottenPassword(ctx context.Context, conn *gateway.ConnectionContext, identifier string) (*commands.ResetLink, error) {
	return commands.NewForgottenPasswordCommand(s.client, commands.WithForgottenPasswordLogger(s.logger)).
		Execute(ctx, conn, &commands.ForgottenParams{Identifier: identifier})
}

// ForgottenUsername notifies a located user of their username.
func (s *Server) ForgottenUsername(ctx context.Context, conn *gateway.ConnectionContext, identifier string) error {
	return commands.NewForgottenUsernameCommand(s.client, commands.WithForgottenUsernameLogger(s.logger)).
		Execute(ctx, conn, &commands.ForgottenParams{Identifier: identifier})
}
