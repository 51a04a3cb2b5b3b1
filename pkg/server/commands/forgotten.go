package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/patrongate/patrongate/pkg/clients"
	"github.com/patrongate/patrongate/pkg/gateway"
	"github.com/patrongate/patrongate/pkg/logger"
	serverErrors "github.com/patrongate/patrongate/pkg/server/errors"
)

// Configuration governing which user fields a forgotten-credential
// identifier may match. Tenants override the defaults per flow.
const (
	forgottenConfigName         = "forgottenData"
	configCodePasswordAliases   = "FORGOTTEN_PASSWORD_ALIASES"
	configCodeUsernameAliases   = "FORGOTTEN_USERNAME_ALIASES"
	eventUsernameLocated        = "LOCATE_USER_USERNAME_EVENT"
	defaultPasswordAliasListRaw = "username,personal.email,personal.phone,personal.mobilePhone"
	defaultUsernameAliasListRaw = "personal.email,personal.phone,personal.mobilePhone"
)

type ForgottenParams struct {
	Identifier string
}

// ForgottenPasswordCommand starts a password reset for a user located by
// an identifier the caller remembers: any configured alias field may
// match, exactly one active user must.
type ForgottenPasswordCommand struct {
	users         *clients.Users
	configuration *clients.Configuration
	resetLink     *GenerateResetLinkCommand
	logger        logger.Logger
}

type ForgottenPasswordOption func(*ForgottenPasswordCommand)

func WithForgottenPasswordLogger(l logger.Logger) ForgottenPasswordOption {
	return func(c *ForgottenPasswordCommand) {
		c.logger = l
		WithGenerateResetLinkLogger(l)(c.resetLink)
	}
}

func NewForgottenPasswordCommand(client gateway.Client, opts ...ForgottenPasswordOption) *ForgottenPasswordCommand {
	c := &ForgottenPasswordCommand{
		users:         clients.NewUsers(client),
		configuration: clients.NewConfiguration(client),
		resetLink:     NewGenerateResetLinkCommand(client),
		logger:        logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ForgottenPasswordCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ForgottenParams) (*ResetLink, error) {
	user, err := locateByAliases(ctx, c.users, c.configuration, conn, params.Identifier, configCodePasswordAliases, defaultPasswordAliasListRaw)
	if err != nil {
		return nil, err
	}
	id, _ := user["id"].(string)
	return c.resetLink.Execute(ctx, conn, &GenerateResetLinkParams{UserID: id})
}

// ForgottenUsernameCommand locates a user by a configured alias field and
// sends the username to them. The response never carries the username;
// it only travels over the notification channel.
type ForgottenUsernameCommand struct {
	users         *clients.Users
	configuration *clients.Configuration
	notifications *clients.Notifications
	logger        logger.Logger
}

type ForgottenUsernameOption func(*ForgottenUsernameCommand)

func WithForgottenUsernameLogger(l logger.Logger) ForgottenUsernameOption {
	return func(c *ForgottenUsernameCommand) {
		c.logger = l
	}
}

func NewForgottenUsernameCommand(client gateway.Client, opts ...ForgottenUsernameOption) *ForgottenUsernameCommand {
	c := &ForgottenUsernameCommand{
		users:         clients.NewUsers(client),
		configuration: clients.NewConfiguration(client),
		notifications: clients.NewNotifications(client),
		logger:        logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ForgottenUsernameCommand) Execute(ctx context.Context, conn *gateway.ConnectionContext, params *ForgottenParams) error {
	user, err := locateByAliases(ctx, c.users, c.configuration, conn, params.Identifier, configCodeUsernameAliases, defaultUsernameAliasListRaw)
	if err != nil {
		return err
	}
	id, _ := user["id"].(string)
	username, _ := user["username"].(string)
	if username == "" {
		return serverErrors.UnprocessableInput("user.absent.username", params.Identifier)
	}
	return c.notifications.Send(ctx, conn, clients.Notification{
		RecipientID: id,
		EventConfig: eventUsernameLocated,
		Context:     map[string]any{"user": user},
		Language:    "en",
	})
}

// locateByAliases resolves an identifier to exactly one active user. The
// alias field list comes from tenant configuration with a built-in
// default; the lookup is one disjunctive query so ambiguity is caught by
// the exactly-one check rather than by probing fields in order.
func locateByAliases(ctx context.Context, users *clients.Users, configuration *clients.Configuration, conn *gateway.ConnectionContext, identifier, configCode, defaults string) (map[string]any, error) {
	if identifier == "" {
		return nil, serverErrors.UnprocessableInput("identifier.absent", "an identifier is required")
	}

	values, err := configuration.Lookup(ctx, conn, resetConfigModule, forgottenConfigName)
	if err != nil {
		return nil, err
	}
	raw := values[configCode]
	if raw == "" {
		raw = defaults
	}

	var terms []string
	for _, field := range strings.Split(raw, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		terms = append(terms, fmt.Sprintf("%s==%q", field, identifier))
	}
	if len(terms) == 0 {
		return nil, serverErrors.UnprocessableInput("config.absent.aliases", configCode)
	}

	cql := fmt.Sprintf("(%s) and active==true", strings.Join(terms, " or "))
	user, err := users.FindOneByQuery(ctx, conn, cql)
	if err != nil {
		encoded := serverErrors.FromError(err)
		switch encoded.Code() {
		case serverErrors.CodeNotFound:
			return nil, serverErrors.UnprocessableInput("user.not-found", identifier)
		case serverErrors.CodeMultipleResults:
			return nil, serverErrors.UnprocessableInput("user.ambiguous", identifier)
		}
		return nil, err
	}
	return user, nil
}
