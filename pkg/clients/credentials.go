package clients

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/patrongate/patrongate/pkg/gateway"
)

const (
	credentialsExistencePath = "/authn/credentials-existence"
	credentialsPath          = "/authn/credentials"
	passwordResetActionPath  = "/authn/password-reset-action"
	passwordResetPath        = "/authn/reset-password"
	passwordUpdatePath       = "/authn/update"
)

// Credentials talks to the credentials store.
type Credentials struct {
	client gateway.Client
}

func NewCredentials(client gateway.Client) *Credentials {
	return &Credentials{client: client}
}

// Exists reports whether the user has stored credentials.
func (c *Credentials) Exists(ctx context.Context, conn *gateway.ConnectionContext, userID string) (bool, error) {
	path := credentialsExistencePath + "?userId=" + url.QueryEscape(userID)
	env, err := call(ctx, c.client, http.MethodGet, path, conn, nil)
	if err != nil {
		return false, err
	}
	var body struct {
		CredentialsExist bool `json:"credentialsExist"`
	}
	if err := decode(env, &body); err != nil {
		return false, err
	}
	return body.CredentialsExist, nil
}

// Delete removes the user's credentials.
func (c *Credentials) Delete(ctx context.Context, conn *gateway.ConnectionContext, userID string) error {
	path := credentialsPath + "?userId=" + url.QueryEscape(userID)
	env, err := call(ctx, c.client, http.MethodDelete, path, conn, nil)
	if err != nil {
		return err
	}
	return expectOK(env)
}

// ResetAction is the persisted, time-bounded record backing one password
// reset link.
type ResetAction struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ExpirationTime time.Time `json:"expirationTime"`
}

// CreateResetAction persists a reset action and reports whether the user
// already had a password set (drives the "create" vs "reset" wording of
// the notification).
func (c *Credentials) CreateResetAction(ctx context.Context, conn *gateway.ConnectionContext, action ResetAction) (passwordExists bool, err error) {
	env, err := call(ctx, c.client, http.MethodPost, passwordResetActionPath, conn, marshalBody(action))
	if err != nil {
		return false, err
	}
	var body struct {
		PasswordExists bool `json:"passwordExists"`
	}
	if err := decode(env, &body); err != nil {
		return false, err
	}
	return body.PasswordExists, nil
}

// GetResetAction loads a persisted reset action by id.
func (c *Credentials) GetResetAction(ctx context.Context, conn *gateway.ConnectionContext, actionID string) (*ResetAction, error) {
	env, err := call(ctx, c.client, http.MethodGet, passwordResetActionPath+"/"+url.PathEscape(actionID), conn, nil)
	if err != nil {
		return nil, err
	}
	var action ResetAction
	if err := decode(env, &action); err != nil {
		return nil, err
	}
	return &action, nil
}

// ResetPassword writes the new password referenced by a reset action and
// reports whether this was the first password for the account.
func (c *Credentials) ResetPassword(ctx context.Context, conn *gateway.ConnectionContext, actionID, newPassword string) (isNewPassword bool, err error) {
	payload := map[string]string{
		"passwordResetActionId": actionID,
		"newPassword":           newPassword,
	}
	env, err := call(ctx, c.client, http.MethodPost, passwordResetPath, conn, marshalBody(payload))
	if err != nil {
		return false, err
	}
	var body struct {
		IsNewPassword bool `json:"isNewPassword"`
	}
	if err := decode(env, &body); err != nil {
		return false, err
	}
	return body.IsNewPassword, nil
}

// UpdatePassword performs an authenticated password change (old password
// verified by the credentials store).
func (c *Credentials) UpdatePassword(ctx context.Context, conn *gateway.ConnectionContext, userID, username, oldPassword, newPassword string) error {
	payload := map[string]string{
		"userId":      userID,
		"username":    username,
		"password":    oldPassword,
		"newPassword": newPassword,
	}
	env, err := call(ctx, c.client, http.MethodPost, passwordUpdatePath, conn, marshalBody(payload))
	if err != nil {
		return err
	}
	return expectOK(env)
}
