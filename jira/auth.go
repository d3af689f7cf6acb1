package jira

import (
	"encoding/base64"

	"jira-sync/models"
)

// Credentials is the unresolved credential material of an integration.
type Credentials struct {
	Kind        models.AuthKind `json:"auth_kind,omitempty"`
	AccessToken string          `json:"access_token,omitempty"`
	Email       string          `json:"email,omitempty"`
	APIToken    string          `json:"api_token,omitempty"`
	Username    string          `json:"username,omitempty"`
	Password    string          `json:"password,omitempty"`
}

func (c Credentials) HasAccessToken() bool { return c.AccessToken != "" }
func (c Credentials) HasAPIToken() bool    { return c.Email != "" && c.APIToken != "" }
func (c Credentials) HasPassword() bool    { return c.Username != "" && c.Password != "" }

// ResolveKind returns the explicit kind when its fields are present, otherwise
// infers it from the populated fields (token, email+api token, username+password).
func (c Credentials) ResolveKind() (models.AuthKind, error) {
	switch c.Kind {
	case models.AuthKindOAuth:
		if c.HasAccessToken() {
			return c.Kind, nil
		}
		return "", authConfigError("OAuth selected but no access token supplied")
	case models.AuthKindAPIToken:
		if c.HasAPIToken() {
			return c.Kind, nil
		}
		return "", authConfigError("API token selected but email or API token is missing")
	case models.AuthKindBasic:
		if c.HasPassword() {
			return c.Kind, nil
		}
		return "", authConfigError("basic auth selected but username or password is missing")
	case "":
	default:
		return "", authConfigError("unknown auth kind " + string(c.Kind))
	}

	switch {
	case c.HasAccessToken():
		return models.AuthKindOAuth, nil
	case c.HasAPIToken():
		return models.AuthKindAPIToken, nil
	case c.HasPassword():
		return models.AuthKindBasic, nil
	}
	return "", authConfigError("no usable credentials supplied")
}

// BuildAuthHeader renders the Authorization header value for the credentials.
func BuildAuthHeader(c Credentials) (string, error) {
	kind, err := c.ResolveKind()
	if err != nil {
		return "", err
	}
	switch kind {
	case models.AuthKindOAuth:
		return "Bearer " + c.AccessToken, nil
	case models.AuthKindAPIToken:
		return basic(c.Email, c.APIToken), nil
	case models.AuthKindBasic:
		return basic(c.Username, c.Password), nil
	}
	return "", authConfigError("unsupported auth kind " + string(kind))
}

// CredentialsFrom extracts the stored credential set of an integration.
func CredentialsFrom(in *models.Integration) Credentials {
	return Credentials{
		Kind:        in.AuthKind,
		AccessToken: in.AccessToken,
		Email:       in.Email,
		APIToken:    in.APIToken,
		Username:    in.Username,
		Password:    in.Password,
	}
}

func basic(user, secret string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+secret))
}

func authConfigError(msg string) *Error {
	e := NewError(CodeAuthConfig, msg)
	e.Solution = "Provide an OAuth access token, an account email with an API token, or a username with a password."
	return e
}
