package jira

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"

	"jira-sync/models"
)

func TestBuildAuthHeader(t *testing.T) {
	tests := []struct {
		name    string
		creds   Credentials
		want    string
		wantErr bool
	}{
		{
			name:  "api token",
			creds: Credentials{Email: "qa@example.com", APIToken: "tok"},
			want:  "Basic " + base64.StdEncoding.EncodeToString([]byte("qa@example.com:tok")),
		},
		{
			name:  "oauth access token",
			creds: Credentials{AccessToken: "abc123"},
			want:  "Bearer abc123",
		},
		{
			name:  "legacy basic",
			creds: Credentials{Username: "admin", Password: "secret"},
			want:  "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")),
		},
		{
			name:  "explicit kind picks its own fields",
			creds: Credentials{Kind: models.AuthKindBasic, Username: "admin", Password: "secret", AccessToken: "ignored"},
			want:  "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:secret")),
		},
		{name: "nothing supplied", creds: Credentials{}, wantErr: true},
		{name: "email without token", creds: Credentials{Email: "qa@example.com"}, wantErr: true},
		{name: "explicit kind missing fields", creds: Credentials{Kind: models.AuthKindOAuth, Email: "qa@example.com", APIToken: "tok"}, wantErr: true},
		{name: "unknown kind", creds: Credentials{Kind: "KERBEROS", AccessToken: "x"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildAuthHeader(tt.creds)
			if tt.wantErr {
				assert.True(t, IsCode(err, CodeAuthConfig), "expected AUTH_CONFIG_ERROR, got %v", err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCredentialsFrom(t *testing.T) {
	in := &models.Integration{AuthKind: models.AuthKindAPIToken, Email: "qa@example.com", APIToken: "tok"}
	creds := CredentialsFrom(in)

	kind, err := creds.ResolveKind()
	assert.NoError(t, err)
	assert.Equal(t, models.AuthKindAPIToken, kind)
}
