package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"jira-sync/jira"
	"jira-sync/models"
)

// ConnectionConfig is the user-supplied connection form.
type ConnectionConfig struct {
	URL string `json:"url"`
	jira.Credentials
	// WebhookSecret is stored on save; the handshake ignores it.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// UserSummary is the identity proven by a handshake.
type UserSummary struct {
	AccountID   string `json:"accountId,omitempty"`
	Name        string `json:"name,omitempty"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

// ConnectionResult is the outcome of TestConnection. Failures are reported in
// Error rather than returned.
type ConnectionResult struct {
	Success            bool                  `json:"success"`
	BaseURL            string                `json:"baseUrl,omitempty"`
	JiraType           models.DeploymentType `json:"jiraType"`
	APIVersion         string                `json:"apiVersion,omitempty"`
	AuthKind           models.AuthKind       `json:"authKind,omitempty"`
	CurrentUser        *UserSummary          `json:"currentUser,omitempty"`
	AccessibleProjects int                   `json:"accessibleProjects"`
	Error              *jira.Error           `json:"error,omitempty"`
}

// ConnectionValidator diagnoses a tracker connection step by step.
type ConnectionValidator struct {
	vendor         jira.Vendor
	probeTimeout   time.Duration
	requestTimeout time.Duration
}

func NewConnectionValidator(vendor jira.Vendor, probeTimeout, requestTimeout time.Duration) *ConnectionValidator {
	if probeTimeout <= 0 {
		probeTimeout = 30 * time.Second
	}
	if requestTimeout <= 0 {
		requestTimeout = 15 * time.Second
	}
	return &ConnectionValidator{
		vendor:         vendor,
		probeTimeout:   probeTimeout,
		requestTimeout: requestTimeout,
	}
}

// TestConnection runs the handshake: probe, type detection, server info,
// credentials, identity and project scope. It never returns an error.
func (v *ConnectionValidator) TestConnection(ctx context.Context, cfg ConnectionConfig) (result ConnectionResult) {
	result.JiraType = models.DeploymentUnknown
	defer func() {
		if r := recover(); r != nil {
			log.Printf("connection test panicked: url=%s panic=%v", cfg.URL, r)
			result.Success = false
			result.Error = jira.Errorf(jira.CodeUnexpected, "connection test failed unexpectedly")
			result.Error.Details = fmt.Sprint(r)
		}
	}()

	baseURL, err := v.vendor.Normalize(cfg.URL)
	if err != nil {
		return v.fail(result, err)
	}
	result.BaseURL = baseURL

	// reachability
	probe := jira.NewAnonymousClient(baseURL, "", jira.WithTimeout(v.probeTimeout), jira.WithMaxRetries(0))
	status, err := probe.Probe(ctx)
	if err != nil {
		return v.fail(result, err)
	}
	log.Printf("tracker reachable: url=%s status=%d", baseURL, status)

	// type and api version from the URL alone
	result.JiraType = v.vendor.DetectType(baseURL, nil)
	result.APIVersion = jira.APIVersionFor(result.JiraType)

	// best-effort server info
	anon := jira.NewAnonymousClient(baseURL, result.APIVersion, jira.WithTimeout(v.requestTimeout), jira.WithMaxRetries(0))
	if info, err := anon.ServerInfo(ctx); err != nil {
		log.Printf("server info unavailable: url=%s error=%v", baseURL, err)
	} else {
		result.JiraType = v.vendor.DetectType(baseURL, info)
		result.APIVersion = jira.APIVersionFor(result.JiraType)
	}

	// credentials
	kind, err := cfg.Credentials.ResolveKind()
	if err != nil {
		return v.fail(result, err)
	}
	result.AuthKind = kind
	client, err := jira.NewClient(baseURL, result.APIVersion, cfg.Credentials,
		jira.WithTimeout(v.requestTimeout), jira.WithMaxRetries(0))
	if err != nil {
		return v.fail(result, err)
	}

	// identity, a 401 is diagnosed against the credential shape
	me, err := client.Myself(ctx)
	if err != nil {
		return v.fail(result, v.identityError(result.JiraType, kind, err))
	}
	result.CurrentUser = &UserSummary{
		AccountID:   me.AccountID,
		Name:        me.Name,
		DisplayName: me.DisplayName,
		Email:       me.EmailAddress,
	}

	// scope
	projects, err := client.GetProjects(ctx)
	if err != nil {
		return v.fail(result, err)
	}
	result.AccessibleProjects = len(projects)
	if len(projects) == 0 {
		e := jira.NewError(jira.CodeNoProjects, "the account can sign in but sees no projects")
		e.Solution = "Grant the account Browse Projects permission on at least one project."
		return v.fail(result, e)
	}

	result.Success = true
	log.Printf("connection verified: url=%s type=%s api=%s user=%s projects=%d",
		baseURL, result.JiraType, result.APIVersion, me.DisplayName, len(projects))
	return result
}

func (v *ConnectionValidator) fail(result ConnectionResult, err error) ConnectionResult {
	result.Success = false
	e, ok := jira.AsError(err)
	if !ok {
		e = jira.NewError(jira.CodeUnexpected, "connection test failed unexpectedly")
		e.Details = err.Error()
		e.Err = err
	}
	result.Error = e
	log.Printf("connection test failed: url=%s code=%s message=%s", result.BaseURL, e.Code, e.Message)
	return result
}

// identityError maps a failed /myself call onto the taxonomy.
func (v *ConnectionValidator) identityError(t models.DeploymentType, kind models.AuthKind, err error) error {
	e, ok := jira.AsError(err)
	if !ok {
		return err
	}
	switch e.Code {
	case jira.CodeAuthenticationFailed:
		return diagnoseUnauthorized(t, kind, e.Details)
	case jira.CodeForbidden:
		f := jira.NewError(jira.CodeForbidden, "the credentials are valid but access was denied")
		f.Details = e.Details
		f.Solution = "Ask an administrator to grant the account access to the tracker and its REST API."
		return f
	case jira.CodeDNSError, jira.CodeConnectionRefused, jira.CodeTimeout, jira.CodeURLUnreachable:
		return e
	}
	u := jira.NewError(jira.CodeUnexpected, "the tracker answered the identity check with an error")
	u.Details = e.Details
	if u.Details == "" {
		u.Details = e.Message
	}
	u.Err = e
	return u
}

// diagnoseUnauthorized cross-references the detected deployment with the
// credential shape to explain a 401.
func diagnoseUnauthorized(t models.DeploymentType, kind models.AuthKind, upstream string) *jira.Error {
	var e *jira.Error
	switch {
	case t == models.DeploymentCloud && kind == models.AuthKindBasic:
		e = jira.NewError(jira.CodeWrongAuthMethodCloud, "cloud instances do not accept username and password")
		e.Solution = "Create an API token in your account security settings and sign in with your email and that token."
	case (t == models.DeploymentServer || t == models.DeploymentDataCenter) && kind == models.AuthKindAPIToken:
		e = jira.NewError(jira.CodeWrongAuthMethodServer, "self-hosted instances do not accept email and API token")
		e.Solution = "Sign in with your username and password, or use a personal access token as OAuth bearer token."
	case kind == models.AuthKindAPIToken:
		e = jira.NewError(jira.CodeInvalidCredentials, "the email or API token was rejected")
		e.Solution = "Check the email address and generate a new API token if the old one was revoked."
	default:
		e = jira.NewError(jira.CodeAuthenticationFailed, "the tracker rejected the credentials")
		e.Solution = "Check the credentials and that the account is not locked or disabled."
	}
	e.Details = upstream
	return e
}
