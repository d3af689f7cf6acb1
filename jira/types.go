package jira

import (
	"encoding/json"
	"strings"
)

// ServerInfo is the response from GET /rest/api/{v}/serverInfo.
type ServerInfo struct {
	BaseURL        string `json:"baseUrl"`
	Version        string `json:"version"`
	VersionNumbers []int  `json:"versionNumbers"`
	DeploymentType string `json:"deploymentType"`
	BuildNumber    int    `json:"buildNumber"`
	ServerTitle    string `json:"serverTitle"`
}

// User is the response from GET /rest/api/{v}/myself.
type User struct {
	AccountID    string `json:"accountId,omitempty"`
	Key          string `json:"key,omitempty"`
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress,omitempty"`
	Active       bool   `json:"active"`
}

// Project is one entry of GET /rest/api/{v}/project.
type Project struct {
	ID         string      `json:"id"`
	Key        string      `json:"key"`
	Name       string      `json:"name"`
	IssueTypes []IssueType `json:"issueTypes,omitempty"`
}

// IssueType represents the type of an issue (Bug, Story, etc.).
type IssueType struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subtask bool   `json:"subtask"`
}

// Status represents the workflow status of an issue.
type Status struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Issue represents a single issue from the REST API.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Self   string      `json:"self"`
	Fields IssueFields `json:"fields"`
}

// IssueFields contains the fields the sync engine reads.
type IssueFields struct {
	Summary     string      `json:"summary"`
	Description Description `json:"description"`
	Status      Status      `json:"status"`
	IssueType   IssueType   `json:"issuetype"`
	Project     Project     `json:"project"`
	Updated     string      `json:"updated"`
}

// Description holds issue text. API v2 returns a plain string while v3 returns
// an Atlassian Document Format tree; both decode to plain text.
type Description string

func (d *Description) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*d = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Description(s)
		return nil
	}
	var node adfNode
	if err := json.Unmarshal(data, &node); err != nil {
		return err
	}
	*d = Description(strings.TrimRight(node.text(), "\n"))
	return nil
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

func (n adfNode) text() string {
	var b strings.Builder
	switch n.Type {
	case "text":
		b.WriteString(n.Text)
	case "hardBreak":
		b.WriteString("\n")
	}
	for _, c := range n.Content {
		b.WriteString(c.text())
	}
	if n.Type == "paragraph" || n.Type == "heading" {
		b.WriteString("\n")
	}
	return b.String()
}

// adfDocument wraps plain text into the v3 document format, one paragraph per line.
func adfDocument(text string) adfNode {
	doc := adfNode{Type: "doc"}
	for _, line := range strings.Split(text, "\n") {
		p := adfNode{Type: "paragraph"}
		if line != "" {
			p.Content = []adfNode{{Type: "text", Text: line}}
		}
		doc.Content = append(doc.Content, p)
	}
	return doc
}

// MarshalJSON adds the version field required on a document root.
func (n adfNode) MarshalJSON() ([]byte, error) {
	type plain adfNode
	if n.Type == "doc" {
		return json.Marshal(struct {
			Version int `json:"version"`
			plain
		}{1, plain(n)})
	}
	return json.Marshal(plain(n))
}

// SearchResponse is the response from POST /rest/api/{v}/search.
type SearchResponse struct {
	StartAt    int     `json:"startAt"`
	MaxResults int     `json:"maxResults"`
	Total      int     `json:"total"`
	Issues     []Issue `json:"issues"`
}

// CreateIssueInput describes a new issue.
type CreateIssueInput struct {
	ProjectKey  string
	Summary     string
	IssueType   string
	Description string
	ParentKey   string
}

// CreatedIssue is the response from POST /rest/api/{v}/issue.
type CreatedIssue struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Self string `json:"self"`
}

// IssueUpdate carries the fields to change; nil fields are left untouched.
// Status is applied through a workflow transition.
type IssueUpdate struct {
	Summary     *string
	Description *string
	Status      *string
}

// Transition represents a possible status transition for an issue.
type Transition struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	To   Status `json:"to"`
}

// TransitionsResponse wraps the list of transitions returned by the API.
type TransitionsResponse struct {
	Transitions []Transition `json:"transitions"`
}

// Comment represents a single comment on an issue.
type Comment struct {
	ID      string `json:"id"`
	Created string `json:"created"`
}

// WebhookRegistration is the response from POST /rest/api/{v}/webhook.
type WebhookRegistration struct {
	Results []struct {
		CreatedWebhookID int64    `json:"createdWebhookId"`
		Errors           []string `json:"errors,omitempty"`
	} `json:"webhookRegistrationResult"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	ErrorMessages []string          `json:"errorMessages"`
	Errors        map[string]string `json:"errors"`
}
