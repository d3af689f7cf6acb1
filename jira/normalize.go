package jira

import (
	"net"
	"net/url"
	"strings"

	"jira-sync/models"
)

// Vendor lists the hosts operated by the tracker vendor itself.
type Vendor struct {
	// CloudDomains are parent domains of hosted (cloud) instances.
	CloudDomains []string
	// RootDomains are vendor sites that are never an instance URL.
	RootDomains []string
}

// DefaultVendor describes the public Atlassian hosts.
var DefaultVendor = Vendor{
	CloudDomains: []string{"atlassian.net", "jira.com"},
	RootDomains:  []string{"atlassian.com", "www.atlassian.com", "id.atlassian.com", "start.atlassian.com"},
}

const minCloudSubdomainLen = 2

// NormalizeURL canonicalizes a user supplied instance URL using DefaultVendor.
func NormalizeURL(raw string) (string, error) {
	return DefaultVendor.Normalize(raw)
}

// DetectType infers the deployment flavor using DefaultVendor.
func DetectType(rawURL string, info *ServerInfo) models.DeploymentType {
	return DefaultVendor.DetectType(rawURL, info)
}

// APIVersionFor picks the REST API version for a deployment type.
func APIVersionFor(t models.DeploymentType) string {
	if t == models.DeploymentCloud {
		return "3"
	}
	return "2"
}

// Normalize trims the URL, unwraps login redirects, adds a scheme when missing
// and rejects vendor hosts that cannot be an instance. It is idempotent.
func (v Vendor) Normalize(raw string) (string, error) {
	s := strings.TrimRight(strings.TrimSpace(raw), "/")
	if s == "" {
		return "", invalidURL("URL is empty", raw)
	}

	if strings.Contains(s, "continue=") {
		target, err := unwrapContinue(s)
		if err != nil {
			return "", err
		}
		s = target
	}

	if !strings.Contains(s, "://") {
		s = "https://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", invalidURL("URL could not be parsed", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", invalidURL("URL must use http or https", raw)
	}

	host := strings.ToLower(u.Hostname())
	if v.isRootDomain(host) {
		return "", invalidURL(host+" is the vendor website, not your instance; use https://<your-site>."+v.primaryCloudDomain(), raw)
	}

	if domain, ok := v.cloudDomain(host); ok {
		if host == domain {
			return "", invalidURL(domain+" has no site name; use https://<your-site>."+domain, raw)
		}
		sub := strings.TrimSuffix(host, "."+domain)
		if len(sub) < minCloudSubdomainLen {
			return "", invalidURL("cloud site name "+sub+" is too short", raw)
		}
		// hosted instances always live at the https host root
		return "https://" + host, nil
	}

	return u.Scheme + "://" + strings.ToLower(u.Host) + strings.TrimRight(u.Path, "/"), nil
}

// DetectType: a cloud host wins outright, then the server-info deployment type,
// then loopback/IP literal hosts count as self-hosted.
func (v Vendor) DetectType(rawURL string, info *ServerInfo) models.DeploymentType {
	host := hostOf(rawURL)
	if _, ok := v.cloudDomain(host); ok {
		return models.DeploymentCloud
	}

	if info != nil {
		switch strings.ToLower(strings.ReplaceAll(info.DeploymentType, " ", "")) {
		case "cloud":
			return models.DeploymentCloud
		case "server":
			return models.DeploymentServer
		case "datacenter":
			return models.DeploymentDataCenter
		}
	}

	if host == "localhost" || net.ParseIP(host) != nil {
		return models.DeploymentServer
	}
	return models.DeploymentUnknown
}

// IsCloudHost reports whether rawURL points at a hosted instance.
func (v Vendor) IsCloudHost(rawURL string) bool {
	_, ok := v.cloudDomain(hostOf(rawURL))
	return ok
}

func (v Vendor) cloudDomain(host string) (string, bool) {
	for _, d := range v.CloudDomains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

func (v Vendor) isRootDomain(host string) bool {
	for _, d := range v.RootDomains {
		if host == strings.ToLower(d) {
			return true
		}
	}
	return false
}

func (v Vendor) primaryCloudDomain() string {
	if len(v.CloudDomains) == 0 {
		return "example.net"
	}
	return v.CloudDomains[0]
}

// unwrapContinue extracts the instance from a login redirect such as
// https://id.example.com/login?continue=https%3A%2F%2Fteam.example.net%2Fjira
func unwrapContinue(s string) (string, error) {
	idx := strings.Index(s, "continue=")
	value := s[idx+len("continue="):]
	if amp := strings.IndexByte(value, '&'); amp >= 0 {
		value = value[:amp]
	}

	// redirect chains are sometimes encoded more than once
	for i := 0; i < 3 && strings.Contains(value, "%"); i++ {
		decoded, err := url.QueryUnescape(value)
		if err != nil {
			return "", invalidURL("redirect target could not be decoded", s)
		}
		value = decoded
	}

	target, err := url.Parse(value)
	if err != nil || target.Host == "" {
		return "", invalidURL("redirect target is not a URL", s)
	}
	scheme := target.Scheme
	if scheme == "" {
		scheme = "https"
	}
	return scheme + "://" + target.Host, nil
}

func hostOf(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

func invalidURL(cause, raw string) *Error {
	e := NewError(CodeURLInvalid, cause)
	e.Details = raw
	e.Solution = "Enter the address you use to open the tracker in a browser, e.g. https://your-team.atlassian.net or https://jira.example.com"
	return e
}
