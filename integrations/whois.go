package integrations

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/likexian/whois"
)

// DomainInfo is the subset of a WHOIS record shown on a contact
type DomainInfo struct {
	Domain       string   `json:"domain"`
	Registrar    string   `json:"registrar,omitempty"`
	Organization string   `json:"organization,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
	ExpiresAt    string   `json:"expires_at,omitempty"`
	NameServers  []string `json:"name_servers,omitempty"`
}

// LookupDomain queries WHOIS for a domain.
func LookupDomain(domain string) (*DomainInfo, error) {
	raw, err := whois.Whois(domain)
	if err != nil {
		return nil, fmt.Errorf("whois lookup failed: %w", err)
	}
	return ParseWhois(domain, raw), nil
}

// ParseWhois picks the common "Key: value" lines out of a raw record.
func ParseWhois(domain, raw string) *DomainInfo {
	info := &DomainInfo{Domain: domain}
	scanner := bufio.NewScanner(strings.NewReader(raw))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		switch key {
		case "registrar":
			setOnce(&info.Registrar, value)
		case "registrant organization", "registrant organisation", "org-name":
			setOnce(&info.Organization, value)
		case "creation date", "created":
			setOnce(&info.CreatedAt, value)
		case "registry expiry date", "registrar registration expiration date", "expiry date":
			setOnce(&info.ExpiresAt, value)
		case "name server", "nserver":
			info.NameServers = append(info.NameServers, strings.ToLower(value))
		}
	}
	return info
}

func setOnce(dst *string, value string) {
	if *dst == "" {
		*dst = value
	}
}

// DomainFromEmail returns the part after @, or "".
func DomainFromEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}
