package utils

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/badoux/checkmail"
)

// EmailCheck is the deliverability verdict for a contact address
type EmailCheck struct {
	Email        string `json:"email"`
	Status       string `json:"status"` // valid, invalid, disposable, unknown
	Details      string `json:"details"`
	FreeProvider bool   `json:"free_provider"`
	HasMX        bool   `json:"has_mx"`
	Suggestion   string `json:"suggestion,omitempty"`
}

// MXResolver looks up mail exchangers for a domain
type MXResolver func(ctx context.Context, domain string) ([]*net.MX, error)

var (
	disposableDomains = loadDisposableDomains()

	freeEmailProviders = map[string]bool{
		"gmail.com": true, "yahoo.com": true, "outlook.com": true, "hotmail.com": true,
		"aol.com": true, "protonmail.com": true, "icloud.com": true, "mail.com": true,
		"yandex.com": true, "zoho.com": true, "gmx.com": true,
	}

	commonTypos = map[string]string{
		"gmai.com":   "gmail.com",
		"gmal.com":   "gmail.com",
		"gmail.co":   "gmail.com",
		"yaho.com":   "yahoo.com",
		"hotmai.com": "hotmail.com",
		"outlok.com": "outlook.com",
	}

	mxCache = struct {
		sync.RWMutex
		m map[string][]*net.MX
	}{m: make(map[string][]*net.MX)}
)

// CheckEmail classifies an address without contacting its mail server:
// format, known typos, disposable domains, then MX records.
func CheckEmail(ctx context.Context, email string, resolve MXResolver) *EmailCheck {
	email = strings.ToLower(strings.TrimSpace(email))
	result := &EmailCheck{Email: email, Status: "unknown"}

	if err := checkmail.ValidateFormat(email); err != nil {
		result.Status = "invalid"
		result.Details = "Invalid email format: " + err.Error()
		return result
	}
	localPart, domain, _ := strings.Cut(email, "@")
	result.FreeProvider = freeEmailProviders[domain]

	if suggested, ok := commonTypos[domain]; ok {
		result.Status = "invalid"
		result.Suggestion = localPart + "@" + suggested
		result.Details = fmt.Sprintf("Possible typo, did you mean %s?", result.Suggestion)
		return result
	}
	if disposableDomains[domain] {
		result.Status = "disposable"
		result.Details = "Disposable email domain"
		return result
	}

	if resolve == nil {
		resolve = LookupMX
	}
	records, err := resolve(ctx, domain)
	if err != nil {
		result.Details = "MX lookup failed: " + err.Error()
		return result
	}
	if len(records) == 0 {
		result.Status = "invalid"
		result.Details = "Domain accepts no mail"
		return result
	}
	result.HasMX = true
	result.Status = "valid"
	result.Details = fmt.Sprintf("%d mail exchanger(s), preferred %s", len(records), strings.TrimSuffix(records[0].Host, "."))
	return result
}

// LookupMX resolves and caches MX records
func LookupMX(ctx context.Context, domain string) ([]*net.MX, error) {
	mxCache.RLock()
	if records, ok := mxCache.m[domain]; ok {
		mxCache.RUnlock()
		return records, nil
	}
	mxCache.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var resolver net.Resolver
	records, err := resolver.LookupMX(ctx, domain)
	if err != nil {
		return nil, err
	}

	mxCache.Lock()
	mxCache.m[domain] = records
	mxCache.Unlock()
	return records, nil
}

func loadDisposableDomains() map[string]bool {
	domains := make(map[string]bool)
	for _, d := range strings.Split(disposableDomainList, "\n") {
		d = strings.TrimSpace(d)
		if d != "" {
			domains[d] = true
		}
	}
	return domains
}

const disposableDomainList = `
mailinator.com
tempmail.org
10minutemail.com
guerrillamail.com
trashmail.com
temp-mail.org
yopmail.com
maildrop.cc
dispostable.com
fakeinbox.com
throwawaymail.com
mailnesia.com
getairmail.com
mytemp.email
temp-mail.io
discard.email
mailcatch.com
tempemail.net
spamgourmet.com
sharklasers.com
`
