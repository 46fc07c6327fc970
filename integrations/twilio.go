package integrations

import (
	"context"
	"fmt"

	"fieldcrm/config"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Twilio sends SMS and checks inbound webhook signatures.
type Twilio struct {
	client    *twilio.RestClient
	validator *twclient.RequestValidator
	from      string
}

// NewTwilio returns nil when credentials are missing.
func NewTwilio(cfg config.TwilioConfig) *Twilio {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil
	}
	validator := twclient.NewRequestValidator(cfg.AuthToken)
	return &Twilio{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		}),
		validator: &validator,
		from:      cfg.FromNumber,
	}
}

func (t *Twilio) SendSMS(ctx context.Context, to, body string) (string, error) {
	if t.from == "" {
		return "", fmt.Errorf("twilio sender number is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(t.from)
	params.SetBody(body)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		return "", err
	}
	if resp.Sid == nil {
		return "", fmt.Errorf("twilio returned no message sid")
	}
	return *resp.Sid, nil
}

// ValidRequest checks X-Twilio-Signature for a form POST to url.
func (t *Twilio) ValidRequest(url string, params map[string]string, signature string) bool {
	return t.validator.Validate(url, params, signature)
}
