package twilio

import (
	"context"
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

// Alerter forwards support desk alerts to the admin's WhatsApp number.
type Alerter struct {
	client       *twilio.RestClient
	fromWhatsApp string
	adminNumber  string
	log          *zap.Logger
}

// New creates an Alerter. It returns nil when any of the credentials or numbers
// is missing, which callers treat as "WhatsApp alerts disabled".
func New(accountSID, authToken, fromWhatsApp, adminNumber string, log *zap.Logger) *Alerter {
	if accountSID == "" || authToken == "" || fromWhatsApp == "" || adminNumber == "" {
		return nil
	}
	return &Alerter{
		client:       twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		fromWhatsApp: fromWhatsApp,
		adminNumber:  adminNumber,
		log:          log,
	}
}

// AlertAdmin sends body to the admin's WhatsApp.
func (a *Alerter) AlertAdmin(_ context.Context, body string) error {
	return a.SendWhatsAppMessage(a.adminNumber, body)
}

// SendWhatsAppMessage sends a WhatsApp message via Twilio's API.
func (a *Alerter) SendWhatsAppMessage(to, body string) error {
	if a == nil || a.client == nil {
		return fmt.Errorf("twilio client not initialised")
	}

	sender := normalizeWhatsAppAddress(a.fromWhatsApp)
	if sender == "" {
		return fmt.Errorf("twilio sender WhatsApp number is not configured")
	}

	recipient := normalizeWhatsAppAddress(to)
	if recipient == "" {
		return fmt.Errorf("recipient number missing or invalid")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(recipient)
	params.SetFrom(sender)
	params.SetBody(body)

	resp, err := a.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}

	if resp.Sid != nil {
		a.log.Debug("twilio: message sent", zap.String("sid", *resp.Sid))
	}
	return nil
}

func normalizeWhatsAppAddress(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "whatsapp:") {
		return trimmed
	}
	if strings.HasPrefix(trimmed, "+") {
		return "whatsapp:" + trimmed
	}
	return "whatsapp:+" + trimmed
}
