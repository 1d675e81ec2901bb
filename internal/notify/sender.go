package notify

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var sendsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "classtrack_sms_sends_total",
	Help: "SMS send attempts, by outcome.",
}, []string{"outcome"})

// Sender delivers one SMS.
type Sender interface {
	Send(ctx context.Context, toPhone, message string) error
}

// TwilioSender posts to Twilio's Messages REST endpoint.
type TwilioSender struct {
	AccountSID string
	AuthToken  string
	From       string
	HTTP       *http.Client
}

// NewTwilioSender creates a sender with a bounded timeout.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	return &TwilioSender{
		AccountSID: accountSID,
		AuthToken:  authToken,
		From:       from,
		HTTP:       &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the message. Any non-2xx response is an error.
func (s *TwilioSender) Send(ctx context.Context, toPhone, message string) error {
	form := url.Values{}
	form.Set("To", toPhone)
	form.Set("From", s.From)
	form.Set("Body", message)

	endpoint := fmt.Sprintf("https://api.twilio.com/2010-04-01/Accounts/%s/Messages.json", s.AccountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(s.AccountSID, s.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		sendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		sendsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("twilio error %s: %s", resp.Status, string(body))
	}
	sendsTotal.WithLabelValues("sent").Inc()
	return nil
}

// LogSender is the mock used when Twilio is not configured: it logs the
// message instead of sending it.
type LogSender struct{}

// Send logs the would-be SMS.
func (LogSender) Send(_ context.Context, toPhone, message string) error {
	log.Printf("[MOCK SMS] to=%s body=%q", toPhone, message)
	sendsTotal.WithLabelValues("mocked").Inc()
	return nil
}
