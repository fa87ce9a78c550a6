package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plusone-ai/plusone/internal/config"
)

const twilioAPIBase = "https://api.twilio.com/2010-04-01"

// Dialer places and ends outbound calls through the Twilio REST API.
type Dialer struct {
	cfg        *config.Config
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewDialer(cfg *config.Config, logger zerolog.Logger) *Dialer {
	return &Dialer{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// BuildTwiML produces call instructions that navigate a conference dial-in
// IVR with DTMF tones, then connect a bidirectional media stream.
//
// The IVR prompts take several seconds to speak; the pauses and "w" waits
// (0.5 s each) let each prompt finish before the next tone burst, otherwise
// the IVR misses the digits. The trailing bare "#" skips the participant ID
// prompt.
func BuildTwiML(meetingID, wsURL, passcode string) string {
	digits := stripDigitSeparators(meetingID)
	if passcode != "" {
		pass := stripDigitSeparators(passcode)
		return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Pause length="6"/>
    <Play digits="wwwwwwww%s#"/>
    <Pause length="14"/>
    <Play digits="%s#"/>
    <Pause length="10"/>
    <Play digits="#"/>
    <Pause length="3"/>
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, digits, pass, wsURL)
	}
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<Response>
    <Pause length="6"/>
    <Play digits="wwwwwwww%s#wwwwwwwwww#"/>
    <Pause length="3"/>
    <Connect>
        <Stream url="%s" />
    </Connect>
</Response>`, digits, wsURL)
}

func stripDigitSeparators(s string) string {
	s = strings.ReplaceAll(s, " ", "")
	return strings.ReplaceAll(s, "-", "")
}

type callResponse struct {
	Sid     string `json:"sid"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// StartCall dials the conference number and returns the call SID.
func (d *Dialer) StartCall(ctx context.Context, meetingID, wsURL, passcode string) (string, error) {
	form := url.Values{}
	form.Set("Twiml", BuildTwiML(meetingID, wsURL, passcode))
	form.Set("To", d.cfg.DialInNumber)
	form.Set("From", d.cfg.TwilioPhoneNumber)

	resp, err := d.post(ctx, fmt.Sprintf("%s/Accounts/%s/Calls.json", twilioAPIBase, d.cfg.TwilioAccountSID), form)
	if err != nil {
		return "", err
	}

	d.logger.Info().
		Str("call_sid", resp.Sid).
		Str("to", d.cfg.DialInNumber).
		Msg("Outbound call placed")
	return resp.Sid, nil
}

// EndCall hangs up an active call.
func (d *Dialer) EndCall(ctx context.Context, callSid string) error {
	form := url.Values{}
	form.Set("Status", "completed")

	if _, err := d.post(ctx, fmt.Sprintf("%s/Accounts/%s/Calls/%s.json", twilioAPIBase, d.cfg.TwilioAccountSID, callSid), form); err != nil {
		return err
	}
	d.logger.Info().Str("call_sid", callSid).Msg("Call ended")
	return nil
}

func (d *Dialer) post(ctx context.Context, endpoint string, form url.Values) (*callResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(d.cfg.TwilioAccountSID, d.cfg.TwilioAuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("twilio request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read twilio response: %w", err)
	}

	var parsed callResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("malformed twilio response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Message
		if msg == "" {
			msg = resp.Status
		}
		return nil, fmt.Errorf("twilio API error: %s", msg)
	}
	return &parsed, nil
}
