package fmailer

import "strings"

// Service endpoints, relative to the configured base URL.
const (
	simpleSendPath   = "/external/send_email_simple/"
	templateSendPath = "/external/send_email_tpl/"
)

// Request kinds, used in log fields.
const (
	kindSimple   = "simple"
	kindTemplate = "template"
)

// SimpleEmail describes a raw email: the caller supplies the subject and the
// finished body, and the service delivers it as-is.
type SimpleEmail struct {
	Recipient string
	Sender    string
	Subject   string
	Body      string

	// IdempotencyKey is an optional caller-chosen token the service uses to
	// deduplicate resubmitted sends. The client treats it as opaque.
	IdempotencyKey string
}

// TemplateEmail describes an email rendered server-side from a stored
// template. Lang and Params are optional; when absent they are omitted from
// the request entirely and the service applies its own defaults.
type TemplateEmail struct {
	Template  string
	Recipient string
	Sender    string
	Lang      string
	Params    map[string]any

	// IdempotencyKey is an optional caller-chosen token the service uses to
	// deduplicate resubmitted sends. The client treats it as opaque.
	IdempotencyKey string
}

// wireAuth is embedded in every request payload. The service authenticates
// per request; there is no session or token exchange.
type wireAuth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type simplePayload struct {
	Auth           wireAuth `json:"auth"`
	Recipient      string   `json:"recipient"`
	Sender         string   `json:"sender"`
	Subject        string   `json:"subject"`
	Body           string   `json:"body"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
}

type templatePayload struct {
	Auth           wireAuth       `json:"auth"`
	Template       string         `json:"tpl"`
	Recipient      string         `json:"recipient"`
	Sender         string         `json:"sender"`
	Lang           string         `json:"lang,omitempty"`
	Params         map[string]any `json:"params,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// apiRequest is a fully validated request descriptor: the endpoint path and
// the JSON payload to post there. Construction is pure and never touches the
// network.
type apiRequest struct {
	kind      string
	path      string
	recipient string
	payload   any
}

func newSimpleRequest(auth wireAuth, msg SimpleEmail) (*apiRequest, error) {
	if err := requireFields(
		field{"recipient", msg.Recipient},
		field{"sender", msg.Sender},
		field{"subject", msg.Subject},
		field{"body", msg.Body},
	); err != nil {
		return nil, err
	}
	return &apiRequest{
		kind:      kindSimple,
		path:      simpleSendPath,
		recipient: msg.Recipient,
		payload: simplePayload{
			Auth:           auth,
			Recipient:      msg.Recipient,
			Sender:         msg.Sender,
			Subject:        msg.Subject,
			Body:           msg.Body,
			IdempotencyKey: msg.IdempotencyKey,
		},
	}, nil
}

func newTemplateRequest(auth wireAuth, msg TemplateEmail) (*apiRequest, error) {
	if err := requireFields(
		field{"tpl", msg.Template},
		field{"recipient", msg.Recipient},
		field{"sender", msg.Sender},
	); err != nil {
		return nil, err
	}
	return &apiRequest{
		kind:      kindTemplate,
		path:      templateSendPath,
		recipient: msg.Recipient,
		payload: templatePayload{
			Auth:           auth,
			Template:       msg.Template,
			Recipient:      msg.Recipient,
			Sender:         msg.Sender,
			Lang:           msg.Lang,
			Params:         msg.Params,
			IdempotencyKey: msg.IdempotencyKey,
		},
	}, nil
}

type field struct {
	name  string
	value string
}

// requireFields reports the first empty required field. Whitespace-only
// values count as empty.
func requireFields(fields ...field) error {
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return &ValidationError{Field: f.name}
		}
	}
	return nil
}
