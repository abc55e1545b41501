package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// NetworkType classifies the chain family a network belongs to
type NetworkType string

const (
	EVM     NetworkType = "EVM"
	Stellar NetworkType = "Stellar"
)

// PlainValue wraps a value in the {"type": "plain", "value": ...} envelope
// the external monitor expects for credentials and endpoint URLs.
type PlainValue struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Plain builds a PlainValue from a raw string
func Plain(value string) PlainValue {
	return PlainValue{Type: "plain", Value: value}
}

// RPCEndpoint is one weighted RPC endpoint in canonical form:
// {"type_": "rpc", "url": {"type": "plain", "value": ...}, "weight": 100}
type RPCEndpoint struct {
	Kind   string     `json:"type_"`
	URL    PlainValue `json:"url"`
	Weight int        `json:"weight"`
}

// DefaultRPCWeight is applied when an endpoint carries no explicit weight
const DefaultRPCWeight = 100

// UnmarshalJSON accepts the three endpoint shapes seen in stored
// configurations: a plain URL string, a flat {"url": "...", "weight": n}
// object, and the canonical nested form. All decode to the canonical shape,
// so normalization is idempotent.
func (e *RPCEndpoint) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		*e = RPCEndpoint{Kind: "rpc", URL: Plain(plain), Weight: DefaultRPCWeight}
		return nil
	}

	var aux struct {
		Kind   string          `json:"type_"`
		URL    json.RawMessage `json:"url"`
		Weight *int            `json:"weight"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("invalid rpc endpoint: %w", err)
	}

	weight := DefaultRPCWeight
	if aux.Weight != nil {
		weight = *aux.Weight
	}

	var url string
	if err := json.Unmarshal(aux.URL, &url); err != nil {
		var nested struct {
			Value string `json:"value"`
		}
		if err := json.Unmarshal(aux.URL, &nested); err != nil {
			return fmt.Errorf("invalid rpc endpoint url: %s", string(aux.URL))
		}
		url = nested.Value
	}

	*e = RPCEndpoint{Kind: "rpc", URL: Plain(url), Weight: weight}
	return nil
}

// NetworkConfig describes one network the external monitor should watch
type NetworkConfig struct {
	Name               string        `json:"name"`
	Slug               string        `json:"slug"`
	NetworkType        NetworkType   `json:"network_type"`
	ChainID            *uint64       `json:"chain_id,omitempty"`
	NetworkPassphrase  *string       `json:"network_passphrase,omitempty"`
	RPCURLs            []RPCEndpoint `json:"rpc_urls"`
	BlockTimeMs        uint64        `json:"block_time_ms"`
	ConfirmationBlocks uint64        `json:"confirmation_blocks"`
	CronSchedule       string        `json:"cron_schedule"`
	MaxPastBlocks      *uint64       `json:"max_past_blocks,omitempty"`
	StoreBlocks        bool          `json:"store_blocks"`
}

// WatchedAddress is a single address entry on a monitor
type WatchedAddress struct {
	Address string `json:"address"`
}

// FunctionCondition matches contract function calls
type FunctionCondition struct {
	Signature  string  `json:"signature"`
	Expression *string `json:"expression"`
}

// EventCondition matches emitted events
type EventCondition struct {
	Signature  string  `json:"signature"`
	Expression *string `json:"expression"`
}

// TransactionCondition matches transactions by status
type TransactionCondition struct {
	Status     string  `json:"status"`
	Expression *string `json:"expression"`
}

// MatchConditions groups the filters a monitor applies to each block
type MatchConditions struct {
	Functions    []FunctionCondition    `json:"functions"`
	Events       []EventCondition       `json:"events"`
	Transactions []TransactionCondition `json:"transactions"`
}

// TriggerRef is a reference from a monitor to a trigger, either a bare slug
// string or an {"id": ...} object. The original form is preserved on
// marshal so monitor files keep whatever the operator wrote.
type TriggerRef struct {
	ID   string
	Slug string
}

// Key returns whichever identifier the reference carries
func (r TriggerRef) Key() string {
	if r.ID != "" {
		return r.ID
	}
	return r.Slug
}

func (r *TriggerRef) UnmarshalJSON(data []byte) error {
	var slug string
	if err := json.Unmarshal(data, &slug); err == nil {
		*r = TriggerRef{Slug: slug}
		return nil
	}
	var aux struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &aux); err != nil || aux.ID == "" {
		return fmt.Errorf("invalid trigger reference: %s", string(data))
	}
	*r = TriggerRef{ID: aux.ID}
	return nil
}

func (r TriggerRef) MarshalJSON() ([]byte, error) {
	if r.ID != "" {
		return json.Marshal(struct {
			ID string `json:"id"`
		}{ID: r.ID})
	}
	return json.Marshal(r.Slug)
}

// MonitorConfig is one watch definition for the external monitor
type MonitorConfig struct {
	Name              string            `json:"name"`
	Paused            bool              `json:"paused"`
	Networks          []string          `json:"networks"`
	Addresses         []WatchedAddress  `json:"addresses"`
	MatchConditions   MatchConditions   `json:"match_conditions"`
	TriggerConditions []json.RawMessage `json:"trigger_conditions"`
	Triggers          []TriggerRef      `json:"triggers"`
}

// TriggerType discriminates the trigger variants
type TriggerType string

const (
	TriggerEmail   TriggerType = "email"
	TriggerWebhook TriggerType = "webhook"
)

// MessageTemplate is the notification template shared by all trigger types
type MessageTemplate struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// EmailTrigger carries SMTP delivery parameters
type EmailTrigger struct {
	Host       string          `json:"host"`
	Port       int             `json:"port"`
	Username   PlainValue      `json:"username"`
	Password   PlainValue      `json:"password"`
	Sender     string          `json:"sender"`
	Recipients []string        `json:"recipients"`
	Message    MessageTemplate `json:"message"`
}

// WebhookTrigger carries HTTP delivery parameters
type WebhookTrigger struct {
	URL     PlainValue        `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Secret  *PlainValue       `json:"secret,omitempty"`
	Message MessageTemplate   `json:"message"`
}

// TriggerConfig is a tagged union over the trigger variants, addressable by
// both its stable id and its human slug. Exactly one of Email/Webhook is
// set, matching Type.
type TriggerConfig struct {
	ID      string
	Slug    string
	Name    string
	Type    TriggerType
	Email   *EmailTrigger
	Webhook *WebhookTrigger
}

// MarshalJSON renders the on-disk shape:
// {"name": ..., "trigger_type": ..., "config": {...}}
func (t TriggerConfig) MarshalJSON() ([]byte, error) {
	var cfg any
	switch t.Type {
	case TriggerEmail:
		cfg = t.Email
	case TriggerWebhook:
		cfg = t.Webhook
	default:
		return nil, fmt.Errorf("unsupported trigger type: %s", t.Type)
	}
	return json.Marshal(struct {
		Name        string      `json:"name"`
		TriggerType TriggerType `json:"trigger_type"`
		Config      any         `json:"config"`
	}{Name: t.Name, TriggerType: t.Type, Config: cfg})
}

// NetworkProgress tracks block processing progress for one network
type NetworkProgress struct {
	FirstBlock      uint64    `json:"first_block"`
	LastBlock       uint64    `json:"last_block"`
	BlocksProcessed uint64    `json:"blocks_processed"`
	LastUpdate      time.Time `json:"last_update"`
}
