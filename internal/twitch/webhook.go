package twitch

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
)

// EventSub webhook delivery headers.
const (
	HeaderMessageID        = "Twitch-Eventsub-Message-Id"
	HeaderMessageTimestamp = "Twitch-Eventsub-Message-Timestamp"
	HeaderMessageType      = "Twitch-Eventsub-Message-Type"
	HeaderMessageSignature = "Twitch-Eventsub-Message-Signature"
)

// MessageType classifies a verified webhook delivery.
type MessageType string

const (
	// MessageNotification carries a typed event payload.
	MessageNotification MessageType = "notification"
	// MessageVerification is the subscription handshake; its challenge must
	// be echoed back verbatim.
	MessageVerification MessageType = "webhook_callback_verification"
	// MessageRevocation reports that the provider cancelled a subscription.
	MessageRevocation MessageType = "revocation"
)

// SignatureError rejects a single delivery whose signature does not match.
// The body must not be processed.
type SignatureError struct {
	MessageID string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature mismatch for message %s", e.MessageID)
}

// UnknownTypeError rejects a delivery with an unrecognized message type.
type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown webhook message type %q", e.Type)
}

// Message is a verified, classified webhook delivery.
type Message struct {
	ID               string
	Timestamp        string
	Type             MessageType
	SubscriptionID   string
	SubscriptionType string
	Challenge        string
	Event            json.RawMessage
}

// webhookBody is the JSON envelope common to all EventSub deliveries.
type webhookBody struct {
	Challenge    string `json:"challenge"`
	Subscription struct {
		ID     string `json:"id"`
		Type   string `json:"type"`
		Status string `json:"status"`
	} `json:"subscription"`
	Event json.RawMessage `json:"event"`
}

// Receiver verifies and classifies inbound webhook deliveries.
type Receiver struct {
	secret string
}

func NewReceiver(secret string) *Receiver {
	return &Receiver{secret: secret}
}

// Verify checks the delivery's HMAC signature (keyed hash over message ID,
// timestamp, and raw body, constant-time compared against the signature
// header) and classifies the message. On signature mismatch the body is
// never parsed.
func (r *Receiver) Verify(header http.Header, body []byte) (*Message, error) {
	messageID := header.Get(HeaderMessageID)

	mac := hmac.New(sha256.New, []byte(r.secret))
	mac.Write([]byte(messageID))
	mac.Write([]byte(header.Get(HeaderMessageTimestamp)))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(header.Get(HeaderMessageSignature))) {
		return nil, &SignatureError{MessageID: messageID}
	}

	msgType := MessageType(header.Get(HeaderMessageType))
	switch msgType {
	case MessageNotification, MessageVerification, MessageRevocation:
	default:
		return nil, &UnknownTypeError{Type: string(msgType)}
	}

	var parsed webhookBody
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse webhook body: %w", err)
	}

	return &Message{
		ID:               messageID,
		Timestamp:        header.Get(HeaderMessageTimestamp),
		Type:             msgType,
		SubscriptionID:   parsed.Subscription.ID,
		SubscriptionType: parsed.Subscription.Type,
		Challenge:        parsed.Challenge,
		Event:            parsed.Event,
	}, nil
}
