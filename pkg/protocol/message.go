package protocol

import "encoding/json"

// Message is the wire frame exchanged over a connection. Client frames may
// carry a bearer token so privileged events can be re-verified
// independently of the handshake credential.
type Message struct {
	Event   string          `json:"event"`
	Token   string          `json:"token,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the body of an "error" event. The message is intentionally
// terse; causes stay in the server logs.
type ErrorPayload struct {
	Message string `json:"message"`
}

// Encode marshals a server-originated event frame.
func Encode(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Event: event, Payload: raw})
}

// EncodeError marshals an "error" event with the given client-facing message.
func EncodeError(message string) []byte {
	// Marshaling a flat struct of strings cannot fail.
	msg, _ := Encode("error", ErrorPayload{Message: message})
	return msg
}
