package presentation

import (
	"encoding/json"
	"math/big"

	"github.com/iden3/go-private-credentials/backend"
	"github.com/iden3/go-private-credentials/operation"
	"github.com/iden3/go-private-credentials/program"
	"github.com/pkg/errors"
)

// Message types of the wire envelopes.
const (
	RequestMessageType      = "application/zk-credentials-request+json"
	PresentationMessageType = "application/zk-credentials-presentation+json"
)

// envelope wraps a protocol message with its type discriminator.
type envelope struct {
	Type string          `json:"type"`
	Body json.RawMessage `json:"body"`
}

type requestWire struct {
	ID               string                     `json:"id"`
	Type             RequestType                `json:"requestType"`
	Policy           ContextPolicy              `json:"policy"`
	Spec             *program.Spec              `json:"spec"`
	Claims           map[string]operation.Value `json:"claims,omitempty"`
	ServerNonce      string                     `json:"serverNonce,omitempty"`
	VerifierIdentity string                     `json:"verifierIdentity,omitempty"`
	Action           string                     `json:"action,omitempty"`
}

// MarshalJSON encodes the request losslessly, nonces as decimal strings.
func (r *PresentationRequest) MarshalJSON() ([]byte, error) {
	w := requestWire{
		ID:               r.ID,
		Type:             r.Type,
		Policy:           r.Policy,
		Spec:             r.Spec,
		Claims:           r.Claims,
		VerifierIdentity: r.VerifierIdentity,
		Action:           r.Action,
	}
	if r.ServerNonce != nil {
		w.ServerNonce = r.ServerNonce.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON; the embedded spec is
// re-validated while decoding.
func (r *PresentationRequest) UnmarshalJSON(data []byte) error {
	var w requestWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nonce, err := optionalField(w.ServerNonce)
	if err != nil {
		return errors.Wrap(err, "server nonce")
	}
	*r = PresentationRequest{
		ID:               w.ID,
		Type:             w.Type,
		Policy:           w.Policy,
		Spec:             w.Spec,
		Claims:           w.Claims,
		ServerNonce:      nonce,
		VerifierIdentity: w.VerifierIdentity,
		Action:           w.Action,
	}
	return r.validate()
}

type presentationWire struct {
	Version     string                     `json:"version"`
	ClientNonce string                     `json:"clientNonce,omitempty"`
	Claims      map[string]operation.Value `json:"claims,omitempty"`
	OutputClaim operation.Value            `json:"outputClaim"`
	Proof       backend.Proof              `json:"proof"`
}

// MarshalJSON encodes the presentation losslessly.
func (p *Presentation) MarshalJSON() ([]byte, error) {
	w := presentationWire{
		Version:     p.Version,
		Claims:      p.Claims,
		OutputClaim: p.OutputClaim,
		Proof:       p.Proof,
	}
	if p.ClientNonce != nil {
		w.ClientNonce = p.ClientNonce.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (p *Presentation) UnmarshalJSON(data []byte) error {
	var w presentationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	nonce, err := optionalField(w.ClientNonce)
	if err != nil {
		return errors.Wrap(err, "client nonce")
	}
	*p = Presentation{
		Version:     w.Version,
		ClientNonce: nonce,
		Claims:      w.Claims,
		OutputClaim: w.OutputClaim,
		Proof:       w.Proof,
	}
	return nil
}

// MarshalRequest packs a request into its wire envelope.
func MarshalRequest(r *PresentationRequest) ([]byte, error) {
	return marshalEnvelope(RequestMessageType, r)
}

// UnmarshalRequest unpacks a request envelope.
func UnmarshalRequest(data []byte) (*PresentationRequest, error) {
	var r PresentationRequest
	if err := unmarshalEnvelope(data, RequestMessageType, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// MarshalPresentation packs a presentation into its wire envelope.
func MarshalPresentation(p *Presentation) ([]byte, error) {
	return marshalEnvelope(PresentationMessageType, p)
}

// UnmarshalPresentation unpacks a presentation envelope.
func UnmarshalPresentation(data []byte) (*Presentation, error) {
	var p Presentation
	if err := unmarshalEnvelope(data, PresentationMessageType, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func marshalEnvelope(messageType string, body interface{}) ([]byte, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: messageType, Body: raw})
}

func unmarshalEnvelope(data []byte, messageType string, into interface{}) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	if env.Type != messageType {
		return errors.Errorf("unexpected message type %q, want %q", env.Type, messageType)
	}
	return json.Unmarshal(env.Body, into)
}

func optionalField(s string) (*big.Int, error) {
	if s == "" {
		return nil, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid field element %q", s)
	}
	return n, nil
}
