// Package codec builds outbound request/acknowledgement envelopes and
// classifies inbound ones (spec §4D). The wire format is JSON, as named
// explicitly in spec §1/§6, so encoding/json is the right tool here rather
// than a third-party serializer — there's no ecosystem library to reach for
// when the spec itself specifies the format. Each outbound envelope carries
// a fresh google/uuid ID (a retried send gets a new one); Process classifies
// replies by subject and stage only and does not match their IDs against
// outstanding requests.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// Subject identifies the kind of outbound request.
type Subject string

const (
	SubjectKeepAlive   Subject = "keep_alive"
	SubjectCredUpdate  Subject = "cred_update"
)

// Stage qualifies a cred_update envelope.
type Stage string

const (
	StageNone       Stage = ""
	StageRequesting Stage = "requesting"
	StageFulfilled  Stage = "fulfilled"
)

// Envelope is the wire shape of every message in either direction.
type Envelope struct {
	ID      string          `json:"id"`
	Subject Subject         `json:"subject"`
	Stage   Stage           `json:"stage,omitempty"`
	Sent    time.Time       `json:"sent"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// CredentialBundle is the payload of a CredsFulfilling inbound message,
// spec §3. It is a transient value: consumed exactly once by the
// credential store, then discarded.
type CredentialBundle struct {
	TLSCertPEM       string `json:"tls_cert_pem"`
	TLSKeyPEM        string `json:"tls_key_pem"`
	SPAEncryptionKey string `json:"spa_encryption_key"`
	SPAHMACKey       string `json:"spa_hmac_key"`
}

// ResultTag classifies an inbound envelope (spec §3). Future tags must be
// logged and dropped by callers, never treated as a crash.
type ResultTag int

const (
	BadResult ResultTag = iota
	KeepAliveFulfilling
	CredsFulfilling
)

func (t ResultTag) String() string {
	switch t {
	case KeepAliveFulfilling:
		return "KEEP_ALIVE_FULFILLING"
	case CredsFulfilling:
		return "CREDS_FULFILLING"
	default:
		return "BAD_RESULT"
	}
}

// Make builds an outbound envelope for subject/stage and serializes it.
func Make(subject Subject, stage Stage) (string, error) {
	env := Envelope{
		ID:      uuid.NewString(),
		Subject: subject,
		Stage:   stage,
		Sent:    time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return "", sdperrors.Wrap(err, sdperrors.KindMemoryAllocation, "marshal envelope")
	}
	return string(data), nil
}

// MakeCredUpdateFulfilled builds the client's acknowledgement once a
// credential bundle has been fully applied (spec §4E: "store bundle; send
// fulfilled-ack").
func MakeCredUpdateFulfilled() (string, error) {
	return Make(SubjectCredUpdate, StageFulfilled)
}

// MakeKeepAlive builds a keep-alive request envelope.
func MakeKeepAlive() (string, error) {
	return Make(SubjectKeepAlive, StageNone)
}

// MakeCredUpdateRequest builds a credential-update request envelope.
func MakeCredUpdateRequest() (string, error) {
	return Make(SubjectCredUpdate, StageRequesting)
}

// Process classifies an inbound envelope. Malformed input is returned as an
// error to the loop; well-formed but unrecognized subjects yield BadResult,
// never an error — spec §3: "unknown tags must be logged and dropped,
// never crash".
func Process(text string) (ResultTag, *CredentialBundle, error) {
	var env Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		return BadResult, nil, sdperrors.Wrap(err, sdperrors.KindCredReq, "malformed envelope")
	}

	switch env.Subject {
	case SubjectKeepAlive:
		return KeepAliveFulfilling, nil, nil
	case SubjectCredUpdate:
		if env.Stage != StageFulfilled && env.Stage != "fulfilling" {
			return BadResult, nil, nil
		}
		var bundle CredentialBundle
		if len(env.Payload) == 0 {
			return BadResult, nil, fmt.Errorf("cred_update envelope missing payload")
		}
		if err := json.Unmarshal(env.Payload, &bundle); err != nil {
			return BadResult, nil, sdperrors.Wrap(err, sdperrors.KindCredReq, "malformed credential payload")
		}
		return CredsFulfilling, &bundle, nil
	default:
		return BadResult, nil, nil
	}
}
