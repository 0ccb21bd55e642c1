package codec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeKeepAlive(t *testing.T) {
	text, err := MakeKeepAlive()
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(text), &env))
	assert.Equal(t, SubjectKeepAlive, env.Subject)
	assert.NotEmpty(t, env.ID)
}

func TestProcessKeepAliveFulfilling(t *testing.T) {
	text, err := MakeKeepAlive()
	require.NoError(t, err)

	tag, bundle, err := Process(text)
	require.NoError(t, err)
	assert.Equal(t, KeepAliveFulfilling, tag)
	assert.Nil(t, bundle)
}

func TestProcessCredsFulfilling(t *testing.T) {
	bundle := CredentialBundle{
		TLSCertPEM:       "cert",
		TLSKeyPEM:        "key",
		SPAEncryptionKey: "enc",
		SPAHMACKey:       "hmac",
	}
	payload, err := json.Marshal(bundle)
	require.NoError(t, err)

	env := Envelope{ID: "x", Subject: SubjectCredUpdate, Stage: "fulfilling", Payload: payload}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	tag, got, err := Process(string(raw))
	require.NoError(t, err)
	assert.Equal(t, CredsFulfilling, tag)
	require.NotNil(t, got)
	assert.Equal(t, bundle, *got)
}

func TestProcessUnknownSubjectIsBadResultNotError(t *testing.T) {
	env := Envelope{ID: "x", Subject: "something_new"}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	tag, bundle, err := Process(string(raw))
	require.NoError(t, err, "unknown well-formed subjects must not error")
	assert.Equal(t, BadResult, tag)
	assert.Nil(t, bundle)
}

func TestProcessMalformedIsError(t *testing.T) {
	_, _, err := Process("{not json")
	require.Error(t, err)
}

func TestProcessCredUpdateMissingPayload(t *testing.T) {
	env := Envelope{ID: "x", Subject: SubjectCredUpdate, Stage: "fulfilling"}
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	_, _, err = Process(string(raw))
	require.Error(t, err)
}
