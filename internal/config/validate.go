package config

import (
	"encoding/base64"
	"fmt"

	sdperrors "github.com/sdpc-project/sdpc/internal/errors"
)

// validate checks the spec §6 limits and required fields, returning
// non-fatal warnings for clamped values and an error only for values that
// cannot be made safe by clamping.
func validate(c *Config, opts LoadOptions) ([]string, error) {
	var warnings []string

	if c.CtrlAddr == "" {
		return nil, sdperrors.New(sdperrors.KindUninitialized, "ctrl_addr is required")
	}
	if len(c.CtrlAddr) > MaxServerStringLen {
		return nil, sdperrors.Errorf(sdperrors.KindUninitialized,
			"ctrl_addr exceeds %d characters", MaxServerStringLen)
	}
	if c.CtrlPort <= 0 || c.CtrlPort > 65535 {
		return nil, sdperrors.Errorf(sdperrors.KindUninitialized, "ctrl_port %d out of range", c.CtrlPort)
	}
	if c.KeyFile == "" || c.CertFile == "" {
		return nil, sdperrors.New(sdperrors.KindUninitialized, "key_file and cert_file are required")
	}

	if err := checkKeyLimits("spa_encryption_key", string(c.SPAEncryptionKey)); err != nil {
		return nil, err
	}
	if err := checkKeyLimits("spa_hmac_key", string(c.SPAHMACKey)); err != nil {
		return nil, err
	}

	if c.MsgQueueLen > MaxMsgQueueLen {
		warnings = append(warnings, fmt.Sprintf("msg_q_len %d exceeds cap %d, clamping", c.MsgQueueLen, MaxMsgQueueLen))
	}
	if d := c.PostSPADelayMillis; d > int(MaxPostSPADelay.Milliseconds()) {
		warnings = append(warnings, fmt.Sprintf("post_spa_delay %dms exceeds cap %s, clamping", d, MaxPostSPADelay))
	}

	return warnings, nil
}

// checkKeyLimits enforces the spec's raw (128 byte) and base64 (180 char)
// key length caps. Keys are stored as their configured (often base64) text
// form; both bounds are checked against what's plausible for each form.
func checkKeyLimits(name, value string) error {
	if value == "" {
		return nil
	}
	if len(value) > MaxBase64KeyLen {
		return sdperrors.Errorf(sdperrors.KindUninitialized, "%s exceeds %d characters", name, MaxBase64KeyLen)
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		if len(decoded) > MaxRawKeyBytes {
			return sdperrors.Errorf(sdperrors.KindUninitialized, "%s decodes to more than %d bytes", name, MaxRawKeyBytes)
		}
	}
	return nil
}
