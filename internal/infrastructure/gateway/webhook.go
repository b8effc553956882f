package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"hivepos/internal/core/apperror"
	"hivepos/internal/domain/refund"
)

// Signature headers sent with every callback.
const (
	HeaderSignature = "X-Gateway-Signature"
	HeaderTimestamp = "X-Gateway-Timestamp"
)

// maxSkew bounds how old a signed callback may be.
const maxSkew = 5 * time.Minute

// Verifier checks callback signatures: hex(HMAC-SHA256(secret, timestamp + "." + body)).
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a verifier for the shared webhook secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Sign returns the signature for body at the given unix timestamp.
func (v *Verifier) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify authenticates a callback and decodes it.
func (v *Verifier) Verify(signature, timestamp string, body []byte) (*refund.Callback, error) {
	if len(v.secret) == 0 {
		return nil, apperror.NewUnauthorized("gateway callbacks are not configured")
	}

	sec, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return nil, apperror.NewUnauthorized("invalid callback timestamp")
	}
	age := v.now().Sub(time.Unix(sec, 0))
	if age > maxSkew || age < -maxSkew {
		return nil, apperror.NewUnauthorized("callback timestamp outside tolerance")
	}

	expected := v.Sign(timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature)))) {
		return nil, apperror.NewUnauthorized("invalid callback signature")
	}

	var cb refund.Callback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, apperror.NewValidation("malformed callback body").WithDetail("error", err.Error())
	}
	if cb.GatewayReference == "" {
		return nil, apperror.NewValidation("callback has no reference")
	}
	switch cb.Status {
	case refund.CallbackSucceeded, refund.CallbackFailed:
	default:
		return nil, apperror.NewValidation(fmt.Sprintf("unknown callback status %q", cb.Status))
	}
	return &cb, nil
}
