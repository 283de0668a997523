package twofa

import (
	"bytes"
	"encoding/base64"
	"image/png"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "Gatehouse"

// generateTOTPKey creates a fresh TOTP key bound to the account email.
// Nothing is persisted here; the secret only reaches the database once a
// valid proof has been shown on enable.
func generateTOTPKey(email string) (*otp.Key, error) {
	return totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: email,
	})
}

// validateTOTP checks proof against secret allowing one time step of skew
// either side, so a code generated just before a step boundary still passes.
func validateTOTP(proof, secret string) bool {
	ok, err := totp.ValidateCustom(proof, secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// qrPNGBase64 renders the otpauth URI as a base64-encoded PNG for the
// client to display.
func qrPNGBase64(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
