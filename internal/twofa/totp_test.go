package twofa

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codeAt(t *testing.T, secret string, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, at, totp.ValidateOpts{
		Period:    30,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestValidateTOTP_WithinSkewWindow(t *testing.T) {
	t.Parallel()

	key, err := generateTOTPKey("a@b.com")
	require.NoError(t, err)
	secret := key.Secret()

	now := time.Now().UTC()

	assert.True(t, validateTOTP(codeAt(t, secret, now), secret), "current step must validate")
	assert.True(t, validateTOTP(codeAt(t, secret, now.Add(-30*time.Second)), secret), "previous step within skew")
	assert.True(t, validateTOTP(codeAt(t, secret, now.Add(30*time.Second)), secret), "next step within skew")
}

func TestValidateTOTP_OutsideSkewWindow(t *testing.T) {
	t.Parallel()

	key, err := generateTOTPKey("a@b.com")
	require.NoError(t, err)
	secret := key.Secret()

	now := time.Now().UTC()

	assert.False(t, validateTOTP(codeAt(t, secret, now.Add(-90*time.Second)), secret), "too-old step must fail")
	assert.False(t, validateTOTP(codeAt(t, secret, now.Add(90*time.Second)), secret), "too-new step must fail")
}

func TestValidateTOTP_GarbageProof(t *testing.T) {
	t.Parallel()

	key, err := generateTOTPKey("a@b.com")
	require.NoError(t, err)

	assert.False(t, validateTOTP("000000", key.Secret()))
	assert.False(t, validateTOTP("not-a-code", key.Secret()))
}

func TestGenerateTOTPKey_URLAndSecret(t *testing.T) {
	t.Parallel()

	key, err := generateTOTPKey("player@arcade.dev")
	require.NoError(t, err)

	assert.NotEmpty(t, key.Secret())
	assert.Contains(t, key.URL(), "otpauth://totp/")
	assert.Contains(t, key.URL(), "player%40arcade.dev")
}

func TestGenerateNumericCode_FixedLength(t *testing.T) {
	t.Parallel()

	for i := 0; i < 32; i++ {
		code, err := generateNumericCode()
		require.NoError(t, err)
		assert.Len(t, code, codeDigits)
		for _, r := range code {
			assert.True(t, r >= '0' && r <= '9', "code must be numeric: %q", code)
		}
	}
}
