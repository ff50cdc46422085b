package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const testBotToken = "12345:TEST_TOKEN"

// signInitData builds a signed initData string the way Telegram does: every
// parameter except hash, sorted by key, joined with newlines, HMAC'd with the
// SHA-256 digest of the bot token.
func signInitData(t *testing.T, params map[string]string) string {
	t.Helper()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = k + "=" + params[k]
	}
	secret := sha256.Sum256([]byte(testBotToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(items, "\n")))
	sig := hex.EncodeToString(mac.Sum(nil))

	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	values.Set("hash", sig)
	return values.Encode()
}

func TestVerifyInitDataAcceptsValidSignature(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1724900000",
		"query_id":  "AAH1",
		"user":      `{"id":4242,"username":"buyer","first_name":"Buyer"}`,
	})
	params, err := VerifyInitData(initData, testBotToken)
	require.NoError(t, err)

	user, err := initDataIdentity(params)
	require.NoError(t, err)
	require.Equal(t, int64(4242), user.ID)
	require.Equal(t, "buyer", user.Username)
}

func TestVerifyInitDataRejectsTampering(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1724900000",
		"user":      `{"id":4242}`,
	})
	// Swap the user ID after signing
	tampered := strings.Replace(initData, "4242", "9999", 1)
	_, err := VerifyInitData(tampered, testBotToken)
	require.Error(t, err)
}

func TestVerifyInitDataRejectsWrongToken(t *testing.T) {
	initData := signInitData(t, map[string]string{
		"auth_date": "1724900000",
		"user":      `{"id":4242}`,
	})
	_, err := VerifyInitData(initData, "99999:OTHER_TOKEN")
	require.Error(t, err)
}

func TestVerifyInitDataRequiresHash(t *testing.T) {
	_, err := VerifyInitData("auth_date=1724900000&user=%7B%22id%22%3A1%7D", testBotToken)
	require.Error(t, err)
}

func TestInitDataIdentityFlatUserID(t *testing.T) {
	// Older clients send user_id instead of the embedded user object
	user, err := initDataIdentity(map[string]string{"user_id": "777"})
	require.NoError(t, err)
	require.Equal(t, int64(777), user.ID)

	_, err = initDataIdentity(map[string]string{"auth_date": "1"})
	require.Error(t, err)
}
