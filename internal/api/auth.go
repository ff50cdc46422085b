package api

import (
	"crypto/hmac"   // initData signature verification
	"crypto/sha256" // Secret key derivation
	"encoding/hex"  // Signature encoding
	"encoding/json" // Embedded user payload
	"errors"        // Validation errors
	"net/http"      // HTTP status codes
	"net/url"       // initData query decoding
	"sort"          // data-check-string key ordering
	"strconv"       // String conversion
	"strings"       // String manipulation

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/ledger" // Account provisioning
	"github.com/vanityapp123/vanityapp/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

// VerifyRequest carries the raw WebApp initData string from the client
type VerifyRequest struct {
	InitData string `json:"initData" binding:"required"` // Raw initData must be provided
}

// AdminLoginRequest is the operator login payload
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"` // Username must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// AuthResponse carries the issued token
type AuthResponse struct {
	Token string `json:"token"` // JWT token
}

// initDataUser is the user object Telegram embeds in initData
type initDataUser struct {
	ID        int64  `json:"id"`         // Telegram user ID
	Username  string `json:"username"`   // Telegram username
	FirstName string `json:"first_name"` // Telegram first name
}

// VerifyInitData checks the HMAC signature Telegram attaches to WebApp
// initData and returns the decoded parameters. The secret key is the SHA-256
// digest of the bot token; the data-check-string is every parameter except
// hash, sorted by key, joined with newlines.
func VerifyInitData(initData, botToken string) (map[string]string, error) {
	params := map[string]string{}
	for _, part := range strings.Split(initData, "&") {
		k, v, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		decoded, err := url.QueryUnescape(v)
		if err != nil {
			return nil, errors.New("malformed initData")
		}
		params[k] = decoded
	}
	sig, ok := params["hash"]
	if !ok {
		return nil, errors.New("no hash in initData")
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		if k != "hash" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	items := make([]string, len(keys))
	for i, k := range keys {
		items[i] = k + "=" + params[k]
	}
	secret := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secret[:])
	mac.Write([]byte(strings.Join(items, "\n")))
	computed := hex.EncodeToString(mac.Sum(nil))
	// Constant-time comparison of the hex digests
	if !hmac.Equal([]byte(computed), []byte(sig)) {
		return nil, errors.New("invalid initData signature")
	}
	return params, nil
}

// initDataIdentity extracts the Telegram identity from verified parameters
func initDataIdentity(params map[string]string) (initDataUser, error) {
	if raw, ok := params["user"]; ok {
		var u initDataUser
		if err := json.Unmarshal([]byte(raw), &u); err == nil && u.ID != 0 {
			return u, nil
		}
	}
	// Older clients send the ID as a flat parameter
	for _, key := range []string{"user_id", "id"} {
		if raw, ok := params[key]; ok {
			if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id != 0 {
				return initDataUser{ID: id}, nil
			}
		}
	}
	return initDataUser{}, errors.New("no user info in initData")
}

// AuthVerifyHandler verifies WebApp initData, provisions the account with its
// deposit address on first contact, and issues a JWT
func AuthVerifyHandler(store *ledger.Store, botToken, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VerifyRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "initData required"})
			return
		}
		params, err := VerifyInitData(req.InitData, botToken)
		if err != nil {
			// Signature mismatch or malformed payload
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid initData"})
			return
		}
		user, err := initDataIdentity(params)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No user info"})
			return
		}
		// First contact creates the account and its deposit address
		acct, err := store.GetOrCreateByTelegramID(c.Request.Context(), user.ID, user.Username, user.FirstName)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"telegram_id": user.ID,
				"error":       err.Error(),
			}).Error("Account provisioning failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision account"})
			return
		}
		if acct.IsBanned {
			c.JSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
			return
		}
		token, err := utils.GenerateJWT(acct.ID, acct.TelegramID, acct.Role, jwtSecret)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token alongside the deposit address for the wallet screen
		c.JSON(http.StatusOK, gin.H{
			"token":           token,
			"deposit_address": acct.DepositAddress,
			"balance":         acct.Balance,
		})
	}
}

// AdminLoginHandler authenticates an operator by username and password
func AdminLoginHandler(db *gorm.DB, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdminLoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var acct domain.Account // Fetch account from database
		err := db.Where("username = ? AND role = ?", strings.ToLower(req.Username), "admin").First(&acct).Error
		if err != nil {
			// If account not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		token, err := utils.GenerateJWT(acct.ID, acct.TelegramID, acct.Role, jwtSecret)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token})
	}
}
