package middleware

import (
	"bytes"    // Response body capture
	"errors"   // Sentinel error checks
	"net/http" // HTTP status codes

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// bodyRecorder wraps the gin response writer to keep a copy of the body for
// the replay cache.
type bodyRecorder struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency replays the stored response when a request repeats an
// Idempotency-Key the account has already used. Keys are scoped per account,
// so clients can retry a checkout after a timeout without double-spending.
func Idempotency(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader("Idempotency-Key") // Get key from header
		// Requests without a key pass through untouched
		if key == "" {
			c.Next()
			return
		}
		accountID := c.GetUint("accountID") // Set by the JWT middleware
		if accountID == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		// Replay the stored response if this key was already settled. The key
		// column is a MySQL reserved word and must stay quoted.
		var receipt domain.CheckoutReceipt
		err := db.Where("account_id = ? AND `key` = ?", accountID, key).First(&receipt).Error
		if err == nil {
			c.Header("X-Idempotency-Hit", "true")
			c.Data(receipt.Status, "application/json", receipt.Body)
			c.Abort()
			return
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		// Run the handler with the body recorder in place
		rec := &bodyRecorder{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rec
		c.Next()

		// Store the result for replay. The unique index absorbs the race when
		// two requests with the same key run concurrently.
		receipt = domain.CheckoutReceipt{
			AccountID: accountID,
			Key:       key,
			Status:    c.Writer.Status(),
			Body:      rec.body.Bytes(),
		}
		if err := db.Create(&receipt).Error; err != nil && !errors.Is(err, gorm.ErrDuplicatedKey) {
			logrus.WithFields(logrus.Fields{
				"account_id": accountID,
				"key":        key,
				"error":      err.Error(),
			}).Error("Failed to store idempotency receipt")
		}
	}
}
