package api

import (
	"errors"   // Sentinel error checks
	"net/http" // HTTP status codes

	"github.com/vanityapp123/vanityapp/internal/checkout" // Checkout engine

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// CheckoutRequest is the cart submitted by the buyer
type CheckoutRequest struct {
	Items []checkout.Item `json:"items" binding:"required"` // Cart lines
}

// CheckoutHandler settles a cart against the balance ledger. Insufficient
// balance is a normal outcome (200 with ok=false), not an error; validation
// failures are 400s; everything else is a 500
func CheckoutHandler(engine *checkout.Engine, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetUint("accountID") // Set by the JWT middleware
		if accountID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req CheckoutRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res, err := engine.Process(c.Request.Context(), accountID, req.Items)
		if err != nil {
			switch {
			case errors.Is(err, checkout.ErrEmptyCart):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
			case errors.Is(err, checkout.ErrInvalidQuantity):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Quantity must be positive"})
			case errors.Is(err, checkout.ErrProductUnavailable):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Product unavailable"})
			case errors.Is(err, checkout.ErrAccountBanned):
				c.JSON(http.StatusForbidden, gin.H{"error": "Account is banned"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Checkout failed"})
			}
			return
		}
		if !res.OK {
			// Not enough balance; tell the buyer what's missing
			c.JSON(http.StatusOK, gin.H{
				"ok":       false,
				"error":    "insufficient_balance",
				"balance":  res.Balance,
				"required": res.Required,
			})
			return
		}
		// Balance moved; drop the cached wallet views
		invalidateWalletCaches(rdb, accountID)
		c.JSON(http.StatusOK, gin.H{
			"ok":      true,
			"orders":  res.Orders,
			"balance": res.Balance,
		})
	}
}
