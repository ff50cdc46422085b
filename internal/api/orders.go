package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/vanityapp123/vanityapp/internal/fulfillment" // Order queue and history

	"github.com/gin-gonic/gin" // Gin web framework
)

// ListOrdersHandler returns the authenticated account's recent orders
func ListOrdersHandler(queue *fulfillment.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetUint("accountID") // Set by the JWT middleware
		if accountID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		limit := 20 // Default limit
		// If limit exists in query
		if l := c.Query("limit"); l != "" {
			// Convert limit to integer
			if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 100 {
				limit = v // Set limit if valid
			}
		}
		orders, err := queue.OrdersByAccount(c.Request.Context(), accountID, limit)
		if err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}
