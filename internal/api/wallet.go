package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/ledger" // Balance authority
	"github.com/vanityapp123/vanityapp/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// GetWalletHandler returns balance and deposit address for the authenticated account
func GetWalletHandler(store *ledger.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetUint("accountID") // Set by the JWT middleware
		if accountID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := context.Background()                                     // Context for Redis operations
		cacheKey := "wallet:account:" + strconv.Itoa(int(accountID))    // Cache key for wallet
		var cached gin.H                                                // Cached wallet payload
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			// Return cached wallet
			cached["cached"] = true
			c.JSON(http.StatusOK, cached)
			return
		}
		acct, err := store.AccountByID(c.Request.Context(), accountID)
		if err != nil {
			// Return not found if account doesn't exist
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		resp := gin.H{
			"balance":         acct.Balance,        // Derived ledger balance
			"deposit_address": acct.DepositAddress, // Where to send SOL
			"cached":          false,
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 15*time.Second) // Cache briefly; deposits must surface fast
		c.JSON(http.StatusOK, resp)                                  // Return wallet info
	}
}

// GetLedgerHistoryHandler returns the account's ledger entries, paginated
func GetLedgerHistoryHandler(store *ledger.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID := c.GetUint("accountID") // Set by the JWT middleware
		if accountID == 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page := 1      // Default page
		pageSize := 20 // Default page size
		// If page exists in query
		if p := c.Query("page"); p != "" {
			// Convert page to integer
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// If page_size exists in query
		if ps := c.Query("page_size"); ps != "" {
			// Convert page_size to integer
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size if valid
			}
		}
		// Redis cache key
		cacheKey := "ledger:account:" + strconv.Itoa(int(accountID)) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		ctx := context.Background() // Context for Redis operations
		var cached struct {
			Entries    []domain.LedgerEntry `json:"entries"`     // List of ledger entries
			Page       int                  `json:"page"`        // Current page
			PageSize   int                  `json:"page_size"`   // Page size
			Total      int64                `json:"total"`       // Total entries
			TotalPages int                  `json:"total_pages"` // Total pages
		}
		// Try to get from cache
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"entries":     cached.Entries,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true,
			})
			return
		}
		entries, total, err := store.Entries(c.Request.Context(), accountID, page, pageSize)
		if err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ledger history"})
			return
		}
		// Calculate total pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"entries":     entries,    // List of ledger entries
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total entries
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		// Cache the result for 30 seconds
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, 30*time.Second)
		c.JSON(http.StatusOK, resp) // Return ledger history
	}
}

// invalidateWalletCaches drops the cached wallet and ledger pages after a
// balance movement
func invalidateWalletCaches(rdb *redis.Client, accountID uint) {
	ctx := context.Background()                               // Context for Redis operations
	key := "wallet:account:" + strconv.Itoa(int(accountID))   // Wallet cache key
	prefix := "ledger:account:" + strconv.Itoa(int(accountID)) // Ledger history prefix
	_ = utils.DeleteCache(ctx, rdb, key)                      // Invalidate wallet cache
	_ = utils.DeletePattern(ctx, rdb, prefix+":*")            // Invalidate all cached ledger pages
}
