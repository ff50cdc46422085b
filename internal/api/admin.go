package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"github.com/vanityapp123/vanityapp/internal/catalog"     // Product reference data
	"github.com/vanityapp123/vanityapp/internal/chain"       // Treasury balance lookup
	"github.com/vanityapp123/vanityapp/internal/domain"      // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/fulfillment" // Failed order review
	"github.com/vanityapp123/vanityapp/internal/ledger"      // Manual balance adjustments
	"github.com/vanityapp123/vanityapp/internal/settings"    // Storefront settings
	"github.com/vanityapp123/vanityapp/internal/utils"       // Utility functions

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/google/uuid"        // Adjustment reference IDs
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Exact SOL arithmetic
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library
)

// AdminStatsHandler returns storefront totals for the dashboard
func AdminStatsHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var accounts, products, orders, failed int64 // Aggregate counters
		if err := db.Model(&domain.Account{}).Count(&accounts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count accounts"})
			return
		}
		if err := db.Model(&domain.Product{}).Where("is_active = ?", true).Count(&products).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count products"})
			return
		}
		if err := db.Model(&domain.Order{}).Count(&orders).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count orders"})
			return
		}
		if err := db.Model(&domain.Order{}).Where("status = ?", domain.OrderFailed).Count(&failed).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count failed orders"})
			return
		}
		// Total deposited is the sum of deposit deltas on the ledger
		var deposited decimal.NullDecimal
		if err := db.Model(&domain.LedgerEntry{}).Where("kind = ?", domain.EntryDeposit).
			Select("SUM(delta)").Row().Scan(&deposited); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum deposits"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"accounts":        accounts,
			"active_products": products,
			"orders":          orders,
			"failed_orders":   failed,
			"total_deposited": deposited.Decimal,
		})
	}
}

// AccountAdminResponse represents the account data returned to admin
type AccountAdminResponse struct {
	ID             uint            `json:"id"`              // Account ID
	TelegramID     int64           `json:"telegram_id"`     // Telegram user ID
	Username       string          `json:"username"`        // Telegram username
	Balance        decimal.Decimal `json:"balance"`         // Ledger balance
	DepositAddress string          `json:"deposit_address"` // Assigned deposit address
	IsBanned       bool            `json:"is_banned"`       // Ban flag
}

// ListAccountsHandler returns all accounts with balances, paginated
func ListAccountsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Use background context for Redis
		// Create a cache key based on pagination parameters
		cacheKey := "admin:accounts:page=" + c.DefaultQuery("page", "1") + ":size=" + c.DefaultQuery("page_size", "20")
		var cached struct {
			Accounts   []AccountAdminResponse `json:"accounts"`    // List of accounts
			Page       int                    `json:"page"`        // Current page
			PageSize   int                    `json:"page_size"`   // Page size
			Total      int64                  `json:"total"`       // Total number of accounts
			TotalPages int                    `json:"total_pages"` // Total pages
		}
		// If cached data found, return it
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"accounts":    cached.Accounts,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true,
			})
			return
		}
		page := 1      // Default page number
		pageSize := 20 // Default page size
		if p := c.Query("page"); p != "" {
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// Check and set page size within limits
		if ps := c.Query("page_size"); ps != "" {
			// If valid, set page size
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size
			}
		}
		offset := (page - 1) * pageSize // Calculate offset for pagination
		var total int64                 // Total account count
		if err := db.Model(&domain.Account{}).Count(&total).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count accounts"}) // Return on error
			return
		}
		var accounts []domain.Account // Slice to hold accounts
		if err := db.Offset(offset).Limit(pageSize).Order("id").Find(&accounts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch accounts"}) // Return on error
			return
		}
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := make([]AccountAdminResponse, len(accounts))
		// Map accounts to response format
		for i, a := range accounts {
			resp[i] = AccountAdminResponse{
				ID:             a.ID,             // Account ID
				TelegramID:     a.TelegramID,     // Telegram user ID
				Username:       a.Username,       // Telegram username
				Balance:        a.Balance,        // Ledger balance
				DepositAddress: a.DepositAddress, // Assigned deposit address
				IsBanned:       a.IsBanned,       // Ban flag
			}
		}
		respData := gin.H{
			"accounts":    resp,       // List of accounts
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total number of accounts
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Indicate response is not from cache
		}
		// Cache the response for future requests
		_ = utils.SetCache(ctx, rdb, cacheKey, respData, 60*time.Second)
		c.JSON(http.StatusOK, respData) // Return the response
	}
}

// ProductRequest is the admin payload for creating or editing a product
type ProductRequest struct {
	Name        string  `json:"name" binding:"required"`  // Product name
	Description string  `json:"description"`              // Description text
	City        string  `json:"city"`                     // Listing city
	Price       string  `json:"price" binding:"required"` // SOL price as a decimal string
	Stock       *int    `json:"stock"`                    // Stock count, -1 for unlimited
	MediaRefs   *string `json:"media_refs"`               // Newline-separated media references
}

// CreateProductHandler inserts a new product into the catalog
func CreateProductHandler(cat *catalog.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ProductRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		price, err := decimal.NewFromString(req.Price)
		if err != nil || price.IsNegative() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid price"})
			return
		}
		stock := domain.UnlimitedStock // Default to unlimited stock
		if req.Stock != nil {
			stock = *req.Stock
		}
		p := &domain.Product{
			Name:        req.Name,        // Product name
			Description: req.Description, // Description text
			City:        req.City,        // Listing city
			Price:       price,           // SOL price
			Stock:       stock,           // Stock count
			IsActive:    true,            // New products are live immediately
		}
		if req.MediaRefs != nil {
			p.MediaRefs = *req.MediaRefs
		}
		if err := cat.Create(c.Request.Context(), p); err != nil {
			logrus.WithField("error", err.Error()).Error("Failed to create product")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create product"})
			return
		}
		invalidateProductCaches(rdb) // Catalog changed; drop cached listings
		c.JSON(http.StatusCreated, gin.H{"product": p})
	}
}

// UpdateProductHandler applies partial edits to a product
func UpdateProductHandler(cat *catalog.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id")) // Parse product ID from path
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
			return
		}
		var req struct {
			Name        *string `json:"name"`        // Product name
			Description *string `json:"description"` // Description text
			City        *string `json:"city"`        // Listing city
			Price       *string `json:"price"`       // SOL price as a decimal string
			Stock       *int    `json:"stock"`       // Stock count, -1 for unlimited
			MediaRefs   *string `json:"media_refs"`  // Newline-separated media references
			IsActive    *bool   `json:"is_active"`   // Listing visibility
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		fields := map[string]any{} // Only submitted fields are changed
		if req.Name != nil {
			fields["name"] = *req.Name
		}
		if req.Description != nil {
			fields["description"] = *req.Description
		}
		if req.City != nil {
			fields["city"] = *req.City
		}
		if req.Price != nil {
			price, err := decimal.NewFromString(*req.Price)
			if err != nil || price.IsNegative() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid price"})
				return
			}
			fields["price"] = price
		}
		if req.Stock != nil {
			fields["stock"] = *req.Stock
		}
		if req.MediaRefs != nil {
			fields["media_refs"] = *req.MediaRefs
		}
		if req.IsActive != nil {
			fields["is_active"] = *req.IsActive
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "No fields to update"})
			return
		}
		if err := cat.Update(c.Request.Context(), uint(id), fields); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		invalidateProductCaches(rdb) // Catalog changed; drop cached listings
		c.JSON(http.StatusOK, gin.H{"message": "Product updated"})
	}
}

// DeleteProductHandler deactivates a product; order snapshots are unaffected
func DeleteProductHandler(cat *catalog.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id")) // Parse product ID from path
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
			return
		}
		if err := cat.Deactivate(c.Request.Context(), uint(id)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		invalidateProductCaches(rdb) // Catalog changed; drop cached listings
		c.JSON(http.StatusOK, gin.H{"message": "Product deactivated"})
	}
}

// ListSettingsHandler returns every runtime setting
func ListSettingsHandler(store *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		all, err := store.All(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settings": all})
	}
}

// SetSettingHandler upserts one runtime setting
func SetSettingHandler(store *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Key   string `json:"key" binding:"required"`   // Setting key
			Value string `json:"value" binding:"required"` // Setting value
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if err := store.Set(c.Request.Context(), req.Key, req.Value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save setting"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"key":   req.Key,   // Setting key
			"value": req.Value, // New value
		}).Info("Setting updated")
		c.JSON(http.StatusOK, gin.H{"message": "Setting saved"})
	}
}

// FailedOrdersHandler lists orders whose delivery retries are exhausted
func FailedOrdersHandler(queue *fulfillment.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		orders, err := queue.Failed(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch orders"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": orders})
	}
}

// AdjustBalanceRequest is a manual ledger credit, e.g. compensating a failed
// delivery or crediting a deposit the monitor could not attribute
type AdjustBalanceRequest struct {
	AccountID uint   `json:"account_id" binding:"required"` // Target account
	Amount    string `json:"amount" binding:"required"`     // SOL amount as a decimal string
	Reason    string `json:"reason" binding:"required"`     // Audit note
}

// AdjustBalanceHandler credits an account through the ledger so the
// adjustment is auditable like any other entry
func AdjustBalanceHandler(store *ledger.Store, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AdjustBalanceRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil || !amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		// A fresh reference per adjustment; the reason lives in the log
		ref := "admin_adjust_" + uuid.NewString()
		applied, err := store.Credit(c.Request.Context(), req.AccountID, amount, ref)
		if err != nil || !applied {
			logrus.WithFields(logrus.Fields{
				"account_id": req.AccountID,
				"amount":     req.Amount,
			}).Error("Manual adjustment failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Adjustment failed"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"admin_id":   c.GetUint("accountID"), // Acting operator
			"account_id": req.AccountID,          // Target account
			"amount":     req.Amount,             // Credited amount
			"reason":     req.Reason,             // Audit note
			"ref":        ref,                    // Ledger reference
		}).Info("Manual balance adjustment")
		invalidateWalletCaches(rdb, req.AccountID) // Balance moved; drop cached views
		c.JSON(http.StatusOK, gin.H{"message": "Balance adjusted", "ref": ref})
	}
}

// SetBanHandler bans or unbans an account; banned accounts keep their balance
// but cannot check out
func SetBanHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id")) // Parse account ID from path
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid account ID"})
			return
		}
		var req struct {
			Banned bool `json:"banned"` // Desired ban state
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		res := db.Model(&domain.Account{}).Where("id = ?", id).Update("is_banned", req.Banned)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update account"})
			return
		}
		if res.RowsAffected == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
			return
		}
		logrus.WithFields(logrus.Fields{
			"admin_id":   c.GetUint("accountID"), // Acting operator
			"account_id": id,                     // Target account
			"banned":     req.Banned,             // New ban state
		}).Info("Account ban state changed")
		c.JSON(http.StatusOK, gin.H{"message": "Account updated"})
	}
}

// TreasuryHandler reports the on-chain balance of the treasury wallet next to
// the sum of ledger balances, so operators can spot drift between what the
// store owes buyers and what it actually holds
func TreasuryHandler(db *gorm.DB, client chain.Client, treasuryAddress string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var owed decimal.NullDecimal // Sum of all buyer balances
		if err := db.Model(&domain.Account{}).Select("SUM(balance)").Row().Scan(&owed); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sum balances"})
			return
		}
		resp := gin.H{"owed_to_buyers": owed.Decimal}
		if treasuryAddress != "" {
			held, err := client.Balance(c.Request.Context(), treasuryAddress)
			if err != nil {
				// The chain being unreachable should not hide the ledger side
				resp["treasury_error"] = "Chain balance unavailable"
			} else {
				resp["treasury_address"] = treasuryAddress
				resp["treasury_balance"] = held
			}
		}
		c.JSON(http.StatusOK, resp)
	}
}
