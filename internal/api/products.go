package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Time durations

	"github.com/vanityapp123/vanityapp/internal/catalog"  // Product reference data
	"github.com/vanityapp123/vanityapp/internal/domain"   // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/settings" // Storefront settings
	"github.com/vanityapp123/vanityapp/internal/utils"    // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// ListProductsHandler returns the active catalog, optionally filtered by city
func ListProductsHandler(cat *catalog.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		city := c.Query("city")             // Optional city filter
		cacheKey := "products:city:" + city // Cache key per city
		ctx := context.Background()         // Context for Redis operations
		var cached []domain.Product
		// Try to get from cache
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"products": cached, "cached": true})
			return
		}
		products, err := cat.ListActive(c.Request.Context(), city)
		if err != nil {
			// If fetching fails, return error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch products"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, products, 60*time.Second) // Cache the catalog for 60 seconds
		c.JSON(http.StatusOK, gin.H{"products": products, "cached": false})
	}
}

// ProductDetailHandler returns one product by ID
func ProductDetailHandler(cat *catalog.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.Atoi(c.Param("id")) // Parse product ID from path
		if err != nil || id <= 0 {
			// If invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid product ID"})
			return
		}
		p, err := cat.Get(c.Request.Context(), uint(id))
		if err != nil {
			// If not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		// Inactive products are hidden from buyers
		if !p.IsActive {
			c.JSON(http.StatusNotFound, gin.H{"error": "Product not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"product": p})
	}
}

// GetSettingsHandler returns the public storefront settings
func GetSettingsHandler(store *settings.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"min_deposit_sol": store.Get(c.Request.Context(), domain.SettingMinDeposit, "0.001"),
			"support_link":    store.Get(c.Request.Context(), domain.SettingSupportLink, ""),
		})
	}
}

// invalidateProductCaches drops every cached catalog page after an admin edit
func invalidateProductCaches(rdb *redis.Client) {
	ctx := context.Background()                          // Context for Redis operations
	_ = utils.DeletePattern(ctx, rdb, "products:city:*") // Invalidate all city listings
}
