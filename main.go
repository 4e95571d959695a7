package main

import (
	"log"
	"net/http"

	"case-tracker/internal/api"
	"case-tracker/internal/config"
	"case-tracker/internal/database"
	currencyService "case-tracker/internal/services/currency"
	steamService "case-tracker/internal/services/steam"
	"case-tracker/internal/services/tracker"
	"case-tracker/internal/store"

	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	db, err := database.Initialize(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database:", err)
	}

	steamSvc := steamService.NewService(cfg.SteamAPIKey, cfg.HTTPTimeout)
	currencySvc := currencyService.NewService(cfg.HTTPTimeout)

	trackerSvc := tracker.New(store.New(db), steamSvc, currencySvc, tracker.Options{
		FreshnessWindow: cfg.FreshnessWindow,
		Currencies:      cfg.Currencies,
		ItemFilter:      cfg.ItemFilter,
	})

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API routes
	apiGroup := r.Group("/api/v1")
	api.SetupRoutes(apiGroup, trackerSvc, cfg.HistoryWindow)

	log.Printf("Server starting on port %s", cfg.Port)
	log.Fatal(http.ListenAndServe(":"+cfg.Port, r))
}
