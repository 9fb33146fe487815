package config

import (
	"fmt"
	"os"
	"strconv"
)

type Config struct {
	Port string

	// Shopify Admin API access. Validated per invocation, not at boot, so a
	// half-configured deployment still serves its health and audit endpoints.
	ShopName           string
	ShopifyAPIVersion  string
	ShopifyAccessToken string

	// Order-management system REST API.
	OMSBaseURL  string
	OMSAPIToken string

	// Method-of-payment id designating PayPal on the OMS side.
	PaypalMopID int

	EnableDebugLog bool

	APIKey string // auth for the operational HTTP endpoints

	RedisURL string // optional, enables the per-order reconcile lock

	KafkaBrokers string
	KafkaTopic   string

	ReconcileQueueURL string // SQS queue delivering reconcile triggers
	ReconcileTopicARN string // SNS topic for best-effort outcome broadcast
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:               getEnv("PORT", "8089"),
		ShopName:           os.Getenv("SHOPIFY_SHOP_NAME"),
		ShopifyAPIVersion:  getEnv("SHOPIFY_API_VERSION", "2024-07"),
		ShopifyAccessToken: os.Getenv("SHOPIFY_ACCESS_TOKEN"),
		OMSBaseURL:         os.Getenv("OMS_BASE_URL"),
		OMSAPIToken:        os.Getenv("OMS_API_TOKEN"),
		EnableDebugLog:     os.Getenv("ENABLE_DEBUG_LOG") == "1",
		APIKey:             os.Getenv("API_KEY"),
		RedisURL:           os.Getenv("REDIS_URL"),
		KafkaBrokers:       getEnv("KAFKA_BROKERS", "localhost:9092"),
		KafkaTopic:         getEnv("KAFKA_RECONCILE_TOPIC", "payment-reconcile-events"),
		ReconcileQueueURL:  os.Getenv("RECONCILE_QUEUE_URL"),
		ReconcileTopicARN:  os.Getenv("RECONCILE_SNS_TOPIC_ARN"),
	}

	if v := os.Getenv("PAYPAL_MOP_ID"); v != "" {
		mopID, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PAYPAL_MOP_ID %q: %w", v, err)
		}
		cfg.PaypalMopID = mopID
	}

	if cfg.OMSBaseURL == "" || cfg.OMSAPIToken == "" {
		return nil, fmt.Errorf("missing required environment variables OMS_BASE_URL / OMS_API_TOKEN")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
