package config

const EnvPrefix = "VISITTRACKER"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	StoreBackendFirestore = "firestore"
	StoreBackendRedis     = "redis"
	StoreBackendMemory    = "memory"
)

const (
	EnvAppEnv                 = "VISITTRACKER_APP_ENV"
	EnvPort                   = "VISITTRACKER_APP_PORT"
	EnvLogLevel               = "VISITTRACKER_LOG_LEVEL"
	EnvStoreBackend           = "VISITTRACKER_STORE_BACKEND"
	EnvGCPProjectID           = "VISITTRACKER_GCP_PROJECT_ID"
	EnvRedisURL               = "VISITTRACKER_REDIS_URL"
	EnvRedisAddr              = "VISITTRACKER_REDIS_ADDR"
	EnvPubSubVisitEventsTopic = "VISITTRACKER_PUBSUB_VISIT_EVENTS_TOPIC"
	EnvVisitFeedBaseURL       = "VISITTRACKER_VISIT_FEED_BASE_URL"
	EnvStreamAllowedOrigins   = "VISITTRACKER_STREAM_ALLOWED_ORIGINS"
)
