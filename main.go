package main

import (
	"context"
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"livechat-service/internal/chat"
	"livechat-service/internal/db"
	"livechat-service/internal/handlers"
	"livechat-service/internal/middleware"
	"livechat-service/internal/observability"
	"livechat-service/internal/rabbitmq"
	"livechat-service/internal/repositories"
	"livechat-service/internal/telemetry"
	"livechat-service/internal/ws"
)

func main() {
	ctx := context.Background()

	database, err := db.Connect()
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	shutdownTracing, err := telemetry.InitTracing(ctx, "livechat-service", getEnv("OTLP_ADDR", "localhost:4317"), getEnv("ENVIRONMENT", "dev"))
	if err != nil {
		log.Printf("tracing disabled: %v", err)
	} else {
		defer shutdownTracing(ctx)
	}

	amqpURL := os.Getenv("AMQP_URL")
	exchange := getEnv("AMQP_EXCHANGE", "livechat.events")

	publisher := rabbitmq.NewPublisher(amqpURL, exchange)
	defer publisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(publisher))

	if amqpURL != "" {
		events, err := observability.NewAMQPPublisher(amqpURL, exchange)
		if err != nil {
			log.Printf("ws event publisher disabled: %v", err)
		} else {
			observability.SetPublisher(events)
			defer events.Close()
		}
	}

	audit := telemetry.NewAuditEmitter(publisher, "audit.livechat", "livechat-service", getEnv("ENVIRONMENT", "dev"))

	sessionRepo := repositories.NewSessionRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)

	registry := ws.NewRegistry()
	defer registry.Close()

	assigner := chat.NewAssigner(sessionRepo, userRepo)
	service := chat.NewService(sessionRepo, messageRepo, userRepo, registry, assigner, audit)

	liveWS := ws.NewLiveChatHandler(registry, service)
	sessionHandler := handlers.NewSessionHandler(service, sessionRepo, messageRepo)

	router := gin.Default()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("livechat-service"))
	router.Use(observability.HTTPMetricsMiddleware())

	identity := middleware.Identity()

	router.GET("/sessions", identity, sessionHandler.ListSessions)
	router.GET("/sessions/:session_id/messages", identity, sessionHandler.GetSessionMessages)
	router.GET("/sessions/:session_id/messages/:message_id", identity, sessionHandler.GetSessionMessage)

	router.GET("/ws/live-chat", liveWS.Handle)

	router.GET("/healthz", handlers.Healthz)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	port := getEnv("PORT", "8086")
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}
