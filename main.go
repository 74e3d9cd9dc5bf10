package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"messaging-service/internal/config"
	"messaging-service/internal/db"
	"messaging-service/internal/fanout"
	"messaging-service/internal/handlers"
	"messaging-service/internal/mailer"
	"messaging-service/internal/middleware"
	"messaging-service/internal/observability"
	"messaging-service/internal/rabbitmq"
	"messaging-service/internal/repositories"
	"messaging-service/internal/storage"
	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

const serviceName = "messaging-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	shutdownTracer, err := observability.InitTracer(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("failed to init tracer: %v", err)
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	log.Printf("telemetry publisher mode=%s", rabbitmq.PublisherMode(publisher))

	collector := telemetry.NewCollector(publisher, "telemetry.errors", serviceName, cfg.Environment, cfg.TelemetryFlushInterval)

	conversationRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	profileRepo := repositories.NewProfileRepo(database)
	preferenceRepo := repositories.NewPreferenceRepo(database)

	var attachmentStore *storage.AttachmentStore
	if cfg.MongoURI != "" {
		attachmentStore, err = storage.NewAttachmentStore(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.AttachmentBaseURL)
		if err != nil {
			log.Fatalf("failed to open attachment store: %v", err)
		}
	} else {
		log.Printf("attachment store disabled: MONGO_URI not set")
	}

	bus := fanout.NewBus()
	adapter := fanout.NewAdapter(bus, messageRepo, profileRepo, conversationRepo)

	registry := mailer.NewRegistry()
	provider := mailer.NewProvider(cfg.EmailProvider)
	mailerService := mailer.NewService(registry, provider, profileRepo, preferenceRepo, []byte(cfg.JWTSecret), cfg.EmailLinkBase)

	hub := ws.NewHub(collector)

	conversationHandler := handlers.NewConversationHandler(conversationRepo, profileRepo, bus, collector)
	messageHandler := handlers.NewMessageHandler(conversationRepo, messageRepo, profileRepo, bus, mailerService, collector)
	preferenceHandler := handlers.NewPreferenceHandler(preferenceRepo, []byte(cfg.JWTSecret))
	emailHandler := handlers.NewEmailHandler(mailerService)

	conversationWS := ws.NewConversationWebSocketHandler(hub, conversationRepo, adapter, []byte(cfg.JWTSecret))

	if cfg.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(func(c *gin.Context) {
		collector.Breadcrumb("http", c.Request.Method+" "+c.Request.URL.Path)
		c.Next()
	})

	authMiddleware := middleware.AuthMiddleware([]byte(cfg.JWTSecret))

	router.GET("/conversations", authMiddleware, conversationHandler.ListConversations)
	router.POST("/conversations", authMiddleware, conversationHandler.CreateGroupConversation)
	router.POST("/conversations/direct", authMiddleware, conversationHandler.StartDirectConversation)
	router.PATCH("/conversations/:conversation_id", authMiddleware, conversationHandler.UpdateFlags)

	router.GET("/conversations/:conversation_id/messages", authMiddleware, messageHandler.GetMessages)
	router.POST("/conversations/:conversation_id/messages", authMiddleware, messageHandler.PostMessage)
	router.PATCH("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.EditMessage)
	router.DELETE("/conversations/:conversation_id/messages/:message_id", authMiddleware, messageHandler.DeleteMessage)
	router.POST("/conversations/:conversation_id/messages/:message_id/read", authMiddleware, messageHandler.MarkRead)
	router.GET("/messages/search", authMiddleware, messageHandler.Search)

	router.GET("/preferences/email", authMiddleware, preferenceHandler.GetPreferences)
	router.PUT("/preferences/email", authMiddleware, preferenceHandler.PutPreferences)
	router.GET("/unsubscribe", preferenceHandler.Unsubscribe)

	router.POST("/emails", authMiddleware, emailHandler.SendEmail)

	if attachmentStore != nil {
		attachmentHandler := handlers.NewAttachmentHandler(attachmentStore, conversationRepo)
		router.POST("/conversations/:conversation_id/attachments", authMiddleware, attachmentHandler.Upload)
		router.GET("/attachments/:id", authMiddleware, attachmentHandler.Download)
	}

	router.GET("/ws/conversations/:conversation_id", conversationWS.HandleConversation)
	router.GET("/ws/conversations", conversationWS.HandleConversationList)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterDebugRoutes(router, collector, cfg.DebugRoutes)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("listening on :%s environment=%s", cfg.Port, cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown: %v", err)
	}

	adapter.UnsubscribeAll()
	collector.Close()
	if err := publisher.Close(); err != nil {
		log.Printf("publisher close: %v", err)
	}
	if attachmentStore != nil {
		if err := attachmentStore.Close(shutdownCtx); err != nil {
			log.Printf("attachment store close: %v", err)
		}
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		log.Printf("tracer shutdown: %v", err)
	}
}
