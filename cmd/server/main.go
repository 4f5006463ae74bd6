package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"

	"github.com/tanakadamon1/castchat-sub000/internal/application"
	"github.com/tanakadamon1/castchat-sub000/internal/auth"
	"github.com/tanakadamon1/castchat-sub000/internal/category"
	"github.com/tanakadamon1/castchat-sub000/internal/config"
	"github.com/tanakadamon1/castchat-sub000/internal/database"
	"github.com/tanakadamon1/castchat-sub000/internal/events"
	"github.com/tanakadamon1/castchat-sub000/internal/favorite"
	"github.com/tanakadamon1/castchat-sub000/internal/logs"
	"github.com/tanakadamon1/castchat-sub000/internal/message"
	"github.com/tanakadamon1/castchat-sub000/internal/middleware"
	"github.com/tanakadamon1/castchat-sub000/internal/notification"
	"github.com/tanakadamon1/castchat-sub000/internal/payment"
	"github.com/tanakadamon1/castchat-sub000/internal/permission"
	"github.com/tanakadamon1/castchat-sub000/internal/post"
	"github.com/tanakadamon1/castchat-sub000/internal/ratelimit"
	"github.com/tanakadamon1/castchat-sub000/internal/realtime"
	"github.com/tanakadamon1/castchat-sub000/internal/report"
	"github.com/tanakadamon1/castchat-sub000/internal/statistics"
	"github.com/tanakadamon1/castchat-sub000/internal/storage"
	"github.com/tanakadamon1/castchat-sub000/internal/tag"
	"github.com/tanakadamon1/castchat-sub000/internal/unread"
	"github.com/tanakadamon1/castchat-sub000/internal/user"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logs.LogJSON("FATAL", "Invalid configuration", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	logs.SetLevel(cfg.LogLevel)
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := database.Connect(cfg.DBUrl, !cfg.IsProduction()); err != nil {
		logs.LogJSON("FATAL", "Database connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer database.Close()

	if cfg.AutoMigrate {
		if err := database.Migrate(cfg.DBUrl); err != nil {
			logs.LogJSON("FATAL", "Migrations failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}

	err = storage.InitS3(ctx, storage.Options{
		Bucket:    cfg.AWSBucket,
		Region:    cfg.AWSRegion,
		AccessKey: cfg.AWSAccessKey,
		SecretKey: cfg.AWSSecretKey,
		Private:   cfg.S3Private,
	})
	if errors.Is(err, storage.ErrNotConfigured) {
		logs.LogJSON("INFO", "S3 not configured, image uploads disabled", nil)
	} else if err != nil {
		logs.LogJSON("FATAL", "S3 init failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}

	if err := ratelimit.Init(ctx, cfg.RedisAddr, cfg.RedisPassword); err != nil {
		logs.LogJSON("FATAL", "Redis connection failed", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	defer ratelimit.Close()
	application.ApplyLimit = cfg.ApplyRateLimit
	message.SendLimit = cfg.MessageRateLimit

	auth.Init(cfg.Supabase, cfg.SupabaseAnon)
	payment.Configure(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.Domain)

	if cfg.KafkaBrokers != "" {
		events.Default.SetSink(events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic))
		logs.LogJSON("INFO", "Publishing events to Kafka", map[string]interface{}{"topic": cfg.KafkaTopic})
	}
	defer events.Default.Close()

	counts := unread.NewManager(cfg.UnreadTTL, unread.DefaultSize, nil)
	counts.Subscribe(events.Default)
	hub := realtime.NewHub(counts, cfg.Domain)
	defer hub.Close()

	if cfg.ListenChanges {
		go events.NewListener(cfg.DBUrl, events.Default).Run(ctx)
	}

	notification.VAPIDPublicKey = cfg.VAPIDPublicKey
	var email notification.EmailSender
	if cfg.SendGridKey != "" {
		email = notification.NewSendGridSender(cfg.SendGridKey, cfg.MailFrom, cfg.MailFromName)
	}
	var push notification.PushSender
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPrivateKey != "" {
		push = notification.NewWebPushSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubject)
	}

	limiter := middleware.NewRateLimiter(cfg.RequestsPerSec, cfg.RequestBurst)

	jobs := cron.New()
	if _, err := notification.NewWorker(email, push, cfg.Domain).Schedule(jobs, "@every 30s"); err != nil {
		logs.LogJSON("FATAL", "Could not schedule delivery worker", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	_, _ = jobs.AddFunc("@every 5m", func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := post.ExpireOverdue(jobCtx)
		if err != nil {
			logs.LogJSON("ERROR", "Closing overdue posts failed", map[string]interface{}{"error": err.Error()})
		} else if n > 0 {
			logs.LogJSON("INFO", "Closed overdue posts", map[string]interface{}{"count": n})
		}
	})
	_, _ = jobs.AddFunc("@every 10m", func() { limiter.Cleanup(30 * time.Minute) })
	jobs.Start()
	defer jobs.Stop()

	r := newRouter(cfg, limiter, counts, hub)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logs.LogJSON("INFO", "Server listening", map[string]interface{}{"port": cfg.Port, "env": cfg.Env})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logs.LogJSON("ERROR", "Server stopped", map[string]interface{}{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	logs.LogJSON("INFO", "Shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logs.LogJSON("ERROR", "Graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

func newRouter(cfg *config.Config, limiter *middleware.RateLimiter, counts *unread.Manager, hub *realtime.Hub) *gin.Engine {
	metrics := middleware.NewMetrics(prometheus.DefaultRegisterer)

	r := gin.New()
	r.Use(gin.Recovery(), metrics.Handler())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := middleware.AuthMiddleware(cfg.JWTSecret)
	optionalAuth := middleware.OptionalAuthMiddleware(cfg.JWTSecret)
	r.GET("/ws", requireAuth, hub.ServeWS)

	api := r.Group("/api", limiter.Handler())

	api.POST("/signup", auth.Signup)
	api.POST("/login", auth.Login)
	api.POST("/refresh", auth.Refresh)
	api.POST("/payments/webhook", payment.HandleStripeWebhook)

	public := api.Group("", optionalAuth)
	{
		public.GET("/stats", statistics.GetPlatformStats)
		public.GET("/stats/categories", statistics.GetCategoryStats)
		public.GET("/categories", category.ListCategories)
		public.GET("/categories/:slug", category.GetCategory)
		public.GET("/tags", tag.ListPopularTags)
		public.GET("/tags/search", tag.SearchTags)
		public.GET("/posts", post.SearchPosts)
		public.GET("/posts/:id", post.GetPost)
		public.GET("/posts/:id/eligibility", application.GetEligibility)
		public.GET("/posts/:id/favorite", favorite.CheckFavorite)
		public.GET("/users/:username", user.GetUserByUsername)
		public.GET("/users/:username/posts", post.ListUserPosts)
		public.GET("/payments/packages", payment.ListPackages)
	}

	private := api.Group("", requireAuth)
	{
		private.GET("/me", user.GetMe)
		private.PATCH("/me", user.UpdateMe)
		private.GET("/me/stats", statistics.GetMyStats)
		private.GET("/me/unread", counts.Handler)
		private.GET("/me/posts", post.ListMyPosts)
		private.GET("/me/favorites", favorite.ListFavorites)

		private.POST("/posts", post.CreatePost)
		private.PATCH("/posts/:id", post.UpdatePost)
		private.DELETE("/posts/:id", post.DeletePost)
		private.POST("/posts/:id/close", post.ClosePost)
		private.POST("/posts/:id/reopen", post.ReopenPost)
		private.GET("/posts/:id/stats", statistics.GetPostStats)
		private.POST("/posts/:id/images", post.UploadPostImage)
		private.PUT("/posts/:id/images/order", post.ReorderPostImages)
		private.DELETE("/posts/:id/images/:imageId", post.DeletePostImage)
		private.POST("/posts/:id/favorite", favorite.AddFavorite)
		private.DELETE("/posts/:id/favorite", favorite.RemoveFavorite)

		private.POST("/posts/:id/applications", application.ApplyToPost)
		private.GET("/posts/:id/applications", application.ListPostApplications)
		private.GET("/posts/:id/applications/stats", application.GetPostApplicationStats)
		private.GET("/applications", application.ListMyApplications)
		private.GET("/applications/:id", application.GetApplication)
		private.PATCH("/applications/:id/status", application.UpdateApplicationStatus)

		private.GET("/applications/:id/messages", message.ListMessages)
		private.POST("/applications/:id/messages", message.SendMessage)
		private.POST("/applications/:id/messages/read", message.MarkMessagesRead)
		private.GET("/conversations", message.GetConversations)
		private.GET("/messages/unread-count", message.GetUnreadMessageCount)

		private.GET("/notifications", notification.ListNotifications)
		private.GET("/notifications/unread-count", notification.GetUnreadCount)
		private.POST("/notifications/read-all", notification.MarkAllNotificationsRead)
		private.POST("/notifications/:id/read", notification.MarkNotificationRead)
		private.DELETE("/notifications/:id", notification.DeleteNotification)
		private.GET("/notifications/settings", notification.GetNotificationSettings)
		private.PUT("/notifications/settings", notification.UpdateNotificationSettings)
		private.GET("/push/vapid-key", notification.GetVAPIDKey)
		private.POST("/push/subscriptions", notification.RegisterPushSubscription)
		private.DELETE("/push/subscriptions", notification.UnregisterPushSubscription)

		private.POST("/payments/checkout", payment.CreateCheckoutSession)
		private.GET("/payments/balance", payment.GetBalance)
		private.GET("/payments/transactions", payment.ListTransactions)

		private.POST("/reports", report.CreateReport)
	}

	moderation := private.Group("", middleware.RequirePermission(permission.ReportReview))
	{
		moderation.GET("/admin/reports", report.GetReports)
		moderation.GET("/admin/reports/stats", report.GetReportStats)
		moderation.PATCH("/admin/reports/:id", report.ResolveReport)
		moderation.DELETE("/tags/:id", tag.DeleteTag)
	}

	admin := private.Group("/admin", middleware.RequirePermission(permission.StatsViewAdmin))
	{
		admin.GET("/stats", statistics.GetAdminStats)
		admin.GET("/stats/timeline", statistics.GetTimeline)
		admin.GET("/stats/top-hosts", statistics.GetTopHosts)
		admin.POST("/categories", category.CreateCategory)
		admin.PATCH("/categories/:id", category.UpdateCategory)
		admin.GET("/users", user.ListUsers)
		admin.PATCH("/users/:id/role", user.UpdateUserRole)
		admin.POST("/users/:id/ban", user.BanUser)
		admin.DELETE("/users/:id/ban", user.BanUser)
		admin.DELETE("/reports/:id", report.DeleteReport)
	}

	return r
}
