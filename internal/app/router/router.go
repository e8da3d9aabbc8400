package router

import (
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"

	"github.com/uswegem/miracore/configs"
	"github.com/uswegem/miracore/internal/app/handlers"
	"github.com/uswegem/miracore/internal/app/middleware"
	"github.com/uswegem/miracore/internal/pkg/dispatch"
	"github.com/uswegem/miracore/internal/pkg/emicalc"
	"github.com/uswegem/miracore/internal/pkg/envelope"
	"github.com/uswegem/miracore/internal/pkg/events"
	"github.com/uswegem/miracore/internal/pkg/ledger"
	"github.com/uswegem/miracore/internal/pkg/redis"
	"github.com/uswegem/miracore/internal/pkg/scheduler"
	"github.com/uswegem/miracore/internal/pkg/store"
	"github.com/uswegem/miracore/internal/pkg/utils/worker"
)

func SetupRouter(workerPool *worker.WorkerPool, redisClient *goredis.Client, publisher *events.Publisher) (*gin.Engine, error) {

	r := gin.Default()
	meter := otel.Meter(configs.SERVICE_NAME)
	r.Use(otelgin.Middleware(configs.SERVICE_NAME))
	r.Use(middleware.NewMetricMiddleware(meter))
	r.Use(middleware.AttachRequestDetails())

	codec, err := envelope.NewCodec(configs.FSP_CODE, configs.FSP_NAME, configs.FSP_SIGN_PRIVATE_KEY, configs.ESS_VERIFY_PUBLIC_KEY)
	if err != nil {
		return nil, err
	}

	loanRepo := store.NewLoanApplicationRepository()

	ledgerClient := ledger.NewClient(ledger.Config{
		BaseURL:          configs.LEDGER_BASE_URL,
		Username:         configs.LEDGER_USERNAME,
		Password:         configs.LEDGER_PASSWORD,
		Tenant:           configs.LEDGER_TENANT,
		Role:             "gateway",
		Timeout:          time.Duration(configs.LEDGER_TIMEOUT_SECONDS) * time.Second,
		TokenTTL:         time.Duration(configs.LEDGER_TOKEN_TTL_HOURS) * time.Hour,
		RetryMaxAttempts: configs.LEDGER_RETRY_MAX_ATTEMPTS,
		RetryInitial:     time.Duration(configs.LEDGER_RETRY_INITIAL_MS) * time.Millisecond,
		Breaker:          configs.GetBreakerConfig(),
	})

	followUps := scheduler.New(workerPool, loanRepo)
	callbacks := dispatch.NewESSCallbackSender(codec, configs.ESS_CALLBACK_URL, configs.ESS_SENDER_CODE, time.Duration(configs.CALLBACK_TIMEOUT_SECONDS)*time.Second, loanRepo)
	calculator := emicalc.New(configs.ANNUAL_INTEREST_RATE, configs.PROCESSING_FEE_PERCENT, configs.INSURANCE_PERCENT)
	dedup := redis.NewDedupCache(redisClient, time.Duration(configs.MSGID_DEDUP_TTL_MINUTES)*time.Minute)

	protocolHandlers := dispatch.NewHandlers(codec, loanRepo, ledgerClient, followUps, callbacks, publisher, calculator, dispatch.HandlersConfig{
		FollowUpDelay: time.Duration(configs.CALLBACK_DELAY_SECONDS) * time.Second,
		MaxTenure:     configs.MAX_TENURE_MONTHS,
	})
	dispatcher := dispatch.NewDispatcher(codec, dedup, protocolHandlers)

	messageHandler := handlers.NewMessageHandler(codec, dispatcher)
	adminHandler := handlers.NewAdminHandler(ledgerClient, followUps, dispatcher)

	r.POST("/api/v1/ess/messages", messageHandler.ReceiveMessage)

	r.GET("/api/v1/admin/status", adminHandler.Status)
	r.POST("/api/v1/admin/auth-cache/clear", adminHandler.ClearAuthCache)
	r.POST("/api/v1/admin/breakers/reset", adminHandler.ResetBreakers)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{
			"message": "Health Check"})
	})

	return r, nil
}
