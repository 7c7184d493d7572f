// HTTP API - баллы, чеки, обмены, шаги, анкеты, приглашения
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/glkeru/rewards/internal/api"
	db "github.com/glkeru/rewards/internal/db"
	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	services "github.com/glkeru/rewards/internal/services"
	otel "github.com/glkeru/rewards/observability/otel"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// config
	port := os.Getenv("REWARDS_PORT")
	if port == "" {
		panic("env REWARDS_PORT is not set")
	}
	eco := model.EconomicsFromEnv()

	// database
	var storage interf.TxStorage
	dt, err := db.NewRewardsDB(logger)
	if err != nil {
		panic(err)
	}
	storage = dt
	defer dt.Close()

	// cache
	var redis interf.CacheStorage
	redis, err = db.NewCacheService()
	if err != nil {
		logger.Error(err.Error())
		redis = nil
	}

	// контент (кампании и объявления)
	var content interf.ContentStorage
	content, err = db.NewContentDB()
	if err != nil {
		logger.Error(err.Error())
		content = nil
	}

	// tracing
	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown := otel.InitTracer(context.Background())
		defer shutdown()
	}

	// services
	ledger := services.NewLedgerService(logger, storage, redis)
	receipts := services.NewReceiptService(logger, storage, redis)
	exchanges := services.NewExchangeService(logger, storage, redis, eco)
	fitness := services.NewFitnessService(logger, storage, redis, eco)
	surveys := services.NewSurveyService(logger, storage, redis)
	referrals := services.NewReferralService(logger, storage, redis, eco)
	shopping := services.NewShoppingService(logger, storage)
	admin := services.NewAdminService(logger, storage, redis)
	auth, err := services.NewAuthService(logger, storage, redis, referrals)
	if err != nil {
		panic(err)
	}

	// api handlers
	handler := api.NewHandler(logger, auth, ledger, receipts, exchanges,
		fitness, surveys, referrals, shopping, admin, content)

	root := http.NewServeMux()
	root.Handle("/metrics", promhttp.Handler())
	root.Handle("/", api.MiddlewareLog()(otelhttp.NewHandler(handler, "rewards")))

	srv := &http.Server{
		Handler:      root,
		Addr:         ":" + port,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
	go srv.ListenAndServe()

	// shutdown
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)
	<-interrupt
	timeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(timeout)
	if err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
