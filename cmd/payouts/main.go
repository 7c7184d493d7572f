// Job - обработка расчетов по заявкам на обмен
// Очередь RabbitMQ -> смена статуса заявки, подтверждение в очередь confirms
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	db "github.com/glkeru/rewards/internal/db"
	rabbit "github.com/glkeru/rewards/internal/external/rabbitmq"
	interf "github.com/glkeru/rewards/internal/interfaces"
	model "github.com/glkeru/rewards/internal/models"
	services "github.com/glkeru/rewards/internal/services"
	"go.uber.org/zap"
)

func main() {
	// log
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// rabbitmq
	reader, err := rabbit.NewRabbitConsumer()
	if err != nil {
		logger.Error(err.Error())
		panic(err)
	}
	defer reader.Close()

	// database
	var storage interf.TxStorage
	dt, err := db.NewRewardsDB(logger)
	if err != nil {
		logger.Error(err.Error())
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

	// services
	serv := services.NewExchangeService(logger, storage, redis, model.EconomicsFromEnv())

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var semcount int
	semenv := os.Getenv("REWARDS_PAYOUTS_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}

	// os signals
	go func() {
		<-interrupt
		cancel()
	}()

	// workers
	wg := &sync.WaitGroup{}
	wg.Add(semcount)
	for i := 0; i < semcount; i++ {
		go worker(ctx, serv, wg, logger, reader)
	}
	wg.Wait()
}

// worker for rabbitmq messages
func worker(ctx context.Context, serv *services.ExchangeService, wg *sync.WaitGroup, logger *zap.Logger, reader *rabbit.RabbitConsumer) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg, ok := <-reader.Msg
			if !ok {
				return
			}
			exchangeID, status, err := serv.ProcessSettlement(ctx, msg.Body)
			if err != nil {
				logger.Error(err.Error())
				if exchangeID != 0 {
					_ = reader.Processed(ctx, exchangeID, string(status), false)
				}
				continue
			}
			err = reader.Processed(ctx, exchangeID, string(status), true)
			if err != nil {
				logger.Error(err.Error())
				continue
			}

		}
	}
}
