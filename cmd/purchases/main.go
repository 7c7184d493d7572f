// Job - обработка событий покупок в партнерских магазинах
// Опрос Kafka -> запись трекинга покупки
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	db "github.com/glkeru/rewards/internal/db"
	kafka "github.com/glkeru/rewards/internal/external/kafka"
	interf "github.com/glkeru/rewards/internal/interfaces"
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

	// kafka
	reader, err := kafka.GetNewReader("purchases")
	if err != nil {
		panic(err)
	}
	defer reader.CloseReader()

	// database
	var storage interf.TxStorage
	dt, err := db.NewRewardsDB(logger)
	if err != nil {
		panic(err)
	}
	storage = dt
	defer dt.Close()

	// services
	serv := services.NewShoppingService(logger, storage)

	// start
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var semcount int
	semenv := os.Getenv("REWARDS_PURCHASES_COUNT")
	if semenv == "" {
		semcount = 5
	} else {
		semcount, err = strconv.Atoi(semenv)
		if err != nil {
			semcount = 5
		}
	}
	if semcount == 0 {
		semcount = 1
	}

	wg := &sync.WaitGroup{}
	semaphore := make(chan struct{}, semcount)

loop:
	for {
		select {
		case <-interrupt:
			cancel()
			break loop
		case <-ctx.Done():
			break loop
		default:

			purchase, err := reader.GetNewMessage(ctx)
			if err != nil {
				logger.Error(err.Error())
				break loop
			}

			semaphore <- struct{}{}
			wg.Add(1)
			go func(purchase string) {
				defer wg.Done()
				defer func() { <-semaphore }()
				_, err := serv.ProcessEvent(ctx, []byte(purchase))
				if err != nil {
					logger.Error(err.Error())
					return
				}
			}(purchase)
		}
	}
	wg.Wait()
}
