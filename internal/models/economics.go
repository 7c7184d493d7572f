package rewards

import (
	"os"
	"strconv"
)

// Направление обмена баллов
type ExchangeOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MinAmount   int64  `json:"min_amount"`
	Description string `json:"description,omitempty"`
}

// Экономика начислений. Передается в сервисы при создании,
// чтобы тесты могли подменять значения без глобального состояния.
type Economics struct {
	StepsPerBottle  int64
	PointsPerBottle int64
	ReferrerPoints  int64
	ReferredPoints  int64
	ExchangeMinimum int64
	ExchangeOptions []ExchangeOption
}

func DefaultEconomics() Economics {
	return Economics{
		StepsPerBottle:  10000,
		PointsPerBottle: 10,
		ReferrerPoints:  100,
		ReferredPoints:  50,
		ExchangeMinimum: 300,
		ExchangeOptions: []ExchangeOption{
			{ID: "paypay", Name: "PayPay", MinAmount: 300, Description: "Charge to PayPay balance"},
			{ID: "rakuten", Name: "Rakuten Points", MinAmount: 300, Description: "Exchange to Rakuten points"},
			{ID: "amazon", Name: "Amazon Gift Card", MinAmount: 500, Description: "Exchange to Amazon gift card"},
		},
	}
}

// Чтение экономики из окружения, значения по умолчанию при отсутствии
func EconomicsFromEnv() Economics {
	eco := DefaultEconomics()
	eco.StepsPerBottle = envInt64("REWARDS_STEPS_PER_BOTTLE", eco.StepsPerBottle)
	eco.PointsPerBottle = envInt64("REWARDS_POINTS_PER_BOTTLE", eco.PointsPerBottle)
	eco.ReferrerPoints = envInt64("REWARDS_REFERRER_POINTS", eco.ReferrerPoints)
	eco.ReferredPoints = envInt64("REWARDS_REFERRED_POINTS", eco.ReferredPoints)
	eco.ExchangeMinimum = envInt64("REWARDS_EXCHANGE_MINIMUM", eco.ExchangeMinimum)
	return eco
}

// Минимальная сумма обмена для направления.
// Направление ищем по ID или имени, неизвестное - общий минимум.
func (e Economics) MinForDestination(destination string) int64 {
	for _, opt := range e.ExchangeOptions {
		if opt.ID == destination || opt.Name == destination {
			return opt.MinAmount
		}
	}
	return e.ExchangeMinimum
}

func envInt64(name string, def int64) int64 {
	env := os.Getenv(name)
	if env == "" {
		return def
	}
	val, err := strconv.ParseInt(env, 10, 64)
	if err != nil {
		return def
	}
	return val
}
