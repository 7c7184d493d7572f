package rewards

import (
	"context"
	"fmt"
	"os"

	"github.com/segmentio/kafka-go"
)

type KafkaPurchases struct {
	reader *kafka.Reader
}

func GetNewReader(topic string) (reader *KafkaPurchases, err error) {
	// config
	kafkaurl := os.Getenv("REWARDS_KAFKA_URL")
	if kafkaurl == "" {
		return nil, fmt.Errorf("env REWARDS_KAFKA_URL is not set")
	}
	kafkaport := os.Getenv("REWARDS_KAFKA_PORT")
	if kafkaport == "" {
		return nil, fmt.Errorf("env REWARDS_KAFKA_PORT is not set")
	}

	kafkaconfig := kafka.ReaderConfig{
		Brokers: []string{kafkaurl + ":" + kafkaport},
		Topic:   topic,
		GroupID: "purchases_rewards",
	}
	return &KafkaPurchases{kafka.NewReader(kafkaconfig)}, nil
}

func (k *KafkaPurchases) GetNewMessage(ctx context.Context) (purchaseJson string, err error) {
	msg, err := k.reader.ReadMessage(ctx)
	if err != nil {
		return "", err
	}
	return string(msg.Value), nil
}

func (k *KafkaPurchases) CloseReader() {
	k.reader.Close()
}
