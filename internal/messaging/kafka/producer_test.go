package kafka

import (
	"encoding/json"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
)

func TestProducer_PublishEvent(t *testing.T) {
	// Создаем mock producer
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидания
	mockProducer.ExpectSendMessageAndSucceed()

	event := map[string]interface{}{
		"event_type": string(EventTypeItemAdded),
		"identity":   "customer-1",
		"item_id":    "item-1",
		"product_id": "product-1",
		"quantity":   2,
	}

	// Публикуем событие
	err := producer.PublishEvent(TopicCartEvents, "customer-1", event)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Проверяем, что все ожидания выполнены
	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	// Создаем mock producer с ошибкой
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	// Настраиваем ожидание ошибки
	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := map[string]interface{}{
		"event_type": string(EventTypeCartCleared),
		"identity":   "customer-1",
	}

	// Публикуем событие
	err := producer.PublishEvent(TopicCartEvents, "customer-1", event)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_SerializesPayload(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var decoded map[string]interface{}
		if err := json.Unmarshal(value, &decoded); err != nil {
			return err
		}
		if decoded["event_type"] != string(EventTypeQuantityChanged) {
			t.Errorf("unexpected event_type: %v", decoded["event_type"])
		}
		if decoded["identity"] != "customer-1" {
			t.Errorf("unexpected identity: %v", decoded["identity"])
		}
		return nil
	})

	event := map[string]interface{}{
		"event_type": string(EventTypeQuantityChanged),
		"identity":   "customer-1",
		"item_id":    "item-1",
		"quantity":   5,
	}
	if err := producer.PublishEvent(TopicCartEvents, "customer-1", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishToDLQ(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)

	producer := &Producer{
		producer: mockProducer,
		logger:   log.WithField("component", "kafka-producer-test"),
	}

	mockProducer.ExpectSendMessageAndSucceed()

	err := producer.PublishToDLQ(TopicCartEvents, "customer-1", []byte(`{"event_type":"cart.item_added"}`), 3, sarama.ErrOutOfBrokers)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}
