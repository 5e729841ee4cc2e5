package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// В DLQ пишут два продюсера с разными форматами:
//   - консьюмер уведомлений кладёт исходное сообщение целиком в поля
//     original_topic/original_key/original_value;
//   - outbox-воркер заворачивает неопубликованное событие в конверт
//     OutboxMessage, где payload содержит исходное событие и ошибку публикации.
// decodeDeadLetter распознаёт оба и собирает сообщение для повторной публикации.

// candidate — сообщение, готовое к публикации в целевой топик.
type candidate struct {
	topic string
	key   string
	value []byte
}

type consumerDeadLetter struct {
	OriginalTopic string `json:"original_topic"`
	OriginalKey   string `json:"original_key"`
	OriginalValue string `json:"original_value"`
}

type outboxRecord struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type outboxDeadLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

type republishedEvent struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

func decodeDeadLetter(msg *sarama.ConsumerMessage, fallbackTopic string) (candidate, bool, error) {
	// Формат консьюмера: исходное сообщение переигрывается как есть.
	var dead consumerDeadLetter
	if err := json.Unmarshal(msg.Value, &dead); err == nil && dead.OriginalValue != "" {
		topic := strings.TrimSpace(dead.OriginalTopic)
		if topic == "" {
			topic = fallbackTopic
		}
		return candidate{
			topic: topic,
			key:   dead.OriginalKey,
			value: []byte(dead.OriginalValue),
		}, true, nil
	}

	// Формат outbox-воркера: достаём исходное событие из вложенного payload.
	var record outboxRecord
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		return candidate{}, false, nil
	}
	if len(record.Payload) == 0 {
		return candidate{}, false, nil
	}

	var inner outboxDeadLetter
	if err := json.Unmarshal(record.Payload, &inner); err != nil {
		return candidate{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(inner.Payload) == 0 {
		return candidate{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	event := republishedEvent{
		ID:            coalesce(inner.OutboxID, record.ID),
		AggregateType: coalesce(inner.AggregateType, record.AggregateType),
		AggregateID:   coalesce(inner.AggregateID, record.AggregateID),
		EventType:     coalesce(inner.EventType, record.EventType),
		Payload:       inner.Payload,
		PublishedAt:   time.Now().UTC(),
	}
	encoded, err := json.Marshal(event)
	if err != nil {
		return candidate{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return candidate{topic: fallbackTopic, key: key, value: encoded}, true, nil
}

func coalesce(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
