package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fulfillment/internal/messaging/kafka"
)

// Утилита переигрывает сообщения из DLQ обратно в рабочие топики.
// По умолчанию работает в режиме dry-run и только перечисляет кандидатов;
// реальная публикация включается флагом -execute.

const (
	defaultScanLimit   = 100
	defaultIdleTimeout = 2 * time.Second
)

// options — параметры запуска, собранные из флагов и окружения.
type options struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	opts, err := parseFlags()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), opts); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func parseFlags() (options, error) {
	var (
		brokersRaw string
		opts       options
	)

	flag.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	flag.StringVar(&opts.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ source topic")
	flag.StringVar(&opts.targetTopic, "target-topic", kafka.TopicOrderEvents, "target topic for replay")
	flag.IntVar(&opts.limit, "limit", defaultScanLimit, "max number of messages to scan/replay")
	flag.BoolVar(&opts.execute, "execute", false, "execute replay; default is dry-run")
	flag.BoolVar(&opts.fromNewest, "from-newest", false, "scan latest messages first (bounded by limit)")
	flag.DurationVar(&opts.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	flag.Parse()

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("KAFKA_BROKERS")
	}
	opts.brokers = splitBrokers(brokersRaw)

	switch {
	case len(opts.brokers) == 0:
		return options{}, fmt.Errorf("kafka brokers are required (-brokers or KAFKA_BROKERS)")
	case strings.TrimSpace(opts.sourceTopic) == "":
		return options{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(opts.targetTopic) == "":
		return options{}, fmt.Errorf("target-topic is required")
	case opts.limit <= 0:
		return options{}, fmt.Errorf("limit must be > 0")
	case opts.idleTimeout <= 0:
		return options{}, fmt.Errorf("idle-timeout must be > 0")
	}

	return opts, nil
}

func splitBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

// Интерфейсы сужены до используемых методов sarama, чтобы подменять
// клиента, консьюмера и продюсера стабами в тестах.

type offsetReader interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionStream interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type streamSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error)
	Close() error
}

type replaySender interface {
	SendMessage(msg *sarama.ProducerMessage) (partition int32, offset int64, err error)
	Close() error
}

type consumerAdapter struct {
	inner sarama.Consumer
}

func (a consumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionStream, error) {
	stream, err := a.inner.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

func (a consumerAdapter) Close() error {
	if a.inner == nil {
		return nil
	}
	return a.inner.Close()
}

// buildKafka вынесен в переменную, чтобы тесты подставляли стабы
// вместо реального подключения к брокерам.
var buildKafka = func(opts options) (offsetReader, streamSource, replaySender, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(opts.brokers, consumerConfig)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("create kafka client: %w", err)
	}

	rawConsumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	source := consumerAdapter{inner: rawConsumer}

	// В dry-run продюсер не нужен: ничего публиковать не будем.
	if !opts.execute {
		return client, source, nil, nil
	}

	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Retry.Max = 5
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Compression = sarama.CompressionSnappy
	producerConfig.Producer.Idempotent = true
	producerConfig.Net.MaxOpenRequests = 1

	producer, err := sarama.NewSyncProducer(opts.brokers, producerConfig)
	if err != nil {
		_ = source.Close()
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return client, source, producer, nil
}

func run(ctx context.Context, opts options) error {
	log.WithFields(log.Fields{
		"source_topic": opts.sourceTopic,
		"target_topic": opts.targetTopic,
		"limit":        opts.limit,
		"execute":      opts.execute,
		"from_newest":  opts.fromNewest,
	}).Info("starting dlq replay")

	reader, source, sender, err := buildKafka(opts)
	if err != nil {
		return err
	}
	defer func() {
		if sender != nil {
			_ = sender.Close()
		}
		if source != nil {
			_ = source.Close()
		}
		if reader != nil {
			_ = reader.Close()
		}
	}()

	return replay(ctx, opts, reader, source, sender)
}

// drainStats агрегирует результаты прохода по партициям.
type drainStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *drainStats) add(other drainStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func replay(ctx context.Context, opts options, reader offsetReader, source streamSource, sender replaySender) error {
	if reader == nil || source == nil {
		return fmt.Errorf("kafka client and consumer are required")
	}
	if opts.execute && sender == nil {
		return fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := reader.Partitions(opts.sourceTopic)
	if err != nil {
		return fmt.Errorf("get partitions for topic %s: %w", opts.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", opts.sourceTopic).Warn("source topic has no partitions")
		return nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	var total drainStats
	for _, partition := range partitions {
		budget := opts.limit - total.scanned
		if budget <= 0 {
			break
		}

		stats, err := drainPartition(ctx, opts, reader, source, sender, partition, budget)
		if err != nil {
			return err
		}
		total.add(stats)
	}

	mode := "dry-run"
	if opts.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")

	return nil
}

// drainPartition вычитывает партицию от выбранного offset до зафиксированного
// на старте конца, останавливаясь по бюджету сообщений или простою.
func drainPartition(
	ctx context.Context,
	opts options,
	reader offsetReader,
	source streamSource,
	sender replaySender,
	partition int32,
	budget int,
) (drainStats, error) {
	var stats drainStats
	if budget <= 0 {
		return stats, nil
	}

	oldest, err := reader.GetOffset(opts.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := reader.GetOffset(opts.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if opts.fromNewest {
		start = newest - int64(budget)
		if start < oldest {
			start = oldest
		}
	}

	stream, err := source.ConsumePartition(opts.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = stream.Close() }()

	// Конец фиксируем на момент старта: дописанное позже не трогаем.
	end := newest
	idle := time.NewTimer(opts.idleTimeout)
	defer idle.Stop()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()

		case err := <-stream.Errors():
			if err != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, err)
			}

		case msg, ok := <-stream.Messages():
			if !ok || msg == nil {
				return stats, nil
			}

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(opts.idleTimeout)

			if msg.Offset >= end {
				return stats, nil
			}

			cand, ok, err := decodeDeadLetter(msg, opts.targetTopic)
			if err != nil {
				stats.scanned++
				stats.skipped++
				log.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
				continue
			}
			if !ok {
				stats.scanned++
				stats.skipped++
				continue
			}

			if opts.execute {
				if err := sendCandidate(sender, cand); err != nil {
					return stats, fmt.Errorf("publish replay message: %w", err)
				}
			} else {
				log.WithFields(log.Fields{
					"partition":    msg.Partition,
					"offset":       msg.Offset,
					"target_topic": cand.topic,
					"key":          cand.key,
				}).Info("dlq replay candidate")
			}
			stats.replayed++
			stats.scanned++

			if msg.Offset+1 >= end {
				return stats, nil
			}

		case <-idle.C:
			return stats, nil
		}
	}

	return stats, nil
}

func sendCandidate(sender replaySender, cand candidate) error {
	if sender == nil {
		return fmt.Errorf("producer is nil")
	}

	_, _, err := sender.SendMessage(&sarama.ProducerMessage{
		Topic:     cand.topic,
		Key:       sarama.StringEncoder(cand.key),
		Value:     sarama.ByteEncoder(cand.value),
		Timestamp: time.Now().UTC(),
	})
	return err
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
