package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/globle-leaderboard/internal/domain"
)

var playerNames = []string{
	"Phoenix", "Shadow", "Thunder", "Storm", "Blaze", "Ninja", "Dragon", "Wolf", "Hawk", "Viper",
	"Ghost", "Titan", "Frost", "Cyber", "Nova", "Raven", "Omega", "Alpha", "Delta", "Sigma",
}

var zones = []string{
	"America/New_York", "America/Los_Angeles", "Europe/London", "Europe/Paris",
	"Asia/Tokyo", "Asia/Shanghai", "Australia/Sydney", "America/Sao_Paulo",
}

var shareTemplates = []string{
	"Globle %d/5 🌎",
	"I solved today's Globle in %d guesses!",
	"globle: %d guesses, not bad",
	"Today's Globle took me %d tries",
}

func userID(idx int) string {
	return fmt.Sprintf("%d", 100000+idx)
}

// chatMessage builds a plausible chat line: mostly score shares, some commands
func chatMessage(idx int, channelID string, r *rand.Rand) domain.Envelope {
	env := domain.Envelope{
		Type:        domain.EventTypeMessage,
		UserID:      userID(idx),
		DisplayName: playerNames[idx%len(playerNames)],
		ChannelID:   channelID,
		MessageID:   uuid.New().String(),
		Timestamp:   time.Now().UTC(),
	}

	switch n := r.Intn(100); {
	case n < 75:
		env.Text = fmt.Sprintf(shareTemplates[r.Intn(len(shareTemplates))], r.Intn(12)+1)
	case n < 85:
		env.Text = "!settz " + zones[r.Intn(len(zones))]
	case n < 92:
		env.Text = "!leaderboard"
	case n < 97:
		env.Text = "!score"
	default:
		env.Text = "anyone else think today's country was hard?"
	}
	return env
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "globle-chat-events", "Kafka topic")
	channelID := flag.String("channel", "globle", "Channel ID put on every message")
	totalPlayers := flag.Int("players", 20, "Number of distinct chat users")
	messagesPerSecond := flag.Int("rate", 5, "Messages per second")
	duration := flag.Duration("duration", 0, "Duration to run (0 = forever)")
	tick := flag.Bool("tick", false, "Send a single tick event and exit")
	flag.Parse()

	if *totalPlayers <= 0 || *messagesPerSecond <= 0 {
		log.Fatal("players and rate must be positive")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🌎 Globle Chat Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:          %s\n", *brokers)
	fmt.Printf("  Topic:            %s\n", *topic)
	fmt.Printf("  Channel:          %s\n", *channelID)
	fmt.Printf("  Users:            %d\n", *totalPlayers)
	fmt.Printf("  Messages/sec:     %d\n", *messagesPerSecond)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	if *tick {
		sendTick(brokerList, *topic, config)
		return
	}

	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	shutdown := func(reason string) {
		fmt.Printf("\n\n%s\n", reason)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	r := rand.New(rand.NewSource(time.Now().UnixNano()))

	ticker := time.NewTicker(time.Second / time.Duration(*messagesPerSecond))
	defer ticker.Stop()

	statsTicker := time.NewTicker(5 * time.Second)
	defer statsTicker.Stop()

	var endTime time.Time
	if *duration > 0 {
		endTime = time.Now().Add(*duration)
	}

	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	var messageCount int64

	for {
		select {
		case <-sigChan:
			shutdown("Shutting down...")
			return

		case <-ticker.C:
			if *duration > 0 && time.Now().After(endTime) {
				shutdown("Duration reached, shutting down...")
				return
			}

			env := chatMessage(r.Intn(*totalPlayers), *channelID, r)
			data, err := json.Marshal(env)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			producer.Input() <- &sarama.ProducerMessage{
				Topic: *topic,
				Key:   sarama.StringEncoder(env.UserID),
				Value: sarama.ByteEncoder(data),
			}
			atomic.AddInt64(&messageCount, 1)

		case <-statsTicker.C:
			fmt.Printf("[%s] Messages: %d | Sent: %d | Errors: %d\n",
				time.Now().Format("15:04:05"),
				atomic.LoadInt64(&messageCount),
				atomic.LoadInt64(&successCount),
				atomic.LoadInt64(&errorCount),
			)
		}
	}
}

// sendTick publishes one tick envelope with a sync producer
func sendTick(brokers []string, topic string, config *sarama.Config) {
	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	data, err := json.Marshal(domain.EnvelopeFor(domain.TickElapsed{Timestamp: time.Now().UTC()}))
	if err != nil {
		log.Fatalf("Failed to marshal tick: %v", err)
	}

	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		log.Fatalf("Failed to send tick: %v", err)
	}
	fmt.Printf("✓ Tick sent (partition %d, offset %d)\n", partition, offset)
}
