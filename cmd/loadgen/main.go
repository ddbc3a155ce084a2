// loadgen sends map clicks around a center point to a running gateway, either
// as POST /click requests or as messages on the Kafka click topic. Click
// points are the centers of the H3 cells surrounding the center.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/mohammed-shakir/watershed-gateway/internal/clicksource"
	"github.com/mohammed-shakir/watershed-gateway/internal/core/model"
	h3mapper "github.com/mohammed-shakir/watershed-gateway/internal/mapper/h3"
)

type options struct {
	target   string
	mode     string
	brokers  string
	topic    string
	centerX  float64
	centerY  float64
	res      int
	rings    int
	interval time.Duration
	count    int
}

func getenv(key, def string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return def
}

func loadOptions() options {
	var o options
	flag.StringVar(&o.target, "target", getenv("GATEWAY_URL", "http://localhost:8090"), "gateway base URL (http mode)")
	flag.StringVar(&o.mode, "mode", getenv("LOADGEN_MODE", "http"), "http or kafka")
	flag.StringVar(&o.brokers, "brokers", getenv("KAFKA_BROKERS", "localhost:9092"), "kafka brokers (kafka mode)")
	flag.StringVar(&o.topic, "topic", getenv("KAFKA_CLICK_TOPIC", "watershed-clicks"), "kafka click topic")
	flag.Float64Var(&o.centerX, "x", -116.5403131, "center longitude")
	flag.Float64Var(&o.centerY, "y", 33.8258166, "center latitude")
	flag.IntVar(&o.res, "res", 7, "h3 resolution of the click grid")
	flag.IntVar(&o.rings, "rings", 1, "h3 rings around the center")
	flag.DurationVar(&o.interval, "interval", 2*time.Second, "delay between clicks")
	flag.IntVar(&o.count, "count", 0, "clicks to send, 0 sends one per grid cell")
	flag.Parse()
	return o
}

type clickSender interface {
	Send(ctx context.Context, c clicksource.Click) (string, error)
	Close() error
}

type httpSender struct {
	url    string
	client *http.Client
}

func (s *httpSender) Send(ctx context.Context, c clicksource.Click) (string, error) {
	body, err := json.Marshal(c.Point)
	if err != nil {
		return "", fmt.Errorf("encode click: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", c.ID)
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("post click: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("click status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Dispatch string `json:"dispatch"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return "", fmt.Errorf("decode click response: %w", err)
	}
	return out.Dispatch, nil
}

func (s *httpSender) Close() error { return nil }

type kafkaSender struct {
	topic string
	prod  sarama.SyncProducer
}

func newKafkaSender(brokers []string, topic string) (*kafkaSender, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Version = sarama.V2_5_0_0
	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("producer create: %w", err)
	}
	return &kafkaSender{topic: topic, prod: prod}, nil
}

func (s *kafkaSender) Send(_ context.Context, c clicksource.Click) (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode click: %w", err)
	}
	part, off, err := s.prod.SendMessage(&sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(c.ID),
		Value: sarama.ByteEncoder(b),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return "queued p" + strconv.Itoa(int(part)) + "@" + strconv.FormatInt(off, 10), nil
}

func (s *kafkaSender) Close() error { return s.prod.Close() }

func main() {
	os.Exit(run())
}

func run() int {
	o := loadOptions()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	center := model.Point{X: o.centerX, Y: o.centerY, SpatialReference: model.SpatialReference{WKID: model.WKIDWGS84}}
	pts, err := h3mapper.New().Neighborhood(center, o.res, o.rings)
	if err != nil {
		fmt.Println("click grid:", err)
		return 1
	}

	var sender clickSender
	switch o.mode {
	case "kafka":
		ks, err := newKafkaSender(strings.Split(o.brokers, ","), o.topic)
		if err != nil {
			fmt.Println("kafka:", err)
			return 1
		}
		sender = ks
	default:
		sender = &httpSender{url: strings.TrimRight(o.target, "/") + "/click", client: &http.Client{Timeout: 10 * time.Second}}
	}
	defer func() { _ = sender.Close() }()

	n := o.count
	if n <= 0 {
		n = len(pts)
	}
	fmt.Printf("sending %d clicks over %d grid points (%s mode)\n", n, len(pts), o.mode)

	for i := range n {
		c := clicksource.Click{ID: uuid.NewString(), Point: pts[i%len(pts)]}
		res, err := sender.Send(ctx, c)
		if err != nil {
			fmt.Printf("click %d %s: %v\n", i, c.Point.String(), err)
		} else {
			fmt.Printf("click %d %s: %s\n", i, c.Point.String(), res)
		}
		select {
		case <-ctx.Done():
			return 0
		case <-time.After(o.interval):
		}
	}
	return 0
}
