package clicksource

import "time"

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds the set of recently seen click ids
	DedupeSize int
}

func DefaultConfig(brokers []string, topic, group string) Config {
	if topic == "" {
		topic = "watershed-clicks"
	}
	if group == "" {
		group = "watershed-gateway"
	}
	return Config{
		Brokers:          brokers,
		Topic:            topic,
		GroupID:          group,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		DedupeSize:       4096,
	}
}
