package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the opsched server.
type ServerConfig struct {
	Addr      string `yaml:"addr"`       // Listen address (default ":8080")
	LogLevel  string `yaml:"log_level"`  // Log level: debug, info, warn, error
	LogFormat string `yaml:"log_format"` // Log format: text, json
	DBPath    string `yaml:"db_path"`    // SQLite catalog path (default ~/.opsched/opsched.db, ":memory:" for testing)
	// Source is a descriptor CSV path or s3://bucket/key, imported when the
	// catalog is empty.
	Source    string          `yaml:"source"`
	Machines  MachinesConfig  `yaml:"machines"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Events    EventsConfig    `yaml:"events"`
}

// MachinesConfig describes the machine pool. An explicit IDs list wins over
// Prefix+Count.
type MachinesConfig struct {
	Prefix string   `yaml:"prefix"`
	Count  int      `yaml:"count"`
	IDs    []string `yaml:"ids"`
}

// SchedulerConfig tunes the periodic pass and the planner.
type SchedulerConfig struct {
	PollInterval     time.Duration `yaml:"poll_interval"`
	StrictPrecedence bool          `yaml:"strict_precedence"`
	Lookahead        int           `yaml:"lookahead"`
}

// EventsConfig configures event sinks beyond the log and the journal.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka publisher when Brokers is non-empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:      ":8080",
		LogLevel:  "info",
		LogFormat: "text",
		Machines:  MachinesConfig{Prefix: "M", Count: 45},
		Scheduler: SchedulerConfig{
			PollInterval: 5 * time.Second,
			Lookahead:    2,
		},
		Events: EventsConfig{Kafka: KafkaConfig{Topic: "opsched.events"}},
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *ServerConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg.Validate()
}

// Validate rejects configurations the server cannot start with.
func (c *ServerConfig) Validate() error {
	if len(c.MachineIDs()) == 0 {
		return fmt.Errorf("machine pool is empty")
	}
	if c.Scheduler.PollInterval < 0 {
		return fmt.Errorf("scheduler.poll_interval must not be negative")
	}
	if len(c.Events.Kafka.Brokers) > 0 && c.Events.Kafka.Topic == "" {
		return fmt.Errorf("events.kafka.topic is required when brokers are set")
	}
	return nil
}

// MachineIDs returns the machine pool in its configured order.
func (c *ServerConfig) MachineIDs() []string {
	if len(c.Machines.IDs) > 0 {
		return append([]string(nil), c.Machines.IDs...)
	}
	ids := make([]string, 0, c.Machines.Count)
	for i := 1; i <= c.Machines.Count; i++ {
		ids = append(ids, c.Machines.Prefix+strconv.Itoa(i))
	}
	return ids
}
