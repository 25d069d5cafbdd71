package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"wsb.com/wledger/internals/pow"
)

const (
	DefaultReward        = 100.0
	DefaultBlockInterval = 10 * time.Second
)

// Duration reads Go duration strings such as "10s" from JSON.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

type Transaction struct {
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
	Amount   float64 `json:"amount"`
}

type Config struct {
	MinerAddress  string        `json:"miner_address"`
	Difficulty    uint32        `json:"difficulty"`
	Reward        float64       `json:"reward"`
	LogLevel      string        `json:"log_level"`
	BlockInterval Duration      `json:"block_interval"`
	Blocks        int           `json:"blocks"`
	Transactions  []Transaction `json:"transactions"`
}

func New() *Config {
	return &Config{
		Reward:        DefaultReward,
		LogLevel:      logrus.InfoLevel.String(),
		BlockInterval: Duration{DefaultBlockInterval},
	}
}

func LoadConfiguration(file string) (Config, error) {
	config := *New()
	configFile, err := os.Open(file)
	if err != nil {
		return config, err
	}
	defer configFile.Close()

	jsonParser := json.NewDecoder(configFile)
	jsonParser.DisallowUnknownFields()
	if err := jsonParser.Decode(&config); err != nil {
		logrus.WithField("file", file).Error("Error parsing configfile")
		return config, fmt.Errorf("parse %s: %w", file, err)
	}
	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.MinerAddress == "" {
		return errors.New("miner_address is required")
	}
	if err := pow.CheckDifficulty(c.Difficulty); err != nil {
		return err
	}
	if c.BlockInterval.Duration <= 0 {
		return fmt.Errorf("block_interval must be positive, got %s", c.BlockInterval)
	}
	if c.Blocks < 0 {
		return fmt.Errorf("blocks must not be negative, got %d", c.Blocks)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Logger builds a logrus logger at the configured level.
func (c *Config) Logger() *logrus.Logger {
	l := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	return l
}
