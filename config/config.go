package config

import (
	"os"
	"sync"
	"time"

	"datasearch/logutils"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Postgres struct {
		Host     string `yaml:"host"`
		Port     string `yaml:"port"`
		DBName   string `yaml:"dbname"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		SSLMode  string `yaml:"sslmode"`
		TimeZone string `yaml:"TimeZone"`
	} `yaml:"postgres"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Auth struct {
		AccessTokenSecret string `yaml:"accessTokenSecret"`
	} `yaml:"auth"`

	Sources struct {
		HuggingFace struct {
			BaseURL         string `yaml:"baseURL"`
			Token           string `yaml:"token"`
			PageSize        int    `yaml:"pageSize"`
			PageDelayMillis int    `yaml:"pageDelayMillis"`
		} `yaml:"huggingface"`
		Kaggle struct {
			BaseURL        string `yaml:"baseURL"`
			Username       string `yaml:"username"`
			Key            string `yaml:"key"`
			CacheDir       string `yaml:"cacheDir"`
			SnapshotURL    string `yaml:"snapshotURL"`
			ThrottleMillis int    `yaml:"throttleMillis"`
		} `yaml:"kaggle"`
	} `yaml:"sources"`

	Enrichment struct {
		MaxAttempts         int  `yaml:"maxAttempts"`
		SeedBatchSize       int  `yaml:"seedBatchSize"`
		HydrateBatchSize    int  `yaml:"hydrateBatchSize"`
		HydrateWorkers      int  `yaml:"hydrateWorkers"`
		EmbedBatchSize      int  `yaml:"embedBatchSize"`
		StaleAfterMinutes   int  `yaml:"staleAfterMinutes"`
		LoopIntervalMinutes int  `yaml:"loopIntervalMinutes"`
		LoopEnabled         bool `yaml:"loopEnabled"`
	} `yaml:"enrichment"`

	Embedding struct {
		BaseURL   string `yaml:"baseURL"`
		Model     string `yaml:"model"`
		Dimension int    `yaml:"dimension"`
		BatchSize int    `yaml:"batchSize"`
	} `yaml:"embedding"`
}

var (
	once   sync.Once
	config *Config
)

func GetConfig() *Config {
	once.Do(func() {
		config = initConfig()
	})
	return config
}

// initConfig reads the configuration file and fills defaults for optional
// fields. The path can be overridden with DATASEARCH_CONFIG.
func initConfig() *Config {
	config := &Config{}
	configPath := "./etc/config.yaml"
	if p := os.Getenv("DATASEARCH_CONFIG"); p != "" {
		configPath = p
	}

	err := readConfig(configPath, config)
	if err != nil {
		logutils.Log.Error("init config", err)
		panic(err)
	}
	applyDefaults(config)
	return config
}

func readConfig(filePath string, config *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	err = yaml.Unmarshal(data, config)
	if err != nil {
		return err
	}
	return nil
}

func applyDefaults(c *Config) {
	if c.Server.Addr == "" {
		c.Server.Addr = ":7340"
	}
	if c.Sources.HuggingFace.BaseURL == "" {
		c.Sources.HuggingFace.BaseURL = "https://huggingface.co/api/datasets"
	}
	if c.Sources.HuggingFace.PageSize == 0 {
		c.Sources.HuggingFace.PageSize = 1000
	}
	if c.Sources.HuggingFace.PageDelayMillis == 0 {
		c.Sources.HuggingFace.PageDelayMillis = 300
	}
	if c.Sources.Kaggle.BaseURL == "" {
		c.Sources.Kaggle.BaseURL = "https://www.kaggle.com/api/v1"
	}
	if c.Sources.Kaggle.CacheDir == "" {
		c.Sources.Kaggle.CacheDir = "./data/meta_kaggle"
	}
	if c.Sources.Kaggle.ThrottleMillis == 0 {
		c.Sources.Kaggle.ThrottleMillis = 1000
	}
	if c.Enrichment.MaxAttempts == 0 {
		c.Enrichment.MaxAttempts = 3
	}
	if c.Enrichment.SeedBatchSize == 0 {
		c.Enrichment.SeedBatchSize = 1000
	}
	if c.Enrichment.HydrateBatchSize == 0 {
		c.Enrichment.HydrateBatchSize = 100
	}
	if c.Enrichment.HydrateWorkers == 0 {
		c.Enrichment.HydrateWorkers = 4
	}
	if c.Enrichment.EmbedBatchSize == 0 {
		c.Enrichment.EmbedBatchSize = 100
	}
	if c.Enrichment.StaleAfterMinutes == 0 {
		c.Enrichment.StaleAfterMinutes = 60
	}
	if c.Enrichment.LoopIntervalMinutes == 0 {
		c.Enrichment.LoopIntervalMinutes = 30
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "all-MiniLM-L6-v2"
	}
	if c.Embedding.Dimension == 0 {
		c.Embedding.Dimension = 384
	}
	if c.Embedding.BatchSize == 0 {
		c.Embedding.BatchSize = 32
	}
}

// Convenience accessors for duration-typed knobs.

func (c *Config) HFPageDelay() time.Duration {
	return time.Duration(c.Sources.HuggingFace.PageDelayMillis) * time.Millisecond
}

func (c *Config) KaggleThrottle() time.Duration {
	return time.Duration(c.Sources.Kaggle.ThrottleMillis) * time.Millisecond
}

func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Enrichment.StaleAfterMinutes) * time.Minute
}

func (c *Config) LoopInterval() time.Duration {
	return time.Duration(c.Enrichment.LoopIntervalMinutes) * time.Minute
}
