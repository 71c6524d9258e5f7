// Package config loads the environment configuration recognized by the
// server (spec.md §6), layering typed defaults under whatever the process
// environment overrides.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the fully resolved server configuration.
type Config struct {
	HTTPBind string
	DataDir  string

	PDFMaxPages   int
	PDFMaxBytes   int64
	PDFMaxTimeMs  int64

	FusionCacheTTL time.Duration
	FusionCacheMax int

	STMCleanInterval       time.Duration
	STMMaxItems            int
	LTMDecayPerClean       float64
	LTMStrengthenOnAccess  float64
	STMStrengthenDelta     float64
	ConsolidateImportanceMin float64
	ConsolidateAccessMin     int

	StatusP95MsThreshold int64
	StatusRSSMBThreshold int64

	MaxConcurrentIngest int64

	BackupDir string
	ExportDir string

	EffectHalfLifeMs int64

	EmbedDim int

	// OllamaHost, when set, selects embed.NewOllama over the zero-vector
	// placeholder. Empty by default so the system always boots without a
	// local Ollama daemon running.
	OllamaHost  string
	OllamaModel string
}

// Load reads Config from the environment, applying the defaults from
// spec.md §6.
func Load() Config {
	c := Config{
		HTTPBind:                 getEnv("HTTP_BIND", "127.0.0.1:8080"),
		DataDir:                  getEnv("DATA_DIR", "./data"),
		PDFMaxPages:              int(getEnvInt("PDF_MAX_PAGES", 0)),
		PDFMaxBytes:              getEnvInt("PDF_MAX_BYTES", 0),
		PDFMaxTimeMs:             getEnvInt("PDF_MAX_TIME_MS", 0),
		FusionCacheTTL:           time.Duration(getEnvInt("FUSION_CACHE_TTL_MS", 3000)) * time.Millisecond,
		FusionCacheMax:           int(getEnvInt("FUSION_CACHE_MAX", 1000)),
		STMCleanInterval:         time.Duration(getEnvInt("STM_CLEAN_INTERVAL_MS", 60000)) * time.Millisecond,
		STMMaxItems:              int(getEnvInt("STM_MAX_ITEMS", 0)),
		LTMDecayPerClean:         getEnvFloat("LTM_DECAY_PER_CLEAN", 0.99),
		LTMStrengthenOnAccess:    getEnvFloat("LTM_STRENGTHEN_ON_ACCESS", 1.05),
		STMStrengthenDelta:       getEnvFloat("STM_STRENGTHEN_DELTA", 0.05),
		ConsolidateImportanceMin: getEnvFloat("CONSOLIDATE_IMPORTANCE_MIN", 1.5),
		ConsolidateAccessMin:     int(getEnvInt("CONSOLIDATE_ACCESS_MIN", 3)),
		StatusP95MsThreshold:     getEnvInt("STATUS_P95_MS_THRESHOLD", 0),
		StatusRSSMBThreshold:     getEnvInt("STATUS_RSS_MB_THRESHOLD", 0),
		MaxConcurrentIngest:      getEnvInt("MAX_CONCURRENT_INGEST", 4),
		BackupDir:                getEnv("BACKUP_DIR", ""),
		ExportDir:                getEnv("EXPORT_DIR", ""),
		EffectHalfLifeMs:         getEnvInt("EFFECT_HALF_LIFE_MS", 0),
		EmbedDim:                 384,
		OllamaHost:               getEnv("OLLAMA_HOST", ""),
		OllamaModel:              getEnv("OLLAMA_MODEL", "nomic-embed-text"),
	}
	if c.BackupDir == "" {
		c.BackupDir = c.DataDir + "/backups"
	}
	if c.ExportDir == "" {
		c.ExportDir = c.DataDir + "/export"
	}
	return c
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
