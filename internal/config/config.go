package config

import (
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type (
	Config struct {
		Database
		Engine
		Sync
		Catalog
		Tasks
		Scheduler
		Global
	}

	Database struct {
		Path string
	}

	Engine struct {
		BatchSize     int
		BatchTimeout  time.Duration // full-pipeline batch runs
		SingleTimeout time.Duration // single-entity runs
	}

	Sync struct {
		Timeout time.Duration
	}

	Catalog struct {
		BaseURL string
		Token   string
	}

	Tasks struct {
		Enabled         bool
		Workers         int
		ReleaseAfter    time.Duration
		CleanupInterval time.Duration
	}

	Scheduler struct {
		Enabled bool
		// Schedules is a comma-separated list of pipelineID=cronSpec
		// entries, e.g. "3=0 */6 * * *,7=30 2 * * *".
		Schedules string
	}

	Global struct {
		ShutdownTimeoutInSeconds int
	}
)

func NewConfig() *Config {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("database_path", "./attrpipe.db")
	v.SetDefault("shutdown_timeout_in_seconds", 2)

	// Engine defaults
	v.SetDefault("engine_batch_size", 200)
	v.SetDefault("engine_batch_timeout", "1h")
	v.SetDefault("engine_single_timeout", "5m")

	// Sync defaults
	v.SetDefault("sync_timeout", "1h")

	// External catalog defaults
	v.SetDefault("catalog_base_url", "")
	v.SetDefault("catalog_token", "")

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_release_after", "15m")
	v.SetDefault("task_cleanup_interval", "1h")

	// Scheduler defaults
	v.SetDefault("scheduler_enabled", false)
	v.SetDefault("scheduler_schedules", "")

	return &Config{
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Engine: Engine{
			BatchSize:     v.GetInt("ENGINE_BATCH_SIZE"),
			BatchTimeout:  v.GetDuration("ENGINE_BATCH_TIMEOUT"),
			SingleTimeout: v.GetDuration("ENGINE_SINGLE_TIMEOUT"),
		},
		Sync: Sync{
			Timeout: v.GetDuration("SYNC_TIMEOUT"),
		},
		Catalog: Catalog{
			BaseURL: v.GetString("CATALOG_BASE_URL"),
			Token:   v.GetString("CATALOG_TOKEN"),
		},
		Tasks: Tasks{
			Enabled:         v.GetBool("TASKS_ENABLED"),
			Workers:         v.GetInt("TASK_WORKERS"),
			ReleaseAfter:    v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval: v.GetDuration("TASK_CLEANUP_INTERVAL"),
		},
		Scheduler: Scheduler{
			Enabled:   v.GetBool("SCHEDULER_ENABLED"),
			Schedules: v.GetString("SCHEDULER_SCHEDULES"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
	}
}

// ParseSchedules expands the SCHEDULER_SCHEDULES value into pipeline/spec
// pairs. Malformed entries are dropped rather than failing startup.
func (s Scheduler) ParseSchedules() []ScheduleEntry {
	var out []ScheduleEntry
	for _, raw := range strings.Split(s.Schedules, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.SplitN(raw, "=", 2)
		if len(parts) != 2 {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSpace(parts[0]), 10, 32)
		if err != nil || id == 0 {
			continue
		}
		out = append(out, ScheduleEntry{
			PipelineID: uint(id),
			Spec:       strings.TrimSpace(parts[1]),
		})
	}
	return out
}

// ScheduleEntry is one parsed pipeline schedule.
type ScheduleEntry struct {
	PipelineID uint
	Spec       string
}
