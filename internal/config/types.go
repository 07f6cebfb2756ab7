package config

import (
	"fmt"

	"timeplan/internal/capacity"
)

// Config is the daemon's root configuration. JSON or YAML on disk; YAML is
// coerced to JSON so both formats share the strict decoder.
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Planner PlannerConfig `json:"planner"`
	Sweep   SweepConfig   `json:"sweep"`
	Notify  NotifyConfig  `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig selects the persistence driver.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./timeplan.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// PlannerConfig carries the day-capacity policy applied to every plan.
// Hours are 0-23 local clock hours, caps are minutes.
//
// Defaults (when the section is omitted/zero): workday 9-17, lunch 12-13,
// weekends off, weekday cap 420, snap 15.
type PlannerConfig struct {
	WorkdayStartHour int `json:"workday_start_hour,omitempty"`
	WorkdayEndHour   int `json:"workday_end_hour,omitempty"`
	LunchStartHour   int `json:"lunch_start_hour,omitempty"`
	LunchEndHour     int `json:"lunch_end_hour,omitempty"`

	AllowWeekends    bool `json:"allow_weekends,omitempty"`
	WeekendStartHour int  `json:"weekend_start_hour,omitempty"`
	WeekendEndHour   int  `json:"weekend_end_hour,omitempty"`

	WeekdayMaxMinutes int `json:"weekday_max_minutes,omitempty"`
	WeekendMaxMinutes int `json:"weekend_max_minutes,omitempty"`

	// SnapMinutes is the grid auto-generated blocks snap to (15/30/60).
	SnapMinutes int `json:"snap_minutes,omitempty"`
}

func (p PlannerConfig) withDefaults() PlannerConfig {
	if p.WorkdayStartHour == 0 && p.WorkdayEndHour == 0 {
		p.WorkdayStartHour, p.WorkdayEndHour = 9, 17
	}
	if p.LunchStartHour == 0 && p.LunchEndHour == 0 {
		p.LunchStartHour, p.LunchEndHour = 12, 13
	}
	if p.WeekendStartHour == 0 && p.WeekendEndHour == 0 {
		p.WeekendStartHour, p.WeekendEndHour = 10, 14
	}
	if p.WeekdayMaxMinutes == 0 {
		p.WeekdayMaxMinutes = 420
	}
	if p.WeekendMaxMinutes == 0 {
		p.WeekendMaxMinutes = 180
	}
	if p.SnapMinutes == 0 {
		p.SnapMinutes = 15
	}
	return p
}

// Policy converts the section (with defaults applied) into the capacity
// policy handed to the packer.
func (p PlannerConfig) Policy() capacity.Policy {
	d := p.withDefaults()
	return capacity.Policy{
		WorkdayStartHour:  d.WorkdayStartHour,
		WorkdayEndHour:    d.WorkdayEndHour,
		LunchStartHour:    d.LunchStartHour,
		LunchEndHour:      d.LunchEndHour,
		AllowWeekends:     d.AllowWeekends,
		WeekendStartHour:  d.WeekendStartHour,
		WeekendEndHour:    d.WeekendEndHour,
		WeekdayMaxMinutes: d.WeekdayMaxMinutes,
		WeekendMaxMinutes: d.WeekendMaxMinutes,
	}
}

// Snap returns the effective snap grid.
func (p PlannerConfig) Snap() int { return p.withDefaults().SnapMinutes }

// SweepConfig controls the periodic reschedule sweep.
//
// Spec accepts cron expressions (5- or 6-field), descriptors ("@hourly"),
// and "@every 10m". Timezone is an IANA name, e.g. "Europe/Berlin".
type SweepConfig struct {
	Enabled       bool   `json:"enabled"`
	Spec          string `json:"spec,omitempty"` // default "@every 15m"
	Timezone      string `json:"timezone,omitempty"`
	MaxConcurrent int    `json:"max_concurrent,omitempty"` // plans analyzed in parallel, default 4
}

// NotifyConfig controls the optional Telegram digest sink.
// If the section is omitted, notifications are disabled.
type NotifyConfig struct {
	Enabled    bool   `json:"enabled"`
	Token      string `json:"token,omitempty"`
	ChatID     int64  `json:"chat_id,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// Validate fails fast on values the services cannot start with. The day
// policy gets the full capacity validation so a broken lunch window is
// caught at load time, not at the first sweep.
func (c *Config) Validate() error {
	if err := c.Planner.Policy().Validate(); err != nil {
		return fmt.Errorf("planner: %w", err)
	}
	switch s := c.Planner.withDefaults().SnapMinutes; s {
	case 15, 30, 60:
	default:
		return fmt.Errorf("planner: snap_minutes must be 15, 30, or 60 (got %d)", s)
	}
	if c.Notify.Enabled && c.Notify.Token == "" {
		return fmt.Errorf("notify: token is required when enabled")
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}
