// Package config provides configuration loading for go-tumbller commands.
// Settings come from a YAML file with env-var overrides; Validate rejects
// inconsistent numeric bounds before anything starts.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ZoneConfig describes the spherical anchor zone.
type ZoneConfig struct {
	CenterX float64 `yaml:"center_x"`
	CenterY float64 `yaml:"center_y"`
	CenterZ float64 `yaml:"center_z"`
	Radius  float64 `yaml:"radius"`
}

// RolesConfig binds UWB tag IDs to semantic roles.
type RolesConfig struct {
	RobotID  string `yaml:"robot_id"`
	TargetID string `yaml:"target_id"`
}

// FeedConfig points at the UWB gateway streams.
type FeedConfig struct {
	LocationURL string `yaml:"location_url"`
	IMUURL      string `yaml:"imu_url"`
}

// SteeringConfig carries the decision-engine tunables. Durations are
// expressed in seconds in the YAML file.
type SteeringConfig struct {
	DecisionInterval       float64 `yaml:"decision_interval_s"`
	RateLimitInterval      float64 `yaml:"rate_limit_interval_s"`
	MinDistance            float64 `yaml:"min_distance_m"`
	MaxDistance            float64 `yaml:"max_distance_m"`
	AngleThreshold         float64 `yaml:"angle_threshold_rad"`
	TurnRate               float64 `yaml:"turn_rate_rad_s"`
	AssumedSpeed           float64 `yaml:"assumed_speed_m_s"`
	MinTurn                float64 `yaml:"min_turn_s"`
	MaxTurn                float64 `yaml:"max_turn_s"`
	MinForward             float64 `yaml:"min_forward_s"`
	MaxForward             float64 `yaml:"max_forward_s"`
	CalibrationInterval    float64 `yaml:"calibration_interval_s"`
	CalibrationDuration    float64 `yaml:"calibration_duration_s"`
	MinCalibrationMovement float64 `yaml:"min_calibration_movement_m"`
	MinHeadingMovement     float64 `yaml:"min_heading_movement_m"`
	HeadingWindow          float64 `yaml:"heading_window_s"`
	GridResolution         float64 `yaml:"grid_resolution_m"`
	UsePlanner             bool    `yaml:"use_planner"`
}

// Config is the top-level structure for tumbller.yaml.
type Config struct {
	LogLevel  string         `yaml:"log_level"`
	BridgeURL string         `yaml:"bridge_url"`
	WebPort   string         `yaml:"web_port"`
	Zone      ZoneConfig     `yaml:"zone"`
	Roles     RolesConfig    `yaml:"roles"`
	Feed      FeedConfig     `yaml:"feed"`
	Steering  SteeringConfig `yaml:"steering"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:  "info",
		BridgeURL: "ws://localhost:9000/tumbller",
		WebPort:   "8080",
		Zone:      ZoneConfig{CenterX: 2.5, CenterY: 2.5, CenterZ: 1.0, Radius: 10.0},
		Roles:     RolesConfig{RobotID: "4c87", TargetID: "0cad"},
		Feed: FeedConfig{
			LocationURL: "ws://localhost:8765/location",
			IMUURL:      "ws://localhost:8765/imu",
		},
		Steering: SteeringConfig{
			DecisionInterval:       0.5,
			RateLimitInterval:      0.3,
			MinDistance:            0.3,
			MaxDistance:            0.8,
			AngleThreshold:         0.3,
			TurnRate:               1.0,
			AssumedSpeed:           0.25,
			MinTurn:                0.2,
			MaxTurn:                1.0,
			MinForward:             0.3,
			MaxForward:             2.0,
			CalibrationInterval:    30,
			CalibrationDuration:    1.5,
			MinCalibrationMovement: 0.2,
			MinHeadingMovement:     0.1,
			HeadingWindow:          15,
			GridResolution:         0.5,
		},
	}
}

// Load reads and parses a YAML config file, starting from defaults so a
// partial file only overrides what it names.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("TUMBLLER_BRIDGE_URL"); v != "" {
		c.BridgeURL = v
	}
	if v := os.Getenv("TUMBLLER_LOCATION_URL"); v != "" {
		c.Feed.LocationURL = v
	}
	if v := os.Getenv("TUMBLLER_IMU_URL"); v != "" {
		c.Feed.IMUURL = v
	}
	if v := os.Getenv("TUMBLLER_WEB_PORT"); v != "" {
		c.WebPort = v
	}
	if v := os.Getenv("TUMBLLER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate rejects configurations that cannot produce sane behavior.
// These are the only errors that abort startup.
func (c Config) Validate() error {
	s := c.Steering
	checks := []struct {
		ok  bool
		msg string
	}{
		{c.Zone.Radius > 0, "zone radius must be positive"},
		{c.Roles.RobotID != "", "robot tag id must be set"},
		{c.Roles.TargetID != "", "target tag id must be set"},
		{c.Roles.RobotID != c.Roles.TargetID, "robot and target tag ids must differ"},
		{s.DecisionInterval > 0, "decision interval must be positive"},
		{s.RateLimitInterval >= 0, "rate limit interval must not be negative"},
		{s.MinDistance >= 0, "min distance must not be negative"},
		{s.MinDistance < s.MaxDistance, "min distance must be below max distance"},
		{s.AngleThreshold > 0, "angle threshold must be positive"},
		{s.TurnRate > 0, "turn rate must be positive"},
		{s.AssumedSpeed > 0, "assumed speed must be positive"},
		{s.MinTurn > 0 && s.MinTurn <= s.MaxTurn, "turn duration bounds must satisfy 0 < min <= max"},
		{s.MinForward > 0 && s.MinForward <= s.MaxForward, "forward duration bounds must satisfy 0 < min <= max"},
		{s.CalibrationInterval > 0, "calibration interval must be positive"},
		{s.CalibrationDuration > 0, "calibration duration must be positive"},
		{s.MinCalibrationMovement > 0, "min calibration movement must be positive"},
		{s.MinHeadingMovement > 0, "min heading movement must be positive"},
		{s.HeadingWindow > 0, "heading window must be positive"},
		{s.GridResolution > 0, "grid resolution must be positive"},
	}
	for _, chk := range checks {
		if !chk.ok {
			return fmt.Errorf("config: %s", chk.msg)
		}
	}
	return nil
}

// Seconds converts a YAML seconds value into a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
