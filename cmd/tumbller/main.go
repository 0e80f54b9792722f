// Command tumbller runs the person-following stack: it mirrors the UWB
// gateway feeds into the digital twin, drives the Tumbller through the
// BLE bridge, and serves the dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/teslashibe/go-tumbller/internal/config"
	"github.com/teslashibe/go-tumbller/internal/log"
	"github.com/teslashibe/go-tumbller/pkg/feed"
	"github.com/teslashibe/go-tumbller/pkg/robot"
	"github.com/teslashibe/go-tumbller/pkg/steering"
	"github.com/teslashibe/go-tumbller/pkg/twin"
	"github.com/teslashibe/go-tumbller/pkg/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "tumbller:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to tumbller.yaml (defaults apply when empty)")
	cautious := flag.Bool("cautious", false, "use the slow tuning for cramped spaces")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			return err
		}
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	log.Init(cfg.LogLevel)
	log.Info("starting tumbller follower",
		"robot_id", cfg.Roles.RobotID,
		"target_id", cfg.Roles.TargetID,
		"bridge", cfg.BridgeURL,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Digital twin and role bindings.
	model := twin.New(
		twin.Position{X: cfg.Zone.CenterX, Y: cfg.Zone.CenterY, Z: cfg.Zone.CenterZ},
		cfg.Zone.Radius,
	)
	model.RegisterRole(cfg.Roles.RobotID, twin.RoleRobot)
	model.RegisterRole(cfg.Roles.TargetID, twin.RoleTarget)

	// Actuation path: dispatcher in front of the BLE bridge.
	bridge := robot.NewBridge(cfg.BridgeURL)
	defer bridge.Close()
	dispatcher := robot.NewDispatcher(bridge)
	defer dispatcher.Close()

	// Gateway feeds.
	location := feed.NewLocationClient(cfg.Feed.LocationURL)
	imu := feed.NewIMUClient(cfg.Feed.IMUURL)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); location.Run(ctx) }()
	go func() { defer wg.Done(); imu.Run(ctx) }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		consumeFeeds(ctx, model, location, imu)
	}()

	// Decision engine.
	steerCfg := steeringConfig(cfg.Steering, *cautious)
	if err := steerCfg.Validate(); err != nil {
		return err
	}
	controller := steering.NewController(steerCfg, model, dispatcher)

	// Dashboard.
	server := web.NewServer(":"+cfg.WebPort, model, controller)
	controller.SetCommandHook(server.RecordCommand)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := server.Run(ctx); err != nil {
			log.Error("dashboard server stopped", "error", err)
			cancel()
		}
	}()

	controller.Run(ctx)

	// Halt the robot before tearing anything else down.
	controller.Stop()
	wg.Wait()

	log.Info("tumbller follower stopped")
	return nil
}

// consumeFeeds mirrors gateway events into the twin until both feeds
// close or ctx is cancelled.
func consumeFeeds(ctx context.Context, model *twin.Twin, location *feed.LocationClient, imu *feed.IMUClient) {
	var lastIMU feed.OrientationUpdate

	positions := location.Updates()
	orientations := imu.Updates()

	for positions != nil || orientations != nil {
		select {
		case <-ctx.Done():
			return

		case update, ok := <-positions:
			if !ok {
				positions = nil
				continue
			}
			model.UpdatePosition(update.EntityID, update.Position)

		case update, ok := <-orientations:
			if !ok {
				orientations = nil
				continue
			}
			// Integration step is the gap between gyro samples; the
			// first sample only establishes the baseline.
			if !lastIMU.Timestamp.IsZero() {
				if dt := update.Timestamp.Sub(lastIMU.Timestamp); dt > 0 {
					model.UpdateOrientation(update.YawRate, dt)
				}
			}
			lastIMU = update

		case svcErr := <-location.Errors():
			log.Warn("location feed error", "service", svcErr.Service, "error", svcErr.Err)

		case svcErr := <-imu.Errors():
			log.Warn("imu feed error", "service", svcErr.Service, "error", svcErr.Err)
		}
	}
}

// steeringConfig maps the YAML seconds values onto the engine's typed
// durations.
func steeringConfig(s config.SteeringConfig, cautious bool) steering.Config {
	cfg := steering.DefaultConfig()
	cfg.DecisionInterval = config.Seconds(s.DecisionInterval)
	cfg.RateLimitInterval = config.Seconds(s.RateLimitInterval)
	cfg.MinDistance = s.MinDistance
	cfg.MaxDistance = s.MaxDistance
	cfg.AngleThreshold = s.AngleThreshold
	cfg.TurnRate = s.TurnRate
	cfg.AssumedSpeed = s.AssumedSpeed
	cfg.MinTurn = config.Seconds(s.MinTurn)
	cfg.MaxTurn = config.Seconds(s.MaxTurn)
	cfg.MinForward = config.Seconds(s.MinForward)
	cfg.MaxForward = config.Seconds(s.MaxForward)
	cfg.HeadingWindow = config.Seconds(s.HeadingWindow)
	cfg.MinHeadingMovement = s.MinHeadingMovement
	cfg.CalibrationInterval = config.Seconds(s.CalibrationInterval)
	cfg.CalibrationDuration = config.Seconds(s.CalibrationDuration)
	cfg.MinCalibrationMovement = s.MinCalibrationMovement
	cfg.GridResolution = s.GridResolution
	cfg.UsePlanner = s.UsePlanner

	// The cautious preset wins over file tuning for the fields it slows
	// down; it exists so a bench operator can flip one switch.
	if cautious {
		slow := steering.CautiousConfig()
		cfg.DecisionInterval = slow.DecisionInterval
		cfg.MaxDistance = slow.MaxDistance
		cfg.MaxForward = slow.MaxForward
		cfg.AssumedSpeed = slow.AssumedSpeed
	}
	return cfg
}
