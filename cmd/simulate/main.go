// Command simulate runs the follower stack against a synthetic gateway:
// no UWB anchors, no BLE bridge, just the toy kinematics in pkg/feed.
// Useful for dashboard work and controller tuning on a laptop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

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
		fmt.Fprintln(os.Stderr, "simulate:", err)
		os.Exit(1)
	}
}

func run() error {
	webPort := flag.String("port", "8080", "dashboard port")
	logLevel := flag.String("log-level", "debug", "log level")
	step := flag.Duration("step", 100*time.Millisecond, "simulation step")
	flag.Parse()

	log.Init(*logLevel)

	cfg := config.Default()
	log.Info("starting simulated follower",
		"robot_id", cfg.Roles.RobotID, "target_id", cfg.Roles.TargetID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	model := twin.New(
		twin.Position{X: cfg.Zone.CenterX, Y: cfg.Zone.CenterY, Z: cfg.Zone.CenterZ},
		cfg.Zone.Radius,
	)
	model.RegisterRole(cfg.Roles.RobotID, twin.RoleRobot)
	model.RegisterRole(cfg.Roles.TargetID, twin.RoleTarget)

	sim := feed.NewSimulator(cfg.Roles.RobotID, cfg.Roles.TargetID)

	// The dispatcher sits in front of the simulated robot exactly as it
	// would in front of the bridge.
	dispatcher := robot.NewDispatcher(sim)
	defer dispatcher.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() { defer wg.Done(); sim.Run(ctx, *step) }()

	wg.Add(1)
	go func() {
		defer wg.Done()
		mirror(ctx, model, sim)
	}()

	steerCfg := steering.DefaultConfig()
	steerCfg.UsePlanner = true
	controller := steering.NewController(steerCfg, model, dispatcher)

	server := web.NewServer(":"+*webPort, model, controller)
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
	controller.Stop()
	wg.Wait()

	log.Info("simulation stopped")
	return nil
}

// mirror copies simulator events into the twin.
func mirror(ctx context.Context, model *twin.Twin, sim *feed.Simulator) {
	var last time.Time

	positions := sim.Updates()
	orientations := sim.Orientation()

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
			if !last.IsZero() {
				if dt := update.Timestamp.Sub(last); dt > 0 {
					model.UpdateOrientation(update.YawRate, dt)
				}
			}
			last = update.Timestamp
		}
	}
}
