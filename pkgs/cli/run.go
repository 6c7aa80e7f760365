package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/keskad/locosteam/pkgs/config"
	"github.com/keskad/locosteam/pkgs/control"
	"github.com/keskad/locosteam/pkgs/hal"
	"github.com/keskad/locosteam/pkgs/output"
	"github.com/keskad/locosteam/pkgs/workers"
)

// runArgs holds the flags specific to the run subcommand.
type runArgs struct {
	EventLogPath string
	SnapshotPath string
	WatchConfig  bool
}

// NewRunCommand boots the control loop against a simulated HAL: every real
// driver is an interface (§9), so without physical GPIO/ADC/PWM hardware
// this is the only mode lococtl can actually drive. A real deployment
// would swap the hal.Simulated* constructors below for concrete drivers
// wired to the target board.
func NewRunCommand(g *globalArgs) *cobra.Command {
	r := &runArgs{}

	command := &cobra.Command{
		Use:   "run",
		Short: "Run the control loop against the simulated hardware abstraction layer",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(g.CVPath)
			if err != nil {
				return err
			}

			sensorDriver := hal.NewSimulatedSensors()
			encoderDriver := hal.NewSimulatedEncoder(10)
			servoDriver := &hal.SimulatedServo{}
			heaterOne := &hal.SimulatedHeater{}
			heaterTwo := &hal.SimulatedHeater{}
			link := &hal.SimulatedLink{}
			persistence := hal.NewSimulatedPersistence()

			drivers := control.Drivers{
				Sensors:     sensorDriver,
				Encoder:     encoderDriver,
				Servo:       servoDriver,
				HeaterOne:   heaterOne,
				HeaterTwo:   heaterTwo,
				Link:        link,
				Persistence: persistence,
				Clock:       hal.SystemClock{},
				Printer:     output.ConsolePrinter{},
			}

			loop := control.New(cfg, drivers, r.EventLogPath, r.SnapshotPath)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if r.WatchConfig {
				cfg.Watch(func(map[int]config.Value) {
					logrus.Info("configuration file changed externally, live parameters will refresh on the next CV update")
				})
			}

			sup := workers.NewSupervisor(ctx)
			sup.SimulateEncoder(encoderDriver, 1, 50*time.Millisecond)

			logrus.WithField("cv_path", g.CVPath).Info("starting control loop")
			loop.Run(ctx)

			select {
			case <-loop.Halted():
				logrus.Error("control loop reached terminal shutdown")
			default:
				logrus.Info("control loop stopped on operator request")
			}

			return sup.Wait()
		},
	}

	command.Flags().StringVarP(&r.EventLogPath, "event-log", "", "events.yaml", "path the event ring is flushed to on shutdown")
	command.Flags().StringVarP(&r.SnapshotPath, "snapshot", "", "events.snapshot.yaml", "path periodic event-ring snapshots are written to")
	command.Flags().BoolVarP(&r.WatchConfig, "watch-config", "", false, "reload the configuration file when it changes on disk")

	return command
}
