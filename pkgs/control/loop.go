// Package control implements the 50 Hz cooperative scheduler (C11): the
// single-threaded tick loop that sequences sensor reads, DCC decoding,
// safety screening, physics, actuation, background work and the
// frame-boundary sleep in the exact order mandated by §4.11.
package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/keskad/locosteam/pkgs/config"
	"github.com/keskad/locosteam/pkgs/dcc"
	"github.com/keskad/locosteam/pkgs/degraded"
	"github.com/keskad/locosteam/pkgs/events"
	"github.com/keskad/locosteam/pkgs/hal"
	"github.com/keskad/locosteam/pkgs/output"
	"github.com/keskad/locosteam/pkgs/physics"
	"github.com/keskad/locosteam/pkgs/pressure"
	"github.com/keskad/locosteam/pkgs/sensors"
	"github.com/keskad/locosteam/pkgs/servo"
	"github.com/keskad/locosteam/pkgs/telemetry"
	"github.com/keskad/locosteam/pkgs/watchdog"
	"github.com/keskad/locosteam/pkgs/workers"
)

// tickInterval is the nominal 20 ms, 50 Hz frame period.
const tickInterval = 20 * time.Millisecond

// distressBurstPeriod and distressBurstDur shape the periodic short whistle
// bursts asserted for the operator while in DEGRADED mode (§4.8).
const (
	distressBurstPeriod = 2 * time.Second
	distressBurstDur    = 300 * time.Millisecond
)

// ringSnapshotEvery is how often (in ticks) a LOW-priority snapshot of the
// event ring is queued to the file-write queue, giving an operator a way to
// inspect recent events without waiting for a shutdown flush.
const ringSnapshotEvery = 250

// pressureUpdateEveryTicks implements the 2 Hz (every 10 ticks) PID cadence.
const pressureUpdateEveryTicks = 10

// telemetryEveryTicks implements the 1 Hz (every 50 ticks) outbound cadence.
const telemetryEveryTicks = 50

// Drivers bundles every hardware capability the loop is constructed with.
// The orchestrator owns all of them for program lifetime; nothing else
// holds a reference.
type Drivers struct {
	Sensors     hal.SensorDriver
	Encoder     hal.EncoderDriver
	Servo       hal.ServoDriver
	HeaterOne   hal.HeaterDriver
	HeaterTwo   hal.HeaterDriver
	Link        hal.LinkIO
	Persistence hal.Persistence
	Clock       hal.Clock
	Printer     output.Printer
}

// Loop is the control core's orchestrator: it exclusively owns every
// component instance for the program's lifetime and drives them in the
// fixed per-tick order of §4.11.
type Loop struct {
	clock hal.Clock
	cfg   *config.Store

	eventLogPath string
	snapshotPath string

	sensorSuite    *sensors.Suite
	cachedReader   *workers.CachedSensorReader
	dccLayer       *dcc.Layer
	encoderTracker *workers.EncoderTracker

	wd           *watchdog.Watchdog
	shutdownOrch *watchdog.Orchestrator
	degradedCtl  *degraded.Controller

	servoMapper *servo.Mapper
	pressureCtl *pressure.Controller

	ring *events.Ring
	link *telemetry.Link

	printQueue *workers.PrintQueue
	fileQueue  *workers.FileWriteQueue
	heapWorker *workers.HeapWorker

	p params

	loopCount          uint64
	currentVelocityCMS float64

	haltOnce sync.Once
	halted   chan struct{}
}

// New builds a Loop wired entirely against cfg and d. eventLogPath is
// where the event ring is flushed on shutdown; snapshotPath is where
// periodic LOW-priority ring snapshots are written.
func New(cfg *config.Store, d Drivers, eventLogPath, snapshotPath string) *Loop {
	p := buildParams(cfg.Snapshot())
	ring := events.NewRing()

	printer := d.Printer
	if printer == nil {
		printer = output.ConsolePrinter{}
	}

	l := &Loop{
		clock:        d.Clock,
		cfg:          cfg,
		eventLogPath: eventLogPath,
		snapshotPath: snapshotPath,

		sensorSuite:    sensors.New(d.Sensors, p.sensorFaultPersist),
		dccLayer:       dcc.NewLayer(),
		encoderTracker: workers.NewEncoderTracker(d.Encoder),

		wd:          watchdog.New(),
		degradedCtl: &degraded.Controller{},

		servoMapper: servo.New(d.Servo, ring, p.servoTravelTimeMS, p.servoNeutralPct, p.servoMaxPct, p.whistleOffsetDeg),
		pressureCtl: pressure.New(d.HeaterOne, d.HeaterTwo, p.pidKp, p.pidKi, p.pidKd, p.heaterSplitRatio),

		ring: ring,
		link: telemetry.New(d.Link),

		printQueue: workers.NewPrintQueue(printer),
		fileQueue:  workers.NewFileWriteQueue(d.Persistence),

		p: p,

		halted: make(chan struct{}),
	}
	l.cachedReader = workers.NewCachedSensorReader(l.sensorSuite)
	l.heapWorker = workers.NewHeapWorker(func() { logrus.Debug("heap reclaim requested") }, 0)

	// Heating runs as soon as the control loop is live; shutdown (any
	// cause) disables it again and it stays disabled until the next boot.
	l.pressureCtl.Enabled = true

	l.shutdownOrch = watchdog.NewOrchestrator(l.buildShutdownHooks(d), ring)
	return l
}

func (l *Loop) buildShutdownHooks(d Drivers) watchdog.Hooks {
	return watchdog.Hooks{
		DisableHeaters: func() {
			l.pressureCtl.Shutdown()
		},
		ServoToWhistle: func() {
			now := d.Clock.Now()
			l.servoMapper.SetGoal(0, true, now)
			l.servoMapper.SetEmergencyBypass()
			l.servoMapper.Update(now, float64(tickInterval.Milliseconds()))
		},
		ServoToClosed: func() {
			now := d.Clock.Now()
			l.servoMapper.SetGoal(l.p.servoNeutralPct, false, now)
			l.servoMapper.SetEmergencyBypass()
			l.servoMapper.Update(now, float64(tickInterval.Milliseconds()))
		},
		ServoCut: func() {
			_ = d.Servo.Cut()
		},
		PersistEvents: func() error {
			return l.ring.Flush(l.eventLogPath)
		},
		DeepSleep: func() {
			l.haltOnce.Do(func() { close(l.halted) })
		},
		Clock: d.Clock,
	}
}

// Halted reports whether the graduated emergency shutdown has run to its
// terminal stage. A production build selects on this to exit the process;
// tests use it to assert a shutdown actually completed.
func (l *Loop) Halted() <-chan struct{} { return l.halted }

// DCCLayer returns the single-writer DCC command-state boundary, for the
// packet decoder producer to feed.
func (l *Loop) DCCLayer() *dcc.Layer { return l.dccLayer }

// Ring exposes the event ring for tests and for an operator inspection path.
func (l *Loop) Ring() *events.Ring { return l.ring }

// Link exposes the telemetry/command link for tests that feed inbound
// bytes or inspect outbound frames.
func (l *Loop) Link() *telemetry.Link { return l.link }

// Run drives Tick once per frame until ctx is cancelled or the emergency
// shutdown sequence reaches its terminal stage.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.halted:
			return
		default:
		}
		l.Tick()
	}
}

// Tick runs exactly one 20 ms control-loop iteration in the mandated order.
func (l *Loop) Tick() {
	tickStart := l.clock.Now()

	// 2: refresh cached sensor reads (also updates sensor health, §4.2, as
	// a side effect of sampling through the Suite).
	reading := l.cachedReader.Read(tickStart)
	health := l.sensorSuite.SensorHealth()

	// 4: operator E-STOP takes priority over everything else this tick.
	dccState := l.dccLayer.Snapshot()
	if dccState.IsEStop {
		l.shutdownOrch.ForceClose(tickStart)
		l.dccLayer.ClearEStop()
		l.sleepToBoundary(tickStart)
		return
	}

	// 5: invoke the watchdog.
	cause := l.wd.Check(watchdog.Inputs{
		Now:                 tickStart,
		Temps:               reading.Temps,
		SensorHealth:        health,
		CurrentSpeedCMS:     l.currentVelocityCMS,
		LastValidDCC:        dccState.LastValidPacket,
		DCCTimeout:          l.p.dccTimeout,
		TrackVoltageMV:      reading.TrackVoltageMV,
		TrackVoltageMinMV:   l.p.trackVoltageMinMV,
		TrackVoltageTimeout: l.p.trackVoltageTimeout,
		FreeHeapBytes:       reading.FreeHeapBytes,
		LogicLimitC:         l.p.logicLimitC,
		BoilerLimitC:        l.p.boilerLimitC,
		SuperLimitC:         l.p.superLimitC,
		DegradedTimeout:     l.p.degradedTimeout,
	})
	if cause != watchdog.None {
		l.shutdownOrch.Shutdown(cause)
		return
	}
	mode := l.wd.Mode()

	if mode.Kind == watchdog.Degraded {
		if !l.degradedCtl.Active() {
			l.degradedCtl.Start(mode.InitialSpeedCMS, l.p.decelRateCMS2, tickStart)
		}
	} else if l.degradedCtl.Active() {
		l.degradedCtl.Stop()
	}

	// 6: commanded velocity, either from the degraded ramp or from physics.
	var targetPct, velocity float64
	if mode.Kind == watchdog.Degraded && l.p.degradationEnable {
		velocity = l.degradedCtl.CommandedVelocity(tickStart)
		targetPct = physics.VelocityToRegulatorPct(velocity, l.p.prototypeKPH, l.p.scaleDenominator)
	} else {
		maxPSI := config.Bounds[config.TargetPressurePSI].Max
		targetPct = physics.DCCToRegulator(dccState.SpeedStep)
		targetPct = physics.ApplyPressureCompensation(targetPct, reading.PressurePSI, maxPSI)
		velocity = physics.RegulatorToVelocity(targetPct, l.p.prototypeKPH, l.p.scaleDenominator)
	}
	l.currentVelocityCMS = velocity

	// 7: slew-rate-limited servo update, with a periodic distress whistle
	// overlay while DEGRADED.
	if mode.Kind == watchdog.Degraded && distressWhistleDue(tickStart, mode.EnteredAt) {
		l.servoMapper.SetGoal(0, true, tickStart)
	} else {
		l.servoMapper.SetGoal(targetPct, false, tickStart)
	}
	l.servoMapper.Update(tickStart, float64(tickInterval.Milliseconds()))

	// 8: pressure PID at 2 Hz.
	if l.pressureCtl.Enabled && l.loopCount%pressureUpdateEveryTicks == 0 {
		dtS := (pressureUpdateEveryTicks * tickInterval).Seconds()
		l.pressureCtl.Update(l.p.targetPressurePSI, reading.PressurePSI, dtS)
	}

	// 9: telemetry enqueue at 1 Hz, outbound process once.
	if l.loopCount%telemetryEveryTicks == 0 {
		l.link.EnqueueFrame(telemetry.Frame{
			VelocityCMS: velocity,
			PressurePSI: reading.PressurePSI,
			BoilerC:     reading.Temps.Boiler,
			SuperC:      reading.Temps.Superheater,
			LogicC:      reading.Temps.Logic,
			ServoDuty:   int(l.servoMapper.Current()),
			DCCStep:     dccState.SpeedStep,
			LoopCount:   l.loopCount,
		}.Render())
	}
	l.link.PollInbound()
	l.link.Process()

	// 10: consume at most one inbound command.
	if line, ok := l.link.PopCommand(); ok {
		l.processCommand(line, tickStart)
	}

	// 11: background workers, once each.
	l.printQueue.Process(tickStart)
	if err := l.fileQueue.Process(tickStart); err != nil {
		logrus.WithError(err).Warn("deferred file write failed")
	}
	l.heapWorker.Tick(reading.FreeHeapBytes, tickStart)
	_ = l.encoderTracker.Velocity(tickStart)
	if l.loopCount%ringSnapshotEvery == 0 {
		l.queueRingSnapshot()
	}

	// 12.
	l.loopCount++

	// 13.
	l.sleepToBoundary(tickStart)
}

func distressWhistleDue(now, enteredAt time.Time) bool {
	elapsed := now.Sub(enteredAt)
	if elapsed < 0 {
		return false
	}
	return elapsed%distressBurstPeriod < distressBurstDur
}

// processCommand parses and applies one inbound CV update, logging a
// success or rejection event regardless of outcome (§4.10's audit trail is
// preserved either way).
func (l *Loop) processCommand(line string, now time.Time) {
	cmd, err := telemetry.ParseCommand(line)
	if err != nil {
		l.ring.Append(events.KindBLECVRejected, err.Error(), now)
		return
	}

	msg, err := l.cfg.ValidateAndUpdate(cmd.ID, cmd.RawValue)
	if err != nil {
		l.ring.Append(events.KindBLECVRejected, err.Error(), now)
		return
	}

	l.ring.Append(events.KindBLECVUpdate, msg, now)
	if err := l.cfg.Save(); err != nil {
		logrus.WithError(err).Warn("configuration save failed after live CV update")
		l.ring.Append(events.KindPersistFailure, err.Error(), now)
	}

	l.p = buildParams(l.cfg.Snapshot())
	l.applyLiveParams()
}

// applyLiveParams pushes the freshly rebuilt parameter set into every
// subsystem that caches a CV-derived value internally, so a live update has
// effect within the same tick it is consumed.
func (l *Loop) applyLiveParams() {
	l.servoMapper.SetTravelTimeMS(l.p.servoTravelTimeMS)
	l.sensorSuite.SetPersistenceThreshold(l.p.sensorFaultPersist)
	l.pressureCtl.Kp = l.p.pidKp
	l.pressureCtl.Ki = l.p.pidKi
	l.pressureCtl.Kd = l.p.pidKd
	l.pressureCtl.SplitRatio = l.p.heaterSplitRatio
}

func (l *Loop) queueRingSnapshot() {
	data, err := yaml.Marshal(l.ring.Snapshot())
	if err != nil {
		return
	}
	l.fileQueue.Enqueue(workers.WriteLow, l.snapshotPath, data)
}

// sleepToBoundary implements step 13: sleep until tickStart+tickInterval,
// or log a LOOP_OVERRUN event and proceed immediately if that deadline has
// already passed.
func (l *Loop) sleepToBoundary(tickStart time.Time) {
	elapsed := l.clock.Now().Sub(tickStart)
	remaining := tickInterval - elapsed
	if remaining <= 0 {
		l.ring.Append(events.KindLoopOverrun, fmt.Sprintf("tick exceeded budget by %s", -remaining), l.clock.Now())
		logrus.WithField("overrun", -remaining).Warn("control loop tick overran its budget")
		return
	}
	l.clock.Sleep(remaining)
}
