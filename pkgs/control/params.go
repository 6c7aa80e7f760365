package control

import (
	"time"

	"github.com/keskad/locosteam/pkgs/config"
)

// params is the typed view of the live configuration snapshot the control
// loop pulls parameters from. It is rebuilt from a config.Store snapshot at
// construction and again every time a live CV update lands, so a config
// change takes effect within the tick it is consumed.
type params struct {
	targetPressurePSI float64
	pidKp, pidKi, pidKd float64
	heaterSplitRatio    float64

	sensorFaultPersist int

	logicLimitC, boilerLimitC, superLimitC float64
	dccTimeout, trackVoltageTimeout        time.Duration
	trackVoltageMinMV                      int

	servoTravelTimeMS float64
	servoNeutralPct   float64
	servoMaxPct       float64
	whistleOffsetDeg  float64

	degradationEnable bool
	decelRateCMS2     float64
	degradedTimeout   time.Duration

	scaleDenominator float64
	prototypeKPH     float64

	wheelCircumferenceCM float64
}

func buildParams(snap map[int]config.Value) params {
	get := func(id int) float64 {
		if v, ok := snap[id]; ok {
			return v.Float()
		}
		return 0
	}
	return params{
		targetPressurePSI: get(config.TargetPressurePSI),
		pidKp:             get(config.PIDKp),
		pidKi:             get(config.PIDKi),
		pidKd:             get(config.PIDKd),
		heaterSplitRatio:  get(config.HeaterSplitRatio),

		sensorFaultPersist: int(get(config.SensorFaultPersist)),

		logicLimitC:  get(config.LogicLimitC),
		boilerLimitC: get(config.BoilerLimitC),
		superLimitC:  get(config.SuperLimitC),

		dccTimeout:          time.Duration(get(config.DCCTimeoutDeciSec)) * 100 * time.Millisecond,
		trackVoltageTimeout: time.Duration(get(config.TrackVoltageTimeoutDS)) * 100 * time.Millisecond,
		trackVoltageMinMV:   int(get(config.TrackVoltageMinMV)),

		servoTravelTimeMS: get(config.ServoTravelTimeMS),
		servoNeutralPct:   get(config.ServoNeutralPct),
		servoMaxPct:       get(config.ServoMaxPct),
		whistleOffsetDeg:  get(config.WhistleOffsetDeg),

		degradationEnable: get(config.DegradationEnable) != 0,
		decelRateCMS2:     get(config.DecelRateCMS2),
		degradedTimeout:   time.Duration(get(config.DegradedTimeoutS)) * time.Second,

		scaleDenominator: get(config.ScaleDenominator),
		prototypeKPH:     get(config.PrototypeKPH),

		wheelCircumferenceCM: get(config.WheelCircumferenceCM),
	}
}
