// Package config implements the bounded, persistent configuration-variable
// (CV) store: a viper.Viper instance bound to a YAML file on disk,
// SetDefault for every known value, and a typed per-key read step, where the
// known values are a sparse, numbered parameter table that is also mutated
// live, at runtime, by the wireless command link.
package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Kind distinguishes the two value domains a CV can hold.
type Kind int

const (
	Integer Kind = iota
	Real
)

// Bound is the declared (min, max, unit, description) tuple for one
// known parameter id. Ids are stable across versions: never reassigned.
type Bound struct {
	Kind        Kind
	Min         float64
	Max         float64
	Unit        string
	Description string
}

// Value is a parameter's current value, tagged with its kind so callers
// don't need to guess how to format it.
type Value struct {
	Kind Kind
	Int  int64
	Real float64
}

func (v Value) Float() float64 {
	if v.Kind == Integer {
		return float64(v.Int)
	}
	return v.Real
}

func (v Value) String() string {
	if v.Kind == Integer {
		return strconv.FormatInt(v.Int, 10)
	}
	return strconv.FormatFloat(v.Real, 'f', -1, 64)
}

// Known parameter ids. A subset carries fixed, externally-significant
// numbers; the rest are this implementation's own stable assignment,
// chosen once and never reused.
const (
	Address               = 1
	PIDKp                 = 30
	PIDKi                 = 31
	TargetPressurePSI     = 32
	PIDKd                 = 33
	SensorFaultPersist    = 40
	LogicLimitC           = 41
	BoilerLimitC          = 42
	SuperLimitC           = 43
	DCCTimeoutDeciSec     = 44
	TrackVoltageTimeoutDS = 45
	TrackVoltageMinMV     = 46
	ServoTravelTimeMS     = 49
	WhistleOffsetDeg      = 50
	ServoNeutralPct       = 51
	ServoMaxPct           = 52
	HeaterSplitRatio      = 60
	DegradationEnable     = 80
	DecelRateCMS2         = 87
	DegradedTimeoutS      = 88
	ScaleDenominator      = 90
	PrototypeKPH          = 91
	WheelCircumferenceCM  = 95
)

// Bounds is the declared table of every known parameter.
var Bounds = map[int]Bound{
	Address:               {Integer, 1, 127, "addr", "DCC short address"},
	PIDKp:                 {Real, 0, 50, "", "pressure PID proportional gain"},
	PIDKi:                 {Real, 0, 10, "", "pressure PID integral gain"},
	TargetPressurePSI:     {Real, 15, 25, "PSI", "target boiler pressure"},
	PIDKd:                 {Real, 0, 10, "", "pressure PID derivative gain"},
	SensorFaultPersist:    {Integer, 1, 5, "ticks", "consecutive invalid reads before DEGRADED"},
	LogicLimitC:           {Real, 60, 85, "C", "logic board over-temperature limit"},
	BoilerLimitC:          {Real, 100, 120, "C", "boiler dry-fire temperature limit"},
	SuperLimitC:           {Real, 240, 270, "C", "superheater over-temperature limit"},
	DCCTimeoutDeciSec:     {Integer, 5, 100, "x100ms", "DCC signal-loss timeout"},
	TrackVoltageTimeoutDS: {Integer, 5, 100, "x100ms", "track under-voltage timeout"},
	TrackVoltageMinMV:     {Integer, 5000, 20000, "mV", "rectified track-voltage minimum"},
	ServoTravelTimeMS:     {Integer, 500, 3000, "ms", "servo full-travel time"},
	WhistleOffsetDeg:      {Integer, 0, 90, "deg", "whistle preset offset from neutral"},
	ServoNeutralPct:       {Integer, 0, 100, "%", "servo neutral (closed) position"},
	ServoMaxPct:           {Integer, 0, 100, "%", "servo fully-open position"},
	HeaterSplitRatio:      {Real, 0, 1, "", "fraction of PID output sent to heater one"},
	DegradationEnable:     {Integer, 0, 1, "bool", "enable graceful degraded-mode deceleration"},
	DecelRateCMS2:         {Real, 5, 20, "cm/s^2", "degraded-mode deceleration rate"},
	DegradedTimeoutS:      {Integer, 10, 60, "s", "max time in DEGRADED before full shutdown"},
	ScaleDenominator:      {Real, 1, 220, "", "model scale denominator (e.g. 87.1 for H0)"},
	PrototypeKPH:          {Real, 1, 200, "km/h", "prototype top speed at full regulator"},
	WheelCircumferenceCM:  {Real, 1, 50, "cm", "driving wheel circumference"},
}

// Defaults returns the full default map, used whenever persisted storage is
// missing or unreadable.
func Defaults() map[int]Value {
	return map[int]Value{
		Address:               {Kind: Integer, Int: 3},
		PIDKp:                 {Kind: Real, Real: 2.0},
		PIDKi:                 {Kind: Real, Real: 0.5},
		TargetPressurePSI:     {Kind: Real, Real: 18.0},
		PIDKd:                 {Kind: Real, Real: 0.1},
		SensorFaultPersist:    {Kind: Integer, Int: 2},
		LogicLimitC:           {Kind: Real, Real: 75},
		BoilerLimitC:          {Kind: Real, Real: 110},
		SuperLimitC:           {Kind: Real, Real: 260},
		DCCTimeoutDeciSec:     {Kind: Integer, Int: 10},
		TrackVoltageTimeoutDS: {Kind: Integer, Int: 10},
		TrackVoltageMinMV:     {Kind: Integer, Int: 10000},
		ServoTravelTimeMS:     {Kind: Integer, Int: 1000},
		WhistleOffsetDeg:      {Kind: Integer, Int: 30},
		ServoNeutralPct:       {Kind: Integer, Int: 0},
		ServoMaxPct:           {Kind: Integer, Int: 100},
		HeaterSplitRatio:      {Kind: Real, Real: 0.5},
		DegradationEnable:     {Kind: Integer, Int: 1},
		DecelRateCMS2:         {Kind: Real, Real: 10},
		DegradedTimeoutS:      {Kind: Integer, Int: 30},
		ScaleDenominator:      {Kind: Real, Real: 87.1},
		PrototypeKPH:          {Kind: Real, Real: 80},
		WheelCircumferenceCM:  {Kind: Real, Real: 10},
	}
}

// Failure kinds: all four are reported back to the caller, none escalate.
var (
	ErrUnknownID  = fmt.Errorf("unknown parameter id")
	ErrOutOfRange = fmt.Errorf("value out of range")
	ErrParse      = fmt.Errorf("cannot parse value")
	ErrPersist    = fmt.Errorf("cannot persist configuration")
)

// Store owns the process-wide parameter map. It is the only component
// permitted to mutate it; every other subsystem receives snapshots or
// plain values.
type Store struct {
	v      *viper.Viper
	path   string
	mu     sync.RWMutex
	values map[int]Value

	// onChange, if set, is invoked with the fresh map whenever the backing
	// file is rewritten (fsnotify watch). `lococtl run --watch-config` sets
	// it to log the reload; the control loop's own parameter view is not
	// rebuilt by it.
	onChange func(map[int]Value)
}

// Load reads the configuration file at path, writing defaults if it is
// missing or unparsable, and returns a ready Store: a viper.Viper bound to
// one file, SetDefault for every known key, SafeWriteConfig to materialize
// it if absent.
func Load(path string) (*Store, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	defaults := Defaults()
	for id, val := range defaults {
		v.SetDefault(key(id), val.Float())
	}

	s := &Store{v: v, path: path, values: defaults}

	if err := v.ReadInConfig(); err != nil {
		logrus.WithError(err).Warn("configuration file missing or unreadable, writing defaults")
		if werr := s.Save(); werr != nil {
			return s, fmt.Errorf("%w: %s", ErrPersist, werr.Error())
		}
		return s, nil
	}

	loaded := make(map[int]Value, len(defaults))
	for id, bound := range Bounds {
		if bound.Kind == Integer {
			loaded[id] = Value{Kind: Integer, Int: v.GetInt64(key(id))}
		} else {
			loaded[id] = Value{Kind: Real, Real: v.GetFloat64(key(id))}
		}
	}
	s.values = loaded

	if err := s.validateAll(); err != nil {
		logrus.WithError(err).Warn("persisted configuration failed validation, reverting to defaults")
		s.values = defaults
		if werr := s.Save(); werr != nil {
			return s, fmt.Errorf("%w: %s", ErrPersist, werr.Error())
		}
	}

	return s, nil
}

// Watch arms an fsnotify watch on the backing file and invokes cb with a
// fresh snapshot whenever it is written or created on disk, whether by
// another process (e.g. a maintenance tool) or by this Store's own Save.
// Errors are logged, never propagated: a
// watch failure degrades to "no live reload", not a crash.
func (s *Store) Watch(cb func(map[int]Value)) {
	s.onChange = cb
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logrus.WithError(err).Warn("cannot start configuration file watcher")
		return
	}
	if err := watcher.Add(s.path); err != nil {
		logrus.WithError(err).Warn("cannot watch configuration file")
		return
	}
	go func() {
		for event := range watcher.Events {
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := s.v.ReadInConfig(); err != nil {
				logrus.WithError(err).Warn("cannot reload configuration file after external write")
				continue
			}
			reloaded := make(map[int]Value, len(s.values))
			for id, bound := range Bounds {
				if bound.Kind == Integer {
					reloaded[id] = Value{Kind: Integer, Int: s.v.GetInt64(key(id))}
				} else {
					reloaded[id] = Value{Kind: Real, Real: s.v.GetFloat64(key(id))}
				}
			}
			s.mu.Lock()
			s.values = reloaded
			s.mu.Unlock()
			if s.onChange != nil {
				s.onChange(reloaded)
			}
		}
	}()
}

// validateAll assumes the caller already holds s.mu (or owns the Store
// exclusively, as during Load before the watch goroutine starts).
func (s *Store) validateAll() error {
	for id, val := range s.values {
		bound, ok := Bounds[id]
		if !ok {
			continue
		}
		if val.Float() < bound.Min || val.Float() > bound.Max {
			return fmt.Errorf("%w: id=%d value=%s bound=[%v,%v]", ErrOutOfRange, id, val.String(), bound.Min, bound.Max)
		}
	}
	for id := range Bounds {
		if _, ok := s.values[id]; !ok {
			return fmt.Errorf("missing required parameter id=%d", id)
		}
	}
	return nil
}

// Save is best-effort; the caller must not block on it.
func (s *Store) Save() error {
	s.mu.RLock()
	for id, val := range s.values {
		s.v.Set(key(id), val.Float())
	}
	s.mu.RUnlock()
	if err := s.v.WriteConfig(); err != nil {
		if werr := s.v.SafeWriteConfig(); werr != nil {
			return fmt.Errorf("%w: %s", ErrPersist, err.Error())
		}
	}
	return nil
}

// Get returns the current value of id and whether it is known.
func (s *Store) Get(id int) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

// Snapshot returns an immutable copy of the full map, safe to hand to
// other components between ticks.
func (s *Store) Snapshot() map[int]Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[int]Value, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// ValidateAndUpdate parses raw as integer iff the declared range is
// integral, else as real;
// rejects unknown ids and out-of-range values; updates the map in place
// only on success (atomic: the old value survives any failure) and
// returns a human-readable confirmation message.
func (s *Store) ValidateAndUpdate(id int, raw string) (string, error) {
	bound, ok := Bounds[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownID, id)
	}

	raw = strings.TrimSpace(raw)
	var val Value
	if bound.Kind == Integer {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not an integer", ErrParse, raw)
		}
		val = Value{Kind: Integer, Int: n}
	} else {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %q is not a number", ErrParse, raw)
		}
		val = Value{Kind: Real, Real: f}
	}

	if val.Float() < bound.Min || val.Float() > bound.Max {
		return "", fmt.Errorf("%w: CV%d must be in [%v,%v]%s", ErrOutOfRange, id, bound.Min, bound.Max, unitSuffix(bound.Unit))
	}

	s.mu.Lock()
	s.values[id] = val
	s.mu.Unlock()
	return fmt.Sprintf("CV%d=%s OK", id, val.String()), nil
}

func unitSuffix(unit string) string {
	if unit == "" {
		return ""
	}
	return " " + unit
}

func key(id int) string {
	return "cv" + strconv.Itoa(id)
}

// KnownIDs returns every known parameter id, ascending — useful for CLI
// listing and for asserting the load-time completeness invariant in tests.
func KnownIDs() []int {
	ids := make([]int, 0, len(Bounds))
	for id := range Bounds {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
