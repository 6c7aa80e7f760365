package hal

import "sync"

// SimulatedSensors is an in-memory SensorDriver used by tests and the
// bundled demo harness. Values are set directly by the caller; reads
// never fail unless Fail is set for the corresponding channel.
type SimulatedSensors struct {
	mu sync.Mutex

	Temps        RawTemps
	PressureKPa  float64
	TrackMV      int
	FreeHeap     int

	FailTemps    bool
	FailPressure bool
	FailVoltage  bool
	FailHeap     bool
}

func NewSimulatedSensors() *SimulatedSensors {
	return &SimulatedSensors{
		Temps:       RawTemps{Boiler: 20, Superheater: 20, Logic: 25},
		PressureKPa: 0,
		TrackMV:     16000,
		FreeHeap:    200 * 1024,
	}
}

func (s *SimulatedSensors) ReadTemps() (RawTemps, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailTemps {
		return RawTemps{}, errSimulatedFault
	}
	return s.Temps, nil
}

func (s *SimulatedSensors) ReadPressureKPa() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailPressure {
		return 0, errSimulatedFault
	}
	return s.PressureKPa, nil
}

func (s *SimulatedSensors) ReadTrackVoltageMilliVolts() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailVoltage {
		return 0, errSimulatedFault
	}
	return s.TrackMV, nil
}

func (s *SimulatedSensors) FreeHeapBytes() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailHeap {
		return 0, errSimulatedFault
	}
	return s.FreeHeap, nil
}

func (s *SimulatedSensors) Set(temps RawTemps, pressureKPa float64, trackMV int, freeHeap int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Temps = temps
	s.PressureKPa = pressureKPa
	s.TrackMV = trackMV
	s.FreeHeap = freeHeap
}

// SimulatedServo records the last duty and whether it was ever cut.
type SimulatedServo struct {
	mu   sync.Mutex
	Duty float64
	Cuts int
	Fail bool
}

func (s *SimulatedServo) SetDuty(pct float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return errSimulatedFault
	}
	s.Duty = pct
	return nil
}

func (s *SimulatedServo) Cut() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Duty = 0
	s.Cuts++
	return nil
}

func (s *SimulatedServo) Get() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Duty
}

// SimulatedHeater records the last commanded duty.
type SimulatedHeater struct {
	mu   sync.Mutex
	Duty float64
}

func (h *SimulatedHeater) SetDuty(duty float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Duty = duty
	return nil
}

func (h *SimulatedHeater) Get() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.Duty
}

// SimulatedEncoder lets tests drive the pulse counter directly.
type SimulatedEncoder struct {
	mu           sync.Mutex
	count        uint32
	circumference float64
}

func NewSimulatedEncoder(circumferenceCM float64) *SimulatedEncoder {
	return &SimulatedEncoder{circumference: circumferenceCM}
}

func (e *SimulatedEncoder) Count() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

func (e *SimulatedEncoder) WheelCircumferenceCM() float64 {
	return e.circumference
}

// Advance increments the counter, wrapping at 32 bits like the real ISR.
func (e *SimulatedEncoder) Advance(pulses uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count += pulses
}

// SimulatedLink is an in-memory LinkIO: outbound sends are recorded,
// inbound bytes are queued by the test via Feed.
type SimulatedLink struct {
	mu      sync.Mutex
	Sent    []string
	inbound []byte
	Fail    bool
}

func (l *SimulatedLink) SendLine(line string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Fail {
		return errSimulatedFault
	}
	l.Sent = append(l.Sent, line)
	return nil
}

func (l *SimulatedLink) ReadAvailable() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.inbound) == 0 {
		return nil
	}
	out := l.inbound
	l.inbound = nil
	return out
}

// Feed queues bytes for the next ReadAvailable call.
func (l *SimulatedLink) Feed(data []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbound = append(l.inbound, data...)
}

// SimulatedPersistence is an in-memory Persistence backend for tests: writes
// land in a map instead of touching disk.
type SimulatedPersistence struct {
	mu    sync.Mutex
	files map[string][]byte
	Fail  bool
}

func NewSimulatedPersistence() *SimulatedPersistence {
	return &SimulatedPersistence{files: make(map[string][]byte)}
}

func (p *SimulatedPersistence) ReadFile(path string) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail {
		return nil, errSimulatedFault
	}
	data, ok := p.files[path]
	if !ok {
		return nil, errSimulatedFault
	}
	return data, nil
}

func (p *SimulatedPersistence) WriteFile(path string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Fail {
		return errSimulatedFault
	}
	p.files[path] = append([]byte(nil), data...)
	return nil
}

// Get returns the last bytes written to path, for test assertions.
func (p *SimulatedPersistence) Get(path string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	data, ok := p.files[path]
	return data, ok
}

var errSimulatedFault = simulatedFaultError{}

type simulatedFaultError struct{}

func (simulatedFaultError) Error() string { return "simulated driver fault" }
