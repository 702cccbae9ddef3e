package control

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	fakemotor "github.com/hubrobotics/avoider/components/motor/fake"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
)

// scriptedSensor replays readings, remembering when each was taken. A nil entry in errs means
// success.
type scriptedSensor struct {
	mu       sync.Mutex
	clock    clock.Clock
	readings []int
	errs     []error
	reads    []time.Time
}

func (s *scriptedSensor) Name() string { return "front" }

func (s *scriptedSensor) Distance(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := len(s.reads)
	s.reads = append(s.reads, s.clock.Now())
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	return s.readings[i%len(s.readings)], nil
}

func (s *scriptedSensor) Close(ctx context.Context) error { return nil }

func (s *scriptedSensor) readTimes() []time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Time(nil), s.reads...)
}

type rig struct {
	clock  *clock.Mock
	left   *fakemotor.Motor
	right  *fakemotor.Motor
	sensor *scriptedSensor
	loop   *Loop
}

func newRig(t *testing.T, readings ...int) *rig {
	t.Helper()
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	r := &rig{
		clock:  clk,
		left:   fakemotor.NewMotor("left", true, clk, logger),
		right:  fakemotor.NewMotor("right", false, clk, logger),
		sensor: &scriptedSensor{clock: clk, readings: readings},
	}
	loop, err := NewLoop(DefaultConfig(), r.left, r.right, r.sensor, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	r.loop = loop
	return r
}

// pacingSlack bounds how far drive can overshoot a timer: a few of its 10ms increments may land
// between the loop arming a timer and acting on it.
const pacingSlack = 50 * time.Millisecond

// drive advances the mock clock in small increments until fn returns.
func (r *rig) drive(t *testing.T, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	deadline := time.After(10 * time.Second)
	for {
		select {
		case <-done:
			return
		case <-deadline:
			t.Fatal("timed out driving the mock clock")
		default:
			r.clock.Add(10 * time.Millisecond)
		}
	}
}

func (r *rig) step(t *testing.T) (Action, error) {
	t.Helper()
	var (
		action Action
		err    error
	)
	r.drive(t, func() { action, err = r.loop.Step(context.Background()) })
	return action, err
}

// waitForCommands blocks in real time until the motor has recorded n commands.
func waitForCommands(t *testing.T, m *fakemotor.Motor, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for len(m.Commands()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("motor %s never received %d commands", m.Name(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStepReversesNearObstacle(t *testing.T) {
	r := newRig(t, 10)
	action, err := r.step(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, action, test.ShouldEqual, Reverse)

	for _, m := range []*fakemotor.Motor{r.left, r.right} {
		cmds := m.Commands()
		test.That(t, cmds, test.ShouldHaveLength, 2)
		test.That(t, cmds[0].Kind, test.ShouldEqual, fakemotor.CommandRun)
		test.That(t, cmds[0].Speed, test.ShouldEqual, -360.0)
		test.That(t, cmds[1].Kind, test.ShouldEqual, fakemotor.CommandStop)
		test.That(t, cmds[1].At.Sub(cmds[0].At), test.ShouldBeBetweenOrEqual, time.Second, time.Second+pacingSlack)
	}
	test.That(t, r.left.WheelSpeed(), test.ShouldEqual, 0.0)

	// the poll period follows the stop
	reads := r.sensor.readTimes()
	stop := r.right.Commands()[1].At
	test.That(t, r.clock.Now().Sub(stop), test.ShouldBeGreaterThanOrEqualTo, 100*time.Millisecond)
	test.That(t, r.clock.Now().Sub(reads[0]), test.ShouldBeGreaterThanOrEqualTo, 1100*time.Millisecond)
}

func TestStepRunsForwardWhenClear(t *testing.T) {
	r := newRig(t, 500)
	action, err := r.step(t)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, action, test.ShouldEqual, Forward)

	for _, m := range []*fakemotor.Motor{r.left, r.right} {
		cmds := m.Commands()
		test.That(t, cmds, test.ShouldHaveLength, 1)
		test.That(t, cmds[0].Kind, test.ShouldEqual, fakemotor.CommandRun)
		test.That(t, cmds[0].Speed, test.ShouldEqual, 360.0)
		moving, err := m.IsMoving(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, moving, test.ShouldBeTrue)
	}
	// mirrored motors spin opposite ways to drive the rig forward
	test.That(t, r.left.WheelSpeed(), test.ShouldEqual, -360.0)
	test.That(t, r.right.WheelSpeed(), test.ShouldEqual, 360.0)

	reads := r.sensor.readTimes()
	test.That(t, r.clock.Now().Sub(reads[0]), test.ShouldBeGreaterThanOrEqualTo, 100*time.Millisecond)
}

func TestStepThresholdBoundary(t *testing.T) {
	for _, tc := range []struct {
		dist int
		want Action
	}{
		{0, Reverse},
		{39, Reverse},
		{40, Forward},
		{41, Forward},
	} {
		r := newRig(t, tc.dist)
		action, err := r.step(t)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, action, test.ShouldEqual, tc.want)
	}
}

func TestStepsArePaced(t *testing.T) {
	r := newRig(t, 100, 100, 10, 100)
	want := []Action{Forward, Forward, Reverse, Forward}
	for _, w := range want {
		action, err := r.step(t)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, action, test.ShouldEqual, w)
	}

	reads := r.sensor.readTimes()
	test.That(t, reads, test.ShouldHaveLength, 4)
	test.That(t, reads[1].Sub(reads[0]), test.ShouldBeBetweenOrEqual, 100*time.Millisecond, 100*time.Millisecond+pacingSlack)
	test.That(t, reads[2].Sub(reads[1]), test.ShouldBeBetweenOrEqual, 100*time.Millisecond, 100*time.Millisecond+pacingSlack)
	test.That(t, reads[3].Sub(reads[2]), test.ShouldBeBetweenOrEqual, 1100*time.Millisecond, 1100*time.Millisecond+2*pacingSlack)

	// forward steps never stop the motors
	var kinds []fakemotor.CommandKind
	for _, cmd := range r.left.Commands() {
		kinds = append(kinds, cmd.Kind)
	}
	test.That(t, kinds, test.ShouldResemble, []fakemotor.CommandKind{
		fakemotor.CommandRun, fakemotor.CommandRun, fakemotor.CommandRun, fakemotor.CommandStop, fakemotor.CommandRun,
	})
}

func TestStepSensorError(t *testing.T) {
	r := newRig(t, 100)
	r.sensor.errs = []error{errors.New("unplugged")}
	_, err := r.loop.Step(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "reading distance sensor front")
	test.That(t, err.Error(), test.ShouldContainSubstring, "unplugged")
	test.That(t, r.left.Commands(), test.ShouldBeEmpty)
}

func TestStepMotorError(t *testing.T) {
	r := newRig(t, 100)
	r.right.InjectError(errors.New("stalled"))
	_, err := r.loop.Step(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "running motor right at 360")
	test.That(t, err.Error(), test.ShouldContainSubstring, "stalled")
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRig(t, 500)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.loop.Run(ctx) }()

	waitForCommands(t, r.left, 1)
	r.clock.Add(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	for _, m := range []*fakemotor.Motor{r.left, r.right} {
		cmds := m.Commands()
		test.That(t, cmds[len(cmds)-1].Kind, test.ShouldEqual, fakemotor.CommandStop)
		moving, err := m.IsMoving(context.Background())
		test.That(t, err, test.ShouldBeNil)
		test.That(t, moving, test.ShouldBeFalse)
	}
}

func TestRunCancelDuringBackoff(t *testing.T) {
	r := newRig(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.loop.Run(ctx) }()

	waitForCommands(t, r.right, 1)
	r.clock.Add(500 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		test.That(t, err, test.ShouldBeNil)
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	cmds := r.right.Commands()
	test.That(t, cmds[0].Kind, test.ShouldEqual, fakemotor.CommandRun)
	test.That(t, cmds[0].Speed, test.ShouldEqual, -360.0)
	test.That(t, cmds[1].Kind, test.ShouldEqual, fakemotor.CommandStop)
	test.That(t, cmds[1].At.Sub(cmds[0].At), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, r.sensor.readTimes(), test.ShouldHaveLength, 1)
}

func TestRunAlreadyCancelled(t *testing.T) {
	r := newRig(t, 500)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, r.loop.Run(ctx), test.ShouldBeNil)
	test.That(t, r.sensor.readTimes(), test.ShouldBeEmpty)
	test.That(t, r.left.Commands()[0].Kind, test.ShouldEqual, fakemotor.CommandStop)
}

func TestRunDeviceErrorStopsMotors(t *testing.T) {
	r := newRig(t, 500)
	r.sensor.errs = []error{nil, nil, errors.New("unplugged")}

	var err error
	r.drive(t, func() { err = r.loop.Run(context.Background()) })
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "unplugged")
	test.That(t, r.sensor.readTimes(), test.ShouldHaveLength, 3)

	for _, m := range []*fakemotor.Motor{r.left, r.right} {
		cmds := m.Commands()
		test.That(t, cmds, test.ShouldHaveLength, 3)
		test.That(t, cmds[2].Kind, test.ShouldEqual, fakemotor.CommandStop)
	}
}

func TestRunCombinesStopErrors(t *testing.T) {
	r := newRig(t, 500)
	r.left.InjectError(errors.New("stalled"))

	err := r.loop.Run(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "running motor left")
	test.That(t, err.Error(), test.ShouldContainSubstring, "stopping motor left")
	// right was never started but is still told to stop
	test.That(t, r.right.Commands()[0].Kind, test.ShouldEqual, fakemotor.CommandStop)
}

func TestNewLoopValidation(t *testing.T) {
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	left := fakemotor.NewMotor("left", false, clk, logger)
	right := fakemotor.NewMotor("right", false, clk, logger)
	s := &scriptedSensor{clock: clk, readings: []int{100}}

	_, err := NewLoop(DefaultConfig(), nil, right, s, clk, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewLoop(DefaultConfig(), left, right, nil, clk, logger)
	test.That(t, err, test.ShouldNotBeNil)

	for _, mutate := range []func(*Config){
		func(c *Config) { c.ThresholdMM = 0 },
		func(c *Config) { c.Speed = -360 },
		func(c *Config) { c.ReverseDuration = 0 },
		func(c *Config) { c.PollPeriod = -time.Second },
	} {
		cfg := DefaultConfig()
		mutate(&cfg)
		_, err := NewLoop(cfg, left, right, s, clk, logger)
		test.That(t, err, test.ShouldNotBeNil)
	}

	loop, err := NewLoop(DefaultConfig(), left, right, s, nil, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, loop.clock, test.ShouldNotBeNil)
}

func TestConfigFromAvoidance(t *testing.T) {
	cfg := ConfigFromAvoidance(config.Avoidance{ThresholdMM: 55, Speed: 500, ReverseMS: 1500, PollMS: 50})
	test.That(t, cfg, test.ShouldResemble, Config{
		ThresholdMM:     55,
		Speed:           500,
		ReverseDuration: 1500 * time.Millisecond,
		PollPeriod:      50 * time.Millisecond,
	})
	test.That(t, DefaultConfig(), test.ShouldResemble, Config{
		ThresholdMM:     40,
		Speed:           360,
		ReverseDuration: time.Second,
		PollPeriod:      100 * time.Millisecond,
	})
}

func TestActionString(t *testing.T) {
	test.That(t, Forward.String(), test.ShouldEqual, "forward")
	test.That(t, Reverse.String(), test.ShouldEqual, "reverse")
	test.That(t, Action(7).String(), test.ShouldEqual, "unknown")
}
