package fake

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/hubrobotics/avoider/components/motor"
	fakemotor "github.com/hubrobotics/avoider/components/motor/fake"
	"github.com/hubrobotics/avoider/components/sensor"
	"github.com/hubrobotics/avoider/config"
	"github.com/hubrobotics/avoider/logging"
	"github.com/hubrobotics/avoider/registry"
)

func TestScriptedReadings(t *testing.T) {
	ctx := context.Background()
	s := NewScriptedSensor("front", []int{100, 39, 40}, logging.NewTestLogger(t))

	for _, want := range []int{100, 39, 40, 100} {
		got, err := s.Distance(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldEqual, want)
	}
	test.That(t, s.Reads(), test.ShouldEqual, 4)

	s.InjectError(errors.New("unplugged"))
	_, err := s.Distance(ctx)
	test.That(t, err, test.ShouldBeError, errors.New("unplugged"))
	s.InjectError(nil)

	test.That(t, s.Close(ctx), test.ShouldBeNil)
	_, err = s.Distance(ctx)
	test.That(t, err, test.ShouldBeError, sensor.NewClosedError("front"))
}

func TestNoReadings(t *testing.T) {
	s := NewScriptedSensor("front", nil, logging.NewTestLogger(t))
	_, err := s.Distance(context.Background())
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no readings")
}

func TestSimulatedWall(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	left := fakemotor.NewMotor("left", true, clk, logger)
	right := fakemotor.NewMotor("right", false, clk, logger)
	s := NewSimulatedSensor(
		"front",
		SimulatedConfig{StartMM: 500, MMPerSpeedSecond: 0.5, Motors: []string{"left", "right"}},
		[]CommandLog{left, right},
		clk,
		logger,
	)

	dist, err := s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 500)

	// forward at 360 for 2s closes 360mm
	test.That(t, left.Run(ctx, 360), test.ShouldBeNil)
	test.That(t, right.Run(ctx, 360), test.ShouldBeNil)
	clk.Add(2 * time.Second)
	dist, err = s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 140)

	// reversing for 1s then stopping backs off 180mm, regardless of when the next read is
	test.That(t, left.Run(ctx, -360), test.ShouldBeNil)
	test.That(t, right.Run(ctx, -360), test.ShouldBeNil)
	clk.Add(time.Second)
	test.That(t, left.Stop(ctx), test.ShouldBeNil)
	test.That(t, right.Stop(ctx), test.ShouldBeNil)
	clk.Add(5 * time.Second)
	dist, err = s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 320)

	// the wall never goes behind the sensor
	test.That(t, left.Run(ctx, 360), test.ShouldBeNil)
	test.That(t, right.Run(ctx, 360), test.ShouldBeNil)
	clk.Add(10 * time.Second)
	dist, err = s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 0)
}

func TestIntegrateSpeed(t *testing.T) {
	start := time.Unix(100, 0)
	commands := []fakemotor.Command{
		{Kind: fakemotor.CommandRun, Speed: 100, At: start.Add(-time.Second)},
		{Kind: fakemotor.CommandRun, Speed: -50, At: start.Add(time.Second)},
		{Kind: fakemotor.CommandStop, At: start.Add(3 * time.Second)},
		{Kind: fakemotor.CommandRun, Speed: 100, At: start.Add(10 * time.Second)},
	}
	test.That(t, integrateSpeed(commands, start, start.Add(5*time.Second)), test.ShouldAlmostEqual, 0.0)
	test.That(t, integrateSpeed(commands, start, start.Add(2*time.Second)), test.ShouldAlmostEqual, 50.0)
	test.That(t, integrateSpeed(nil, start, start.Add(time.Second)), test.ShouldEqual, 0.0)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantErrText string
	}{
		{name: "scripted", config: Config{Readings: []int{100}}},
		{
			name:   "simulated",
			config: Config{Simulated: &SimulatedConfig{StartMM: 300, Motors: []string{"left"}}},
		},
		{name: "empty", config: Config{}, wantErrText: "readings"},
		{
			name:        "both",
			config:      Config{Readings: []int{1}, Simulated: &SimulatedConfig{StartMM: 300, Motors: []string{"left"}}},
			wantErrText: "cannot both be set",
		},
		{name: "negative reading", config: Config{Readings: []int{1, -1}}, wantErrText: "readings.1"},
		{
			name:        "no start",
			config:      Config{Simulated: &SimulatedConfig{Motors: []string{"left"}}},
			wantErrText: "start_mm",
		},
		{
			name:        "no motors",
			config:      Config{Simulated: &SimulatedConfig{StartMM: 300}},
			wantErrText: "motors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate("distance_sensor.attributes")
			if tt.wantErrText != "" {
				test.That(t, err, test.ShouldNotBeNil)
				test.That(t, err.Error(), test.ShouldContainSubstring, tt.wantErrText)
			} else {
				test.That(t, err, test.ShouldBeNil)
			}
		})
	}
}

type notFakeMotor struct {
	motor.Motor
}

func TestRegisteredConstructor(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	clk := clock.NewMock()
	ctor := registry.DistanceSensorLookup(ModelName)
	test.That(t, ctor, test.ShouldNotBeNil)

	conf := config.Component{
		Name:       "front",
		Port:       config.PortC,
		Model:      ModelName,
		Attributes: config.AttributeMap{"readings": []interface{}{10, 50}},
	}
	s, err := ctor(ctx, registry.Dependencies{}, conf, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Name(), test.ShouldEqual, "front")
	dist, err := s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 10)

	left := fakemotor.NewMotor("left", false, clk, logger)
	conf.Attributes = config.AttributeMap{
		"simulated": map[string]interface{}{"start_mm": 250, "motors": []interface{}{"left"}},
	}
	s, err = ctor(ctx, registry.Dependencies{"left": left}, conf, clk, logger)
	test.That(t, err, test.ShouldBeNil)
	dist, err = s.Distance(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dist, test.ShouldEqual, 250)

	_, err = ctor(ctx, registry.Dependencies{}, conf, clk, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `motor "left" missing`)

	_, err = ctor(ctx, registry.Dependencies{"left": notFakeMotor{}}, conf, clk, logger)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not a fake motor")
}
