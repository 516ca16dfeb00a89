package strategy

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/bessim/core/model"
)

func testBattery(t *testing.T, power, duration float64) model.Battery {
	t.Helper()
	b, err := model.DefaultCatalog().Resolve(model.Configuration{
		PowerMW: power, DurationHours: duration,
		Technology: model.TechModernLFP, Topology: model.TopologyParallelAC,
	})
	require.NoError(t, err)
	return b
}

func hour(h float64) *float64 { return &h }

func TestParseKind(t *testing.T) {
	for _, k := range Kinds() {
		got, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("round_robin")
	assert.ErrorIs(t, err, model.ErrConfiguration)
	assert.Equal(t, "unknown", Kind(42).String())
}

func TestKindJSON(t *testing.T) {
	b, err := json.Marshal(New(CyclingDemo))
	require.NoError(t, err)
	var s Strategy
	require.NoError(t, json.Unmarshal(b, &s))
	assert.Equal(t, CyclingDemo, s.Kind)
	assert.Equal(t, 2, s.Params.SubWindowSteps)
}

func TestTimeShiftWindows(t *testing.T) {
	b := testBattery(t, 1, 4)
	solar := make([]float64, 24)
	for i := 6; i < 18; i++ {
		solar[i] = 3
	}
	p, err := Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1, StartHour: hour(0)})
	require.NoError(t, err)

	// day: charge limited by rating
	assert.Equal(t, -1.0, p.Request(10, 0.5))
	// night at 18h: 12 hours remain, energy is spread over the window
	deliverable := 0.4 * 4 * b.LegEfficiency()
	assert.InDelta(t, deliverable/12, p.Request(18, 0.5), 1e-12)
	// last night hour may use the rating
	assert.InDelta(t, 1.0, p.Request(5, 0.9), 1e-12)
	// empty battery requests nothing
	assert.Zero(t, p.Request(20, b.SOCMin()))
}

func TestTimeShiftStartHour(t *testing.T) {
	b := testBattery(t, 1, 4)
	solar := []float64{1, 1}
	p, err := Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1, StartHour: hour(6)})
	require.NoError(t, err)
	assert.Equal(t, -1.0, p.Request(0, 0.5))

	p, err = Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1, StartHour: hour(2)})
	require.NoError(t, err)
	assert.Greater(t, p.Request(0, 0.5), 0.0)

	// midnight is an explicit start, not an unset one
	p, err = Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1, StartHour: hour(0)})
	require.NoError(t, err)
	assert.Equal(t, 0.0, p.StartHour())
	assert.Greater(t, p.Request(0, 0.5), 0.0)

	_, err = Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1, StartHour: hour(math.Inf(1))})
	assert.ErrorIs(t, err, model.ErrConfiguration)
}

func TestTimeShiftUnsetStartOpensDayWindow(t *testing.T) {
	b := testBattery(t, 1, 4)
	solar := []float64{1, 1}
	p, err := Bind(New(TimeShiftAggressive), model.Inputs{Solar: solar}, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.Equal(t, DefaultParams().DayStartHour, p.StartHour())
	assert.Equal(t, -1.0, p.Request(0, 0.5))

	s := New(TimeShiftAggressive)
	s.Params.DayStartHour, s.Params.DayEndHour = 9, 15
	s.Params.NightStartHour, s.Params.NightEndHour = 15, 9
	p, err = Bind(s, model.Inputs{Solar: solar}, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.Equal(t, 9.0, p.StartHour())
	assert.Equal(t, -1.0, p.Request(0, 0.5))
}

func TestSmoothingAutoGain(t *testing.T) {
	b := testBattery(t, 2, 2)
	solar := []float64{0, 4, 4, 1}
	p, err := Bind(New(SolarSmoothing), model.Inputs{Solar: solar}, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, p.Params().Alpha, 1e-12)
	assert.Zero(t, p.Request(0, 0.5))
	assert.InDelta(t, -2.0, p.Request(1, 0.5), 1e-12)
	assert.Zero(t, p.Request(2, 0.5))
	assert.InDelta(t, 1.5, p.Request(3, 0.5), 1e-12)
}

func TestSmoothingGentleRampUsesUnitGain(t *testing.T) {
	b := testBattery(t, 5, 2)
	p, err := Bind(New(SolarSmoothing), model.Inputs{Solar: []float64{0, 1, 2}}, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Params().Alpha)
}

func TestCyclingDemo(t *testing.T) {
	b := testBattery(t, 3, 1)
	p, err := Bind(New(CyclingDemo), model.Inputs{Solar: make([]float64, 8)}, b, Env{DtHours: 1})
	require.NoError(t, err)
	want := []float64{-3, -3, 3, 3, -3, -3, 3, 3}
	for i, w := range want {
		assert.Equal(t, w, p.Request(i, 0.5), "step %d", i)
	}
}

func TestFrequencyRegulation(t *testing.T) {
	b := testBattery(t, 4, 1)
	in := model.Inputs{Solar: make([]float64, 4), Frequency: []float64{-0.1, 0.05, -1, 1}}
	p, err := Bind(New(FrequencyRegulation), in, b, Env{DtHours: 1})
	require.NoError(t, err)
	// default droop: 0.25*4 MW at 0.2 Hz => 5 MW/Hz
	assert.InDelta(t, 0.5, p.Request(0, 0.5), 1e-12)
	assert.InDelta(t, -0.25, p.Request(1, 0.5), 1e-12)
	assert.InDelta(t, 1.0, p.Request(2, 0.5), 1e-12)
	assert.InDelta(t, -1.0, p.Request(3, 0.5), 1e-12)
}

func TestArbitrageThresholds(t *testing.T) {
	b := testBattery(t, 1, 2)
	in := model.Inputs{Solar: make([]float64, 4), Price: []float64{10, 20, 30, 40}}
	p, err := Bind(New(ArbitrageAggressive), in, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.Equal(t, 10.0, p.Params().LowPrice)
	assert.Equal(t, 30.0, p.Params().HighPrice)
	assert.Zero(t, p.Request(0, 0.5))
	assert.Zero(t, p.Request(2, 0.5))
	assert.Equal(t, 1.0, p.Request(3, 0.5))

	s := New(ArbitrageAggressive)
	s.Params.LowPrice, s.Params.HighPrice = 15, 35
	p, err = Bind(s, in, b, Env{DtHours: 1})
	require.NoError(t, err)
	assert.Equal(t, -1.0, p.Request(0, 0.5))
	assert.Equal(t, 1.0, p.Request(3, 0.5))
}

func TestBindErrors(t *testing.T) {
	b := testBattery(t, 1, 1)
	solar := make([]float64, 3)
	cases := map[string]struct {
		s  Strategy
		in model.Inputs
	}{
		"missing frequency": {New(FrequencyRegulation), model.Inputs{Solar: solar}},
		"missing price":     {New(ArbitrageAggressive), model.Inputs{Solar: solar}},
		"short price":       {New(ArbitrageAggressive), model.Inputs{Solar: solar, Price: []float64{1}}},
		"unknown kind":      {Strategy{Kind: Kind(9)}, model.Inputs{Solar: solar}},
		"bad window":        {Strategy{Kind: TimeShiftAggressive, Params: Params{DayEndHour: 30}}, model.Inputs{Solar: solar}},
		"zero sub window":   {Strategy{Kind: CyclingDemo}, model.Inputs{Solar: solar}},
		"negative solar":    {New(CyclingDemo), model.Inputs{Solar: []float64{1, -1, 0}}},
		"inverted bands": {
			Strategy{Kind: ArbitrageAggressive, Params: Params{LowPrice: 5, HighPrice: 1}},
			model.Inputs{Solar: solar, Price: solar},
		},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Bind(c.s, c.in, b, Env{DtHours: 1})
			assert.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)
		})
	}
	_, err := Bind(New(CyclingDemo), model.Inputs{Solar: solar}, b, Env{})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestInWindow(t *testing.T) {
	assert.True(t, inWindow(6, 6, 18))
	assert.False(t, inWindow(18, 6, 18))
	assert.True(t, inWindow(23, 18, 6))
	assert.True(t, inWindow(0, 18, 6))
	assert.False(t, inWindow(6, 18, 6))
	assert.False(t, inWindow(3, 5, 5))
	assert.False(t, math.IsNaN(smoothingGain(nil, 1)))
}
