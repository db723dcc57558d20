package logbook

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/diveroast/internal/models"
)

const sampleLog = `<divelog program='subsurface' version='3'>
<divesites>
<site uuid='4a1' name='Blue Hole' gps='27.5 34.5'/>
<site uuid='4a2' name='Walensee'/>
</divesites>
<dives>
<trip location='Dahab'>
<dive number='10' divesiteid='4a1' rating='2' sac='18.5 l/min' tags='current, drift'>
<cylinder size='15.0 l' workpressure='232.0 bar'/>
<divecomputer model='Shearwater'>
<sample time='0:00 min' depth='0.0 m' temp='24.0 C' pressure='200.0 bar' ndl='99:00 min'/>
<sample time='1:00 min' depth='20.0 m'/>
<sample time='2:00 min' depth='30.5 m' ndl='8:00 min' pressure='180.0 bar'/>
</divecomputer>
<divecomputer model='Backup'>
<sample time='0:30 min' depth='5.0 m'/>
</divecomputer>
</dive>
</trip>
<dive number='2' divesiteid='4a2'>
<divecomputer>
<sample time='0:00 min' depth='0.0 m'/>
<sample time='0:20 min' depth='4.0 m' pressure0='190.0 bar'/>
</divecomputer>
</dive>
</dives>
</divelog>`

func TestSubsurfaceDecode(t *testing.T) {
	dives, err := Subsurface{}.Decode(strings.NewReader(sampleLog))
	require.NoError(t, err)
	require.Len(t, dives, 2)

	// Ordered numerically, not by document order.
	assert.Equal(t, "2", dives[0].ID)
	assert.Equal(t, "10", dives[1].ID)

	d := dives[1]
	assert.Equal(t, "Blue Hole", d.Site)
	assert.Equal(t, "Dahab", d.Trip)
	assert.Equal(t, 2, d.Rating)
	require.NotNil(t, d.ReportedSAC)
	assert.InDelta(t, 18.5, *d.ReportedSAC, 1e-9)
	assert.InDelta(t, 15.0, d.CylinderLiters, 1e-9)
	assert.Equal(t, []string{"current", "drift"}, d.Tags)
	require.True(t, d.HasCoordinates())
	assert.InDelta(t, 27.5, *d.Latitude, 1e-9)

	require.Len(t, d.Samples, 3, "only the first dive computer is used")
	assert.InDelta(t, 120.0, d.Samples[2].Elapsed, 1e-9)
	assert.InDelta(t, 30.5, d.Samples[2].Depth, 1e-9)
	require.NotNil(t, d.Samples[2].NDL)
	assert.InDelta(t, 8.0, *d.Samples[2].NDL, 1e-9)
	require.NotNil(t, d.Samples[0].Temperature)
	assert.Nil(t, d.Samples[1].Temperature)

	shallow := dives[0]
	assert.Equal(t, "Walensee", shallow.Site)
	assert.False(t, shallow.HasCoordinates())
	require.NotNil(t, shallow.Samples[1].Pressure)
	assert.InDelta(t, 190.0, *shallow.Samples[1].Pressure, 1e-9)
}

func TestSubsurfaceDecode_Errors(t *testing.T) {
	wrap := func(dives string) string {
		return "<divelog><dives>" + dives + "</dives></divelog>"
	}
	tests := []struct {
		name   string
		input  string
		diveID string
		reason string
	}{
		{
			name:   "malformed xml",
			input:  "<divelog><dives>",
			reason: "malformed XML",
		},
		{
			name:   "no dives",
			input:  wrap(""),
			reason: "no dives found",
		},
		{
			name: "non-monotonic time",
			input: wrap(`<dive number='1'><divecomputer>
<sample time='1:00 min' depth='5.0 m'/><sample time='0:30 min' depth='6.0 m'/>
</divecomputer></dive>`),
			diveID: "1",
			reason: "non-monotonic time",
		},
		{
			name: "missing depth",
			input: wrap(`<dive number='3'><divecomputer>
<sample time='0:00 min'/></divecomputer></dive>`),
			diveID: "3",
			reason: "missing depth",
		},
		{
			name: "invalid depth",
			input: wrap(`<dive number='3'><divecomputer>
<sample time='0:00 min' depth='deep'/></divecomputer></dive>`),
			diveID: "3",
			reason: "invalid depth",
		},
		{
			name: "nan depth",
			input: wrap(`<dive number='4'><divecomputer>
<sample time='0:00 min' depth='0.0 m'/><sample time='1:00 min' depth='NaN m'/></divecomputer></dive>`),
			diveID: "4",
			reason: "invalid depth",
		},
		{
			name: "infinite depth",
			input: wrap(`<dive number='4'><divecomputer>
<sample time='0:00 min' depth='-Inf m'/></divecomputer></dive>`),
			diveID: "4",
			reason: "invalid depth",
		},
		{
			name: "nan time",
			input: wrap(`<dive number='5'><divecomputer>
<sample time='NaN' depth='1.0 m'/></divecomputer></dive>`),
			diveID: "5",
			reason: "invalid time",
		},
		{
			name:   "duplicate number",
			input:  wrap(`<dive number='1'/><dive number='1'/>`),
			diveID: "1",
			reason: "duplicate dive number",
		},
		{
			name:   "missing number",
			input:  wrap(`<dive/>`),
			reason: "has no number",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Subsurface{}.Decode(strings.NewReader(tt.input))
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrParse))

			var pe *models.ParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.diveID, pe.DiveID)
			assert.Contains(t, pe.Reason, tt.reason)
		})
	}
}

func TestForFile(t *testing.T) {
	for _, name := range []string{"log.ssrf", "LOG.XML"} {
		d, err := ForFile(name)
		require.NoError(t, err, name)
		assert.IsType(t, Subsurface{}, d)
	}

	_, err := ForFile("log.fit")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrParse)
}

func TestClockSeconds(t *testing.T) {
	tests := map[string]float64{
		"0:20 min":  20,
		"45:00 min": 2700,
		"1:02:03":   3723,
		"2.5":       150,
	}
	for in, want := range tests {
		got, ok := clockSeconds(in)
		require.True(t, ok, in)
		assert.InDelta(t, want, got, 1e-9, in)
	}

	for _, in := range []string{"ab:cd", "NaN", "+Inf min"} {
		_, ok := clockSeconds(in)
		assert.False(t, ok, in)
	}
}

func TestSubsurfaceDecode_NonFiniteOptionals(t *testing.T) {
	log := `<divelog><divesites><site uuid='1' name='Reef' gps='NaN 34.5'/></divesites><dives>
<dive number='7' divesiteid='1' sac='Inf l/min'><divecomputer>
<sample time='0:00 min' depth='0.0 m' temp='NaN C' pressure='Inf bar'/>
<sample time='1:00 min' depth='10.0 m' temp='20.0 C' pressure='190.0 bar'/>
</divecomputer></dive></dives></divelog>`

	dives, err := Subsurface{}.Decode(strings.NewReader(log))
	require.NoError(t, err)
	require.Len(t, dives, 1)

	d := dives[0]
	assert.Nil(t, d.ReportedSAC)
	assert.Nil(t, d.Latitude)
	require.Len(t, d.Samples, 2)
	assert.Nil(t, d.Samples[0].Temperature)
	assert.Nil(t, d.Samples[0].Pressure)
	require.NotNil(t, d.Samples[1].Temperature)
	assert.Equal(t, 20.0, *d.Samples[1].Temperature)
}
