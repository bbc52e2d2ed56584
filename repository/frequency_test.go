package repository

import (
	"context"
	"errors"
	"math"
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you/rtps/apps/api/internal/metrics"
	"github.com/you/rtps/apps/api/models"
)

var schema = []string{
	`CREATE TABLE f_zonet (zonenum, basescen REAL, x2tfreqsc REAL, changetact REAL, percchange REAL)`,
	`CREATE TABLE f_zonev (zonenum, basescen REAL, x2tfreqsc REAL, changevact REAL, percchange REAL)`,
	`CREATE TABLE f_bus (linename TEXT, changeride REAL, percchange REAL)`,
	`CREATE TABLE f_rail (linename TEXT, changeride REAL, percchange REAL)`,
	`CREATE TABLE f_existing (linename, ampeakfreq REAL, avg_freq REAL)`,
}

// newTestRepository opens a file-backed SQLite database, applies the schema
// and any extra statements, and returns a repository over it.
func newTestRepository(t *testing.T, statements ...string) (*FrequencyRepository, *SQLiteConnector) {
	t.Helper()
	ctx := context.Background()

	connector, err := NewSQLiteConnector(ctx, filepath.Join(t.TempDir(), "rtps.db"))
	require.NoError(t, err)
	t.Cleanup(connector.Close)

	for _, stmt := range append(schema, statements...) {
		_, err := connector.db.ExecContext(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	return NewFrequencyRepository(connector, 5*time.Second), connector
}

func assertReleased(t *testing.T, connector *SQLiteConnector) {
	t.Helper()
	assert.Equal(t, 0, connector.db.Stats().InUse, "connection was not released")
}

func assertQueryError(t *testing.T, err error, kind ErrorKind, table string) {
	t.Helper()
	var qe *QueryError
	require.True(t, errors.As(err, &qe), "expected *QueryError, got %v", err)
	assert.Equal(t, kind, qe.Kind)
	assert.Equal(t, table, qe.Table)
}

func TestLoadZones(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_zonev VALUES (12, 100.0, 150.555, 98.2, 1.005)`,
		`INSERT INTO f_zonet VALUES (12, 90.0, 140.0, 95.0, 2.0)`,
		`INSERT INTO f_zonev VALUES (40.5, 1.111, 2.222, 3.333, 4.444)`,
		`INSERT INTO f_zonet VALUES (40.5, 5.555, 6.666, 7.777, 8.885)`,
		// no f_zonet partner, dropped by the join
		`INSERT INTO f_zonev VALUES (99, 1, 1, 1, 1)`,
	)

	zones, err := repo.LoadZones(context.Background())
	require.NoError(t, err)
	assertReleased(t, connector)

	require.Len(t, zones, 2)
	assert.Equal(t, models.ZoneFrequency{
		VBase:    100.0,
		VDouble:  150.56,
		VActual:  98.2,
		VPercent: 1.0,
		TBase:    90.0,
		TDouble:  140.0,
		TActual:  95.0,
		TPercent: 2.0,
	}, zones[12])

	// 40.5 rounds half to even; 5.555 is stored just below the tie
	assert.Equal(t, models.ZoneFrequency{
		VBase:    1.11,
		VDouble:  2.22,
		VActual:  3.33,
		VPercent: 4.44,
		TBase:    5.55,
		TDouble:  6.67,
		TActual:  7.78,
		TPercent: 8.88,
	}, zones[40])
}

func TestLoadBusLinesPreservesOrderAndDuplicates(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_bus VALUES ('23', 120.456, 3.14159)`,
		`INSERT INTO f_bus VALUES ('17', -5.5, -0.125)`,
		`INSERT INTO f_bus VALUES ('23', 1, 2)`,
		`INSERT INTO f_bus VALUES (NULL, 0, 0)`,
	)

	lines, err := repo.LoadBusLines(context.Background())
	require.NoError(t, err)
	assertReleased(t, connector)

	require.Len(t, lines, 4)
	assert.Equal(t, "23", *lines[0].LineName)
	assert.Equal(t, 120.46, lines[0].AbsChange)
	assert.Equal(t, 3.14, lines[0].Percent)
	assert.Equal(t, "17", *lines[1].LineName)
	assert.Equal(t, -5.5, lines[1].AbsChange)
	assert.Equal(t, -0.12, lines[1].Percent)
	assert.Equal(t, "23", *lines[2].LineName)
	assert.Nil(t, lines[3].LineName)
}

func TestLoadRailLines(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_rail VALUES ('Paoli/Thorndale', 1234.567, 12.345)`,
		`INSERT INTO f_rail VALUES ('Trenton', -10, -0.5)`,
		`INSERT INTO f_rail VALUES ('Trenton', 20, 0.75)`,
	)

	lines, err := repo.LoadRailLines(context.Background())
	require.NoError(t, err)
	assertReleased(t, connector)

	assert.Equal(t, map[string]models.RailLine{
		"Paoli/Thorndale": {Absolute: 1234.57, Percent: 12.35},
		"Trenton":         {Absolute: 20, Percent: 0.75},
	}, lines)
}

func TestLoadTransitLinesStringKeys(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_existing VALUES (12, 7.456, 10.001)`,
		`INSERT INTO f_existing VALUES (7.0, 15, 20)`,
		`INSERT INTO f_existing VALUES ('MFL', 4.5, 6.25)`,
	)

	lines, err := repo.LoadTransitLines(context.Background())
	require.NoError(t, err)
	assertReleased(t, connector)

	assert.Equal(t, map[string]models.TransitLine{
		"12":  {AMPeak: 7.46, AvgFreq: 10.0},
		"7.0": {AMPeak: 15, AvgFreq: 20},
		"MFL": {AMPeak: 4.5, AvgFreq: 6.25},
	}, lines)
}

func TestLoadLinesNullNames(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_rail VALUES (NULL, 2.675, 0.285)`,
		`INSERT INTO f_existing VALUES (NULL, 1.115, 2)`,
	)
	ctx := context.Background()

	rail, err := repo.LoadRailLines(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.RailLine{"null": {Absolute: 2.67, Percent: 0.28}}, rail)

	transit, err := repo.LoadTransitLines(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]models.TransitLine{"None": {AMPeak: 1.11, AvgFreq: 2}}, transit)

	assertReleased(t, connector)
}

func TestLoadersNoResults(t *testing.T) {
	repo, connector := newTestRepository(t)
	ctx := context.Background()

	before := testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(TableBus, "empty"))

	_, err := repo.LoadZones(ctx)
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = repo.LoadBusLines(ctx)
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = repo.LoadRailLines(ctx)
	assert.ErrorIs(t, err, ErrNoResults)
	_, err = repo.LoadTransitLines(ctx)
	assert.ErrorIs(t, err, ErrNoResults)

	assertReleased(t, connector)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.QueriesTotal.WithLabelValues(TableBus, "empty")))
}

func TestLoadersQueryError(t *testing.T) {
	repo, connector := newTestRepository(t,
		`DROP TABLE f_zonet`,
		`DROP TABLE f_bus`,
		`DROP TABLE f_rail`,
		`DROP TABLE f_existing`,
	)
	ctx := context.Background()

	_, err := repo.LoadZones(ctx)
	assertQueryError(t, err, KindQuery, TableZone)
	_, err = repo.LoadBusLines(ctx)
	assertQueryError(t, err, KindQuery, TableBus)
	_, err = repo.LoadRailLines(ctx)
	assertQueryError(t, err, KindQuery, TableRail)
	_, err = repo.LoadTransitLines(ctx)
	assertQueryError(t, err, KindQuery, TableTransit)

	assertReleased(t, connector)
}

func TestLoadersDecodeError(t *testing.T) {
	repo, connector := newTestRepository(t,
		`INSERT INTO f_bus VALUES ('23', NULL, 1)`,
		`INSERT INTO f_rail VALUES ('Trenton', 'lots', 1)`,
		`INSERT INTO f_existing VALUES ('MFL', 'often', 1)`,
	)
	ctx := context.Background()

	_, err := repo.LoadBusLines(ctx)
	assertQueryError(t, err, KindDecode, TableBus)
	_, err = repo.LoadRailLines(ctx)
	assertQueryError(t, err, KindDecode, TableRail)
	_, err = repo.LoadTransitLines(ctx)
	assertQueryError(t, err, KindDecode, TableTransit)

	assertReleased(t, connector)
}

func TestLoadTransportError(t *testing.T) {
	repo, connector := newTestRepository(t)
	connector.Close()

	_, err := repo.LoadRailLines(context.Background())
	assertQueryError(t, err, KindTransport, TableRail)
}

func TestToFloat(t *testing.T) {
	tests := []struct {
		name     string
		in       any
		expected float64
		wantErr  bool
	}{
		{"float64", 1.5, 1.5, false},
		{"float32", float32(0.5), 0.5, false},
		{"int64", int64(12), 12, false},
		{"int32", int32(-3), -3, false},
		{"bytes", []byte("2.25"), 2.25, false},
		{"string", "7", 7, false},
		{"numeric", pgtype.Numeric{Int: big.NewInt(12345), Exp: -2, Valid: true}, 123.45, false},
		{"null", nil, 0, true},
		{"null numeric", pgtype.Numeric{}, 0, true},
		{"text", "often", 0, true},
		{"nan", math.NaN(), 0, true},
		{"bool", true, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := toFloat(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.expected, got, 1e-9)
		})
	}
}

func TestToKeyString(t *testing.T) {
	tests := []struct {
		in       any
		expected string
	}{
		{"R1", "R1"},
		{[]byte("MFL"), "MFL"},
		{int64(12), "12"},
		{int32(5), "5"},
		{12.0, "12.0"},
		{2.5, "2.5"},
		{1234567.5, "1234567.5"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{0.0001, "0.0001"},
		{1e-5, "1e-05"},
		{pgtype.Numeric{Int: big.NewInt(40), Exp: 0, Valid: true}, "40"},
		{pgtype.Numeric{Int: big.NewInt(4050), Exp: -2, Valid: true}, "40.50"},
		{pgtype.Numeric{Int: big.NewInt(4), Exp: 3, Valid: true}, "4000"},
	}

	for _, tc := range tests {
		got, err := toKeyString(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, got)
	}

	_, err := toKeyString(true)
	assert.Error(t, err)
	_, err = toKeyString(pgtype.Numeric{NaN: true, Valid: true})
	assert.Error(t, err)
}

func TestRoundedFloatsNumeric(t *testing.T) {
	numeric := func(v int64, exp int32) pgtype.Numeric {
		return pgtype.Numeric{Int: big.NewInt(v), Exp: exp, Valid: true}
	}

	// NUMERIC ties are exact and go to even; the float 2.675 sits below its tie
	got, err := roundedFloats([]any{numeric(2675, -3), numeric(5555, -3), numeric(12345, -3), 2.675})
	require.NoError(t, err)
	assert.Equal(t, []float64{2.68, 5.56, 12.34, 2.67}, got)

	_, err = roundedFloats([]any{pgtype.Numeric{}})
	assert.Error(t, err)
	_, err = roundedFloats([]any{pgtype.Numeric{NaN: true, Valid: true}})
	assert.Error(t, err)
	_, err = roundedFloats([]any{pgtype.Numeric{InfinityModifier: pgtype.Infinity, Valid: true}})
	assert.Error(t, err)
}
