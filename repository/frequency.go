package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/you/rtps/apps/api/internal/metrics"
	"github.com/you/rtps/apps/api/models"
)

// Table names, used for error context and metrics labels
const (
	TableZone    = "f_zone"
	TableBus     = "f_bus"
	TableRail    = "f_rail"
	TableTransit = "f_existing"
)

const zoneQuery = `
	WITH a AS (
		SELECT zonenum,
			basescen AS tBase,
			x2tfreqsc AS tDouble,
			changetact AS tActual,
			percchange AS tPercent
		FROM "f_zonet"
	)
	SELECT "f_zonev".zonenum,
		"f_zonev".basescen AS vBase,
		"f_zonev".x2tfreqsc AS vDouble,
		"f_zonev".changevact AS vActual,
		"f_zonev".percchange AS vPercent,
		a.tBase AS tBase,
		a.tDouble AS tDouble,
		a.tActual AS tActual,
		a.tPercent AS tPercent
	FROM "f_zonev"
	JOIN a ON "f_zonev".zonenum = a.zonenum
`

const (
	busQuery     = `SELECT linename, changeride, percchange FROM f_bus`
	railQuery    = `SELECT linename, changeride, percchange FROM f_rail`
	transitQuery = `SELECT linename, ampeakfreq, avg_freq FROM f_existing`
)

// FrequencyRepository loads the frequency datasets. Every loader returns
// ErrNoResults for an empty result and a *QueryError for any other failure.
type FrequencyRepository struct {
	connector Connector
	timeout   time.Duration
}

// NewFrequencyRepository creates a repository over the given connector.
// A zero timeout leaves query deadlines to the caller's context.
func NewFrequencyRepository(connector Connector, timeout time.Duration) *FrequencyRepository {
	return &FrequencyRepository{connector: connector, timeout: timeout}
}

// Ping checks database connectivity
func (r *FrequencyRepository) Ping(ctx context.Context) error {
	return r.connector.Ping(ctx)
}

// LoadZones returns zone frequency scenarios keyed by zone number
func (r *FrequencyRepository) LoadZones(ctx context.Context) (map[int]models.ZoneFrequency, error) {
	rows, err := r.fetch(ctx, TableZone, zoneQuery, 9)
	if err != nil {
		return nil, err
	}

	return keyed(rows, TableZone, func(row []any) (int, models.ZoneFrequency, error) {
		zone, err := toFloat(row[0])
		if err != nil {
			return 0, models.ZoneFrequency{}, fmt.Errorf("zonenum: %w", err)
		}
		v, err := roundedFloats(row[1:])
		if err != nil {
			return 0, models.ZoneFrequency{}, err
		}
		return models.RoundKey(zone), models.ZoneFrequency{
			VBase:    v[0],
			VDouble:  v[1],
			VActual:  v[2],
			VPercent: v[3],
			TBase:    v[4],
			TDouble:  v[5],
			TActual:  v[6],
			TPercent: v[7],
		}, nil
	})
}

// LoadBusLines returns bus ridership changes in query order
func (r *FrequencyRepository) LoadBusLines(ctx context.Context) ([]models.BusLine, error) {
	rows, err := r.fetch(ctx, TableBus, busQuery, 3)
	if err != nil {
		return nil, err
	}

	lines := make([]models.BusLine, 0, len(rows))
	for _, row := range rows {
		var name *string
		if row[0] != nil {
			s, err := toKeyString(row[0])
			if err != nil {
				return nil, decodeError(TableBus, fmt.Errorf("linename: %w", err))
			}
			name = &s
		}
		v, err := roundedFloats(row[1:])
		if err != nil {
			return nil, decodeError(TableBus, err)
		}
		lines = append(lines, models.BusLine{LineName: name, AbsChange: v[0], Percent: v[1]})
	}
	return lines, nil
}

// LoadRailLines returns rail ridership changes keyed by line name.
// A NULL name is keyed as "null".
func (r *FrequencyRepository) LoadRailLines(ctx context.Context) (map[string]models.RailLine, error) {
	rows, err := r.fetch(ctx, TableRail, railQuery, 3)
	if err != nil {
		return nil, err
	}

	return keyed(rows, TableRail, func(row []any) (string, models.RailLine, error) {
		name, v, err := namedRow(row, railNullKey)
		if err != nil {
			return "", models.RailLine{}, err
		}
		return name, models.RailLine{Absolute: v[0], Percent: v[1]}, nil
	})
}

// LoadTransitLines returns existing service frequencies keyed by line name.
// Numeric line names are rendered as strings; a NULL name becomes "None".
func (r *FrequencyRepository) LoadTransitLines(ctx context.Context) (map[string]models.TransitLine, error) {
	rows, err := r.fetch(ctx, TableTransit, transitQuery, 3)
	if err != nil {
		return nil, err
	}

	return keyed(rows, TableTransit, func(row []any) (string, models.TransitLine, error) {
		name, v, err := namedRow(row, transitNullKey)
		if err != nil {
			return "", models.TransitLine{}, err
		}
		return name, models.TransitLine{AMPeak: v[0], AvgFreq: v[1]}, nil
	})
}

// fetch runs query on a scoped connection and returns every row as positional values.
// The connection is released before fetch returns.
func (r *FrequencyRepository) fetch(ctx context.Context, table, query string, columns int) (result [][]any, err error) {
	start := time.Now()
	defer func() {
		metrics.ObserveQuery(table, outcome(err), time.Since(start))
	}()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	conn, err := r.connector.Acquire(ctx)
	if err != nil {
		return nil, withTable(err, table)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query)
	if err != nil {
		return nil, withTable(err, table)
	}
	defer rows.Close()

	for rows.Next() {
		values := make([]any, columns)
		dest := make([]any, columns)
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, decodeError(table, fmt.Errorf("failed to scan row: %w", err))
		}
		result = append(result, values)
	}

	if err := rows.Err(); err != nil {
		return nil, withTable(err, table)
	}

	if len(result) == 0 {
		return nil, ErrNoResults
	}

	return result, nil
}

// keyed reshapes rows into a mapping; a later row replaces an earlier one with the same key
func keyed[K comparable, V any](rows [][]any, table string, mapRow func([]any) (K, V, error)) (map[K]V, error) {
	out := make(map[K]V, len(rows))
	for _, row := range rows {
		k, v, err := mapRow(row)
		if err != nil {
			return nil, decodeError(table, err)
		}
		out[k] = v
	}
	return out, nil
}

// Keys used for a NULL line name. Rail keys go through JSON key encoding of
// a null, transit keys through string coercion.
const (
	railNullKey    = "null"
	transitNullKey = "None"
)

func namedRow(row []any, nullKey string) (string, []float64, error) {
	name := nullKey
	if row[0] != nil {
		s, err := toKeyString(row[0])
		if err != nil {
			return "", nil, fmt.Errorf("linename: %w", err)
		}
		name = s
	}
	v, err := roundedFloats(row[1:])
	if err != nil {
		return "", nil, err
	}
	return name, v, nil
}

// roundedFloats rounds every value to two decimals. NUMERIC values are
// rounded exactly in decimal, everything else on its float64 value.
func roundedFloats(values []any) ([]float64, error) {
	out := make([]float64, len(values))
	for i, value := range values {
		if n, ok := value.(pgtype.Numeric); ok {
			d, err := numericDecimal(n)
			if err != nil {
				return nil, fmt.Errorf("column %d: %w", i+1, err)
			}
			out[i] = models.RoundDecimal(d)
			continue
		}
		f, err := toFloat(value)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i+1, err)
		}
		out[i] = models.Round2(f)
	}
	return out, nil
}

// numericDecimal converts a finite, non-NULL NUMERIC to an exact decimal
func numericDecimal(n pgtype.Numeric) (decimal.Decimal, error) {
	switch {
	case !n.Valid:
		return decimal.Decimal{}, errors.New("null value")
	case n.NaN:
		return decimal.Decimal{}, errors.New("non-finite value NaN")
	case n.InfinityModifier != pgtype.Finite:
		return decimal.Decimal{}, fmt.Errorf("non-finite value %s", n.InfinityModifier)
	case n.Int == nil:
		return decimal.Zero, nil
	}
	return decimal.NewFromBigInt(n.Int, n.Exp), nil
}

// toFloat converts a scanned column value to float64
func toFloat(value any) (float64, error) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, errors.New("null value")
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int64:
		f = float64(v)
	case int32:
		f = float64(v)
	case int16:
		f = float64(v)
	case int:
		f = float64(v)
	case pgtype.Numeric:
		f8, err := v.Float64Value()
		if err != nil {
			return 0, err
		}
		if !f8.Valid {
			return 0, errors.New("null value")
		}
		f = f8.Float64
	case []byte:
		parsed, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", v)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", value)
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

// toKeyString renders a line name the way it appears as a mapping key:
// integers in decimal, NUMERIC with its scale kept ("40.50"), floats in
// shortest round-trip form with a trailing ".0" when integral.
func toKeyString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int:
		return strconv.Itoa(v), nil
	case float64:
		return formatFloatKey(v), nil
	case float32:
		return formatFloatKey(float64(v)), nil
	case pgtype.Numeric:
		d, err := numericDecimal(v)
		if err != nil {
			return "", err
		}
		if v.Exp < 0 {
			return d.StringFixed(-v.Exp), nil
		}
		return d.String(), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("unsupported type %T", value)
	}
}

// formatFloatKey uses exponent form only when the decimal exponent is
// below -4 or at least 16, so 1234567.5 stays "1234567.5" and 1e16 is "1e+16".
func formatFloatKey(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	if math.IsInf(f, 0) {
		if f < 0 {
			return "-inf"
		}
		return "inf"
	}

	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, err := strconv.Atoi(e[strings.LastIndexByte(e, 'e')+1:])
	if err == nil && (exp < -4 || exp >= 16) {
		return e
	}

	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}

func decodeError(table string, err error) error {
	return &QueryError{Kind: KindDecode, Table: table, Err: err}
}

// withTable attaches the table to a connector error, treating unknown errors as transport failures
func withTable(err error, table string) error {
	var qe *QueryError
	if errors.As(err, &qe) {
		qe.Table = table
		return qe
	}
	return &QueryError{Kind: KindTransport, Table: table, Err: err}
}

func outcome(err error) string {
	var qe *QueryError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoResults):
		return "empty"
	case errors.As(err, &qe):
		return string(qe.Kind)
	default:
		return "error"
	}
}
