package persistence

import (
	"strconv"
	"strings"

	"github.com/MimeLyc/carshop-agent/internal/catalog"
)

// dialect covers the two SQL differences between the stores: placeholder
// syntax and the case-insensitive match operator.
type dialect struct {
	like string
	bind func(n int) string
}

var (
	sqliteDialect = dialect{
		like: "LIKE",
		bind: func(int) string { return "?" },
	}
	postgresDialect = dialect{
		like: "ILIKE",
		bind: func(n int) string { return "$" + strconv.Itoa(n) },
	}
)

const trimColumns = `trim_id, model_year, make, model, submodel, trim, description,
	msrp, invoice, body_type, body_seats, drive_type, transmission, engine_type,
	fuel_type, cylinders, horsepower_hp, torque_ft_lbs, city_mpg, highway_mpg,
	combined_mpg, image_url`

// orderColumns whitelists the sortable columns.
var orderColumns = map[string]string{
	"msrp":          "msrp",
	"combined_mpg":  "combined_mpg",
	"horsepower_hp": "horsepower_hp",
	"model":         "lower(model)",
}

type queryBuilder struct {
	d     dialect
	where []string
	args  []any
}

func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return b.d.bind(len(b.args))
}

func (b *queryBuilder) contains(column, needle string) string {
	return column + " " + b.d.like + " " + b.arg(likePattern(needle)) + ` ESCAPE '\'`
}

func (b *queryBuilder) addContains(column, needle string) {
	if needle == "" {
		return
	}
	b.where = append(b.where, b.contains(column, needle))
}

func (b *queryBuilder) addCompare(column, op string, v any) {
	b.where = append(b.where, column+" "+op+" "+b.arg(v))
}

func buildTrimQuery(d dialect, q catalog.TrimQuery) (string, []any) {
	b := &queryBuilder{d: d}

	if q.Text != "" {
		ors := make([]string, 0, 5)
		for _, col := range []string{"make", "model", "trim", "submodel", "description"} {
			ors = append(ors, b.contains(col, q.Text))
		}
		b.where = append(b.where, "("+strings.Join(ors, " OR ")+")")
	}
	b.addContains("model", q.Model)
	b.addContains("trim", q.Trim)
	b.addContains("body_type", q.BodyType)
	b.addContains("drive_type", q.DriveType)
	b.addContains("transmission", q.Transmission)
	b.addContains("engine_type", q.EngineType)
	b.addContains("fuel_type", q.FuelType)

	if q.ModelYear != nil {
		b.addCompare("model_year", "=", *q.ModelYear)
	}
	if q.Cylinders != nil {
		b.addCompare("cylinders", "=", *q.Cylinders)
	}
	if q.Seats != nil {
		b.addCompare("body_seats", "=", *q.Seats)
	}
	if q.SeatsMin != nil {
		b.addCompare("body_seats", ">=", *q.SeatsMin)
	}
	if q.HPMin != nil {
		b.addCompare("horsepower_hp", ">=", *q.HPMin)
	}
	if q.TorqueMin != nil {
		b.addCompare("torque_ft_lbs", ">=", *q.TorqueMin)
	}
	if q.MPGCombinedMin != nil {
		b.addCompare("combined_mpg", ">=", *q.MPGCombinedMin)
	}
	if q.MPGCityMin != nil {
		b.addCompare("city_mpg", ">=", *q.MPGCityMin)
	}
	if q.MPGHighwayMin != nil {
		b.addCompare("highway_mpg", ">=", *q.MPGHighwayMin)
	}
	if q.MSRPMin != nil {
		b.addCompare("msrp", ">=", *q.MSRPMin)
	}
	if q.MSRPMax != nil {
		b.addCompare("msrp", "<=", *q.MSRPMax)
	}
	if q.HasImage {
		b.where = append(b.where, "image_url IS NOT NULL AND image_url <> ''")
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(trimColumns)
	sb.WriteString(" FROM toyota_trim_specs")
	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}
	if col, ok := orderColumns[q.OrderBy]; ok {
		dir := "ASC"
		if q.Descending {
			dir = "DESC"
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(col, "lower("), ")")
		sb.WriteString(" ORDER BY (" + raw + " IS NULL), " + col + " " + dir + ", trim_id ASC")
	} else {
		sb.WriteString(" ORDER BY trim_id ASC")
	}
	if q.Limit > 0 {
		sb.WriteString(" LIMIT " + b.arg(q.Limit))
	}
	return sb.String(), b.args
}

// likePattern wraps needle in wildcards, escaping the ones it contains.
func likePattern(needle string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(needle) + "%"
}

// scanner is satisfied by *sql.Row, *sql.Rows and pgx.Row.
type scanner interface {
	Scan(dest ...any) error
}

func scanCard(row scanner) (catalog.CarCard, error) {
	var c catalog.CarCard
	err := row.Scan(
		&c.TrimID, &c.ModelYear, &c.Make, &c.Model, &c.Submodel, &c.Trim, &c.Description,
		&c.MSRP, &c.Invoice, &c.BodyType, &c.BodySeats, &c.DriveType, &c.Transmission, &c.EngineType,
		&c.FuelType, &c.Cylinders, &c.HorsepowerHP, &c.TorqueFtLbs, &c.CityMPG, &c.HighwayMPG,
		&c.CombinedMPG, &c.ImageURL,
	)
	return c, err
}

func cardArgs(c catalog.CarCard) []any {
	return []any{
		c.TrimID, c.ModelYear, c.Make, c.Model, c.Submodel, c.Trim, c.Description,
		c.MSRP, c.Invoice, c.BodyType, c.BodySeats, c.DriveType, c.Transmission, c.EngineType,
		c.FuelType, c.Cylinders, c.HorsepowerHP, c.TorqueFtLbs, c.CityMPG, c.HighwayMPG,
		c.CombinedMPG, c.ImageURL,
	}
}

func placeholders(d dialect, from, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = d.bind(from + i)
	}
	return strings.Join(parts, ", ")
}

// upsertTrimSQL inserts a trim row or replaces every column of an existing one.
func upsertTrimSQL(d dialect) string {
	cols := strings.Fields(strings.ReplaceAll(trimColumns, ",", " "))
	sets := make([]string, 0, len(cols)-1)
	for _, c := range cols[1:] {
		sets = append(sets, c+"=excluded."+c)
	}
	return "INSERT INTO toyota_trim_specs (" + trimColumns + ") VALUES (" +
		placeholders(d, 1, len(cols)) + ") ON CONFLICT(trim_id) DO UPDATE SET " +
		strings.Join(sets, ", ")
}
