// Package conditions loads the run dependent detector description from the
// conditions database.
package conditions

import (
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	sqlx "github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	nmx "github.com/ess-dmsc/events-nmx-classify-sub001/pkg"
)

var (
	logger    nmx.Logger = nopLogger{}
	verbosity int
)

type nopLogger struct{}

func (nopLogger) Info(string, string) {}
func (nopLogger) Warn(string, string) {}
func (nopLogger) Error(string)        {}

func SetLogger(l nmx.Logger) {
	if l == nil {
		l = nopLogger{}
	}
	logger = l
}

func SetVerbosity(level int) {
	verbosity = level
}

// ErrNoCalibration is returned when no time calibration covers the run.
var ErrNoCalibration = errors.New("no time calibration for run")

// Connect opens the production MySQL conditions database.
func Connect(user string, pass string, host string, dbname string) (*sqlx.DB, error) {
	port := "3306"
	dbURI := fmt.Sprintf("%s:%s@(%s:%s)/%s?parseTime=true", user, pass, host, port, dbname)
	return Open("mysql", dbURI)
}

// Open connects with any registered driver, "mysql" or "sqlite3".
func Open(driver string, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("error connecting to %s database: %w", driver, err)
	}
	return db, nil
}

type PlaneMappingEntry struct {
	Plane    int `db:"Plane"`
	FecID    int `db:"FecID"`
	ChipID   int `db:"ChipID"`
	Position int `db:"Position"`
}

type TimeCalibrationEntry struct {
	TacSlope          float64 `db:"TacSlope"`
	BCClock           float64 `db:"BCClock"`
	TriggerResolution float64 `db:"TriggerResolution"`
	TargetResolution  float64 `db:"TargetResolution"`
}

// LoadPlanes returns the chips of every plane valid for runNumber, in strip
// order.
func LoadPlanes(db *sqlx.DB, runNumber int) ([]nmx.PlaneDefinition, error) {
	query := "SELECT Plane, FecID, ChipID, Position FROM PlaneMapping WHERE MinRun <= ? and MaxRun >= ? ORDER BY Plane, Position"
	if verbosity > 0 {
		logger.Info("Plane mapping read from DB", "database")
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Query: %s [%d]", query, runNumber)
		logger.Info(message, "database")
	}

	rows, err := db.Queryx(query, runNumber, runNumber)
	if err != nil {
		return nil, fmt.Errorf("error querying database: %w", err)
	}
	defer rows.Close()

	var planes []nmx.PlaneDefinition
	for rows.Next() {
		result := PlaneMappingEntry{}
		if err := rows.StructScan(&result); err != nil {
			return nil, fmt.Errorf("error scanning DB row: %w", err)
		}
		if result.Plane < 0 || result.Plane > 1 {
			return nil, fmt.Errorf("plane mapping row for fec %d chip %d: plane %d: %w",
				result.FecID, result.ChipID, result.Plane, nmx.ErrInvalidPlane)
		}
		if len(planes) == 0 || int(planes[len(planes)-1].Plane) != result.Plane {
			planes = append(planes, nmx.PlaneDefinition{Plane: uint8(result.Plane)})
		}
		last := &planes[len(planes)-1]
		last.Chips = append(last.Chips, nmx.ChipID{FEC: uint16(result.FecID), Chip: uint16(result.ChipID)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading plane mapping: %w", err)
	}
	return planes, nil
}

// LoadTimeCalibration returns the VMM time calibration valid for runNumber.
func LoadTimeCalibration(db *sqlx.DB, runNumber int) (nmx.Time, error) {
	query := "SELECT TacSlope, BCClock, TriggerResolution, TargetResolution FROM TimeCalibration WHERE MinRun <= ? and MaxRun >= ? ORDER BY MinRun DESC LIMIT 1"
	if verbosity > 0 {
		logger.Info("Time calibration read from DB", "database")
	}
	if verbosity > 2 {
		message := fmt.Sprintf("Query: %s [%d]", query, runNumber)
		logger.Info(message, "database")
	}

	var result []TimeCalibrationEntry
	if err := db.Select(&result, query, runNumber, runNumber); err != nil {
		return nmx.Time{}, fmt.Errorf("error querying database: %w", err)
	}
	if len(result) == 0 {
		return nmx.Time{}, fmt.Errorf("run %d: %w", runNumber, ErrNoCalibration)
	}
	entry := result[0]
	return nmx.Time{
		TacSlope:          entry.TacSlope,
		BCClock:           entry.BCClock,
		TriggerResolution: entry.TriggerResolution,
		TargetResolution:  entry.TargetResolution,
	}, nil
}

// ApplyGeometry loads the plane mapping of runNumber into geometry.
func ApplyGeometry(db *sqlx.DB, runNumber int, geometry *nmx.Geometry) error {
	planes, err := LoadPlanes(db, runNumber)
	if err != nil {
		errMessage := fmt.Errorf("error getting plane mapping from database: %w", err)
		logger.Error(errMessage.Error())
		return errMessage
	}
	if len(planes) == 0 {
		logger.Warn(fmt.Sprintf("No plane mapping for run %d", runNumber), "database")
	}
	return geometry.ApplyPlanes(planes)
}
