package main

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite"
)

func initTrackDB(path string) (*sql.DB, error) {
	if path == "" {
		configDir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("get config dir: %w", err)
		}
		path = filepath.Join(configDir, configDirName, "track.db")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS track_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
		phase TEXT,
		latitude REAL,
		longitude REAL,
		altitude_msl_ft REAL,
		ground_speed_kt REAL,
		vertical_speed_fpm REAL,
		heading REAL,
		distance_nm REAL,
		fuel_kg REAL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return db, nil
}

// TrackRecorder persists one row per bridge tick so a flight track can
// be exported after the fact. The bridge drives it; there is no ticker
// of its own.
type TrackRecorder struct {
	db *sql.DB

	mu        sync.Mutex
	dataCount int
}

func NewTrackRecorder(db *sql.DB) *TrackRecorder {
	return &TrackRecorder{db: db}
}

func (r *TrackRecorder) Record(sig SignalSnapshot, phase FlightPhase) {
	_, err := r.db.Exec(
		`INSERT INTO track_points (phase, latitude, longitude, altitude_msl_ft, ground_speed_kt, vertical_speed_fpm, heading, distance_nm, fuel_kg) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		phase.String(), sig.Latitude, sig.Longitude, sig.AltitudeMSLFeet(), sig.GroundSpeedKnots(),
		sig.VerticalSpeedFpm(), sig.Heading, sig.DistanceNM(), sig.FuelTotal,
	)
	if err != nil {
		slog.Error("failed to insert track point", "error", err)
		return
	}

	r.mu.Lock()
	r.dataCount++
	r.mu.Unlock()
}

func (r *TrackRecorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dataCount
}

func (r *TrackRecorder) ExportCSV(filePath string) error {
	rows, err := r.db.Query(`SELECT timestamp, phase, latitude, longitude, altitude_msl_ft, ground_speed_kt, vertical_speed_fpm, heading, distance_nm, fuel_kg FROM track_points ORDER BY id`)
	if err != nil {
		return fmt.Errorf("query data: %w", err)
	}
	defer rows.Close()

	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	defer w.Flush()

	w.Write([]string{"timestamp", "phase", "latitude", "longitude", "altitude_msl_ft", "ground_speed_kt", "vertical_speed_fpm", "heading", "distance_nm", "fuel_kg"})

	for rows.Next() {
		var ts, phase string
		var lat, lon, alt, gs, vs, hdg, dist, fuel float64
		if err := rows.Scan(&ts, &phase, &lat, &lon, &alt, &gs, &vs, &hdg, &dist, &fuel); err != nil {
			return fmt.Errorf("scan row: %w", err)
		}
		w.Write([]string{
			ts,
			phase,
			strconv.FormatFloat(lat, 'f', 6, 64),
			strconv.FormatFloat(lon, 'f', 6, 64),
			strconv.FormatFloat(alt, 'f', 1, 64),
			strconv.FormatFloat(gs, 'f', 1, 64),
			strconv.FormatFloat(vs, 'f', 1, 64),
			strconv.FormatFloat(hdg, 'f', 1, 64),
			strconv.FormatFloat(dist, 'f', 2, 64),
			strconv.FormatFloat(fuel, 'f', 1, 64),
		})
	}

	// Purge DB after export
	_, err = r.db.Exec(`DELETE FROM track_points`)
	if err != nil {
		return fmt.Errorf("purge db: %w", err)
	}

	r.mu.Lock()
	r.dataCount = 0
	r.mu.Unlock()

	return nil
}

func (r *TrackRecorder) Close() error {
	return r.db.Close()
}
