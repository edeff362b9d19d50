package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// ErrClosed is returned by every method after Close.
var ErrClosed = errors.New("database closed")

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        request_id TEXT,
        patient_name TEXT NOT NULL,
        prediction INTEGER NOT NULL,
        probability REAL NOT NULL,
        risk_level TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        accuracy REAL,
        precision REAL,
        recall REAL,
        specificity REAL,
        roc_auc REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id,omitempty"`
	PatientName string    `json:"patient_name"`
	Prediction  int       `json:"prediction"`
	Probability float64   `json:"probability"`
	RiskLevel   string    `json:"risk_level"`
	CreatedAt   time.Time `json:"created_at"`
}

// TrainingLog is one finished training run. ROCAUC is nil when undefined.
type TrainingLog struct {
	ModelName   string    `json:"model_name"`
	Accuracy    float64   `json:"accuracy"`
	Precision   float64   `json:"precision"`
	Recall      float64   `json:"recall"`
	Specificity float64   `json:"specificity"`
	ROCAUC      *float64  `json:"roc_auc"`
	TrainedAt   time.Time `json:"trained_at"`
	DataPoints  int       `json:"data_points"`
}

// Store persists prediction history and the training log in SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its parent directory if needed.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	database.SetMaxOpenConns(1)
	database.SetConnMaxLifetime(time.Hour)

	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// SavePredictions records a batch of predictions in one transaction.
func (s *Store) SavePredictions(ctx context.Context, records []PredictionRecord) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO predictions (request_id, patient_name, prediction, probability, risk_level, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := stmt.ExecContext(ctx, r.RequestID, r.PatientName, r.Prediction, r.Probability, r.RiskLevel, created); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// RecentPredictions returns the newest predictions first. limit is clamped
// to [1, 1000]; zero selects the default of 50.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, request_id, patient_name, prediction, probability, risk_level, created_at
        FROM predictions
        ORDER BY created_at DESC, id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var r PredictionRecord
		var requestID sql.NullString
		if err := rows.Scan(&r.ID, &requestID, &r.PatientName, &r.Prediction, &r.Probability, &r.RiskLevel, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RequestID = requestID.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// SaveTrainingLog appends a run to training_log.
func (s *Store) SaveTrainingLog(ctx context.Context, entry TrainingLog) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if entry.TrainedAt.IsZero() {
		entry.TrainedAt = time.Now().UTC()
	}
	var auc sql.NullFloat64
	if entry.ROCAUC != nil {
		auc = sql.NullFloat64{Float64: *entry.ROCAUC, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO training_log (model_name, accuracy, precision, recall, specificity, roc_auc, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Accuracy, entry.Precision, entry.Recall, entry.Specificity, auc, entry.TrainedAt, entry.DataPoints)
	return err
}

// LoadTrainingLog returns every training run, newest first.
func (s *Store) LoadTrainingLog(ctx context.Context) ([]TrainingLog, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT model_name, accuracy, precision, recall, specificity, roc_auc, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var auc sql.NullFloat64
		if err := rows.Scan(&log.ModelName, &log.Accuracy, &log.Precision, &log.Recall, &log.Specificity, &auc, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		if auc.Valid {
			v := auc.Float64
			log.ROCAUC = &v
		}
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
