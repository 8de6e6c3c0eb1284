package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ErrNotEnoughLabels = errors.New("label dictionary has fewer labels than requested")

// Label maps an english label to its localized form. The table doubles as
// the set of all drawable labels.
type Label struct {
	English    string `gorm:"primaryKey;size:32"`
	Norwegian  string `gorm:"size:32"`
	Difficulty string `gorm:"size:16;index"`
}

// Score is one finished game's final score for one player.
type Score struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	PlayerID   string `gorm:"size:64"`
	Score      int    `gorm:"not null"`
	Date       time.Time
	Difficulty string `gorm:"size:16"`
}

// Store is the write-through side channel for labels and scores. Hot-path
// session state never touches it; only label draws, translations and final
// score writes do.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&Label{}, &Score{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// SeedLabels loads english,norwegian[,difficulty] rows from a CSV
// dictionary, inserting only labels not already present. Rows without a
// difficulty column land in the easy tier.
func (s *Store) SeedLabels(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open label dictionary: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("read label dictionary: %w", err)
	}

	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		label := Label{English: row[0], Norwegian: row[1], Difficulty: "easy"}
		if len(row) > 2 && row[2] != "" {
			label.Difficulty = row[2]
		}
		err := s.db.Where(Label{English: label.English}).FirstOrCreate(&label).Error
		if err != nil {
			return fmt.Errorf("seed label %q: %w", label.English, err)
		}
	}
	return nil
}

// DrawLabels picks n distinct random labels from one difficulty tier.
func (s *Store) DrawLabels(n int, difficulty string) ([]string, error) {
	var labels []string
	err := s.db.Model(&Label{}).
		Where("difficulty = ?", difficulty).
		Order("random()").
		Limit(n).
		Pluck("english", &labels).Error
	if err != nil {
		return nil, fmt.Errorf("draw labels: %w", err)
	}
	if len(labels) < n {
		return nil, ErrNotEnoughLabels
	}
	return labels, nil
}

// Translate returns the localized form of a label, falling back to the
// english label when no translation row exists.
func (s *Store) Translate(label string) (string, error) {
	var row Label
	err := s.db.First(&row, "english = ?", label).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return label, nil
	}
	if err != nil {
		return label, fmt.Errorf("translate %q: %w", label, err)
	}
	return row.Norwegian, nil
}

// RecordScore appends one player's final score for the tier they played.
func (s *Store) RecordScore(playerID string, score int, date time.Time, difficulty string) error {
	row := Score{PlayerID: playerID, Score: score, Date: date, Difficulty: difficulty}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("record score: %w", err)
	}
	return nil
}
