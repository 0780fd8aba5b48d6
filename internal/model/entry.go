package model

import (
	"crypto/md5"
	"encoding/hex"
	"time"
)

// Known categories. Which of them a given entry point accepts is configured
// separately, see config.CategoryConfig.
const (
	CategoryRiddle      = "riddle"
	CategoryJoke        = "joke"
	CategoryIdiom       = "idiom"
	CategoryBrainTeaser = "brain_teaser"
)

// Entry is a single question/answer item.
type Entry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Question    string    `gorm:"type:text;not null" json:"question"`
	Answer      string    `gorm:"type:text;not null" json:"answer"`
	Category    string    `gorm:"type:varchar(20);not null;index" json:"category"`
	ContentHash string    `gorm:"type:varchar(32);uniqueIndex;not null" json:"-"`
	CreatedAt   time.Time `gorm:"index" json:"created_at"`
}

func (Entry) TableName() string {
	return "data_entries"
}

// Fingerprint derives the content hash used for de-duplication.
// It is order sensitive: Fingerprint(q, a) != Fingerprint(a, q).
func Fingerprint(question, answer string) string {
	sum := md5.Sum([]byte(question + "|" + answer))
	return hex.EncodeToString(sum[:])
}

// Content joins question and answer the way the legacy single-column
// schema stored them.
func (e Entry) Content() string {
	if e.Category == CategoryIdiom {
		return e.Question + " - " + e.Answer
	}
	return e.Question + " " + e.Answer
}
