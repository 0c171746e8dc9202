package model

import (
	"time"
)

type Event struct {
	Code      string `gorm:"primaryKey;size:10"`
	Name      string `gorm:"size:100;not null"`
	CreatedAt time.Time
	Questions []Question `gorm:"foreignKey:EventCode;references:Code"`
}
