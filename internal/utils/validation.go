package utils

import (
	"fmt"
	"time"

	"github.com/sysu-ecnc-dev/planning-manager/backend/internal/domain"
)

var clockLayouts = []string{"15:04", "15:04:05"}

func parseClock(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range clockLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// ValidateSessionTimes 只检查时间格式；结束时间早于开始时间表示跨夜的时段，是允许的
func ValidateSessionTimes(sessions []domain.Session) error {
	for i, session := range sessions {
		if _, err := parseClock(session.HEntree); err != nil {
			return fmt.Errorf("session %d has an invalid h_entree %q", i+1, session.HEntree)
		}
		if _, err := parseClock(session.HSortie); err != nil {
			return fmt.Errorf("session %d has an invalid h_sortie %q", i+1, session.HSortie)
		}
	}
	return nil
}
