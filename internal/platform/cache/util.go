package cache

import (
	"strings"
	"time"
)

// sessionOpenHour は台湾市場の開場時刻（時）です。
const sessionOpenHour = 8

// TimeUntilNextSession は loc における次の午前8時（開場前）までの期間を返します。
func TimeUntilNextSession(now time.Time, loc *time.Location) time.Duration {
	now = now.In(loc)

	// 次の午前8時を計算
	next := time.Date(now.Year(), now.Month(), now.Day(), sessionOpenHour, 0, 0, 0, loc)

	// 今日の午前8時が既に過ぎている場合は明日の午前8時を使用
	if !now.Before(next) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// safe escapes characters that are problematic for Redis keys.
func safe(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, ":", "_")
	s = strings.ReplaceAll(s, "*", "_")
	return s
}
