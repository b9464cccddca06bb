package domain

import "time"

// TimelineEvent описывает одно изменение корзины в истории активности.
type TimelineEvent struct {
	Identity IdentityKey
	Type     string
	Detail   string
	Occurred time.Time
}
