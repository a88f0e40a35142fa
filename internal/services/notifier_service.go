package services

import (
	"fmt"

	"github.com/containrrr/shoutrrr"

	"github.com/vigil-labs/vigil/backend/internal/logger"
)

// NotifierService delivers operational alerts (store outages, audit log
// failures, automatic blocks) to the configured shoutrrr destinations.
// Delivery runs in a goroutine so alerting never blocks the request path.
type NotifierService struct {
	urls []string
	send func(url, message string) error
}

// NewNotifierService builds a notifier for the given shoutrrr URLs. An empty
// list yields a notifier that silently drops alerts.
func NewNotifierService(urls []string) *NotifierService {
	return &NotifierService{urls: urls, send: shoutrrr.Send}
}

// Alert fans one message out to every configured destination.
func (s *NotifierService) Alert(title, message string) {
	if len(s.urls) == 0 {
		return
	}

	payload := fmt.Sprintf("[Vigil] %s: %s", title, message)
	go func() {
		for _, url := range s.urls {
			if err := s.send(url, payload); err != nil {
				logger.Log().WithError(err).Warn("ops alert delivery failed")
			}
		}
	}()
}
