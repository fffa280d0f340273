package store

import "qline/queue-service/internal/models"

var transitionMap = map[string][]string{
	"call_next": {models.StatusWaiting},
	"start":     {models.StatusCalled},
	"complete":  {models.StatusInProgress},
	"absent":    {models.StatusCalled},
	"requeue":   {models.StatusAbsent},
	"cancel":    {models.StatusWaiting, models.StatusCalled},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}
