package trigger

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/rpattn/rosterscd/internal/domain"
)

// pushEnvelope is a push-subscription delivery wrapping a storage notification.
type pushEnvelope struct {
	Message *struct {
		Data       string            `json:"data"`
		Attributes map[string]string `json:"attributes"`
		MessageID  string            `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodeEvent extracts the trigger from a raw event body. The body is either
// {"bucket": ..., "name": ...} or a push envelope whose base64 data holds that object.
// Envelopes without data fall back to the bucketId/objectId attributes.
func DecodeEvent(body []byte) (domain.Trigger, error) {
	var envelope pushEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.Trigger{}, fmt.Errorf("%w: %v", domain.ErrInvalidTrigger, err)
	}

	if envelope.Message == nil {
		var trigger domain.Trigger
		if err := json.Unmarshal(body, &trigger); err != nil {
			return domain.Trigger{}, fmt.Errorf("%w: %v", domain.ErrInvalidTrigger, err)
		}
		return trigger, trigger.Validate()
	}

	if envelope.Message.Data == "" {
		trigger := domain.Trigger{
			Bucket: envelope.Message.Attributes["bucketId"],
			Name:   envelope.Message.Attributes["objectId"],
		}
		return trigger, trigger.Validate()
	}

	data, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("%w: message data is not base64: %v", domain.ErrInvalidTrigger, err)
	}
	var trigger domain.Trigger
	if err := json.Unmarshal(data, &trigger); err != nil {
		return domain.Trigger{}, fmt.Errorf("%w: message data: %v", domain.ErrInvalidTrigger, err)
	}
	return trigger, trigger.Validate()
}
