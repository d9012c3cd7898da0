package trigger

import (
	"encoding/base64"
	"errors"
	"testing"

	"github.com/rpattn/rosterscd/internal/domain"
)

func TestDecodeEvent(t *testing.T) {
	data := base64.StdEncoding.EncodeToString([]byte(`{"bucket":"exports","name":"roster.xlsx"}`))

	cases := map[string]string{
		"direct":     `{"bucket":"exports","name":"roster.xlsx"}`,
		"envelope":   `{"message":{"data":"` + data + `","messageId":"1"},"subscription":"projects/p/subscriptions/s"}`,
		"attributes": `{"message":{"attributes":{"bucketId":"exports","objectId":"roster.xlsx"}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			trigger, err := DecodeEvent([]byte(body))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if trigger.Bucket != "exports" || trigger.Name != "roster.xlsx" {
				t.Fatalf("unexpected trigger %+v", trigger)
			}
		})
	}
}

func TestDecodeEventRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `bucket=exports`,
		"missing name":   `{"bucket":"exports"}`,
		"bad base64":     `{"message":{"data":"%%%"}}`,
		"bad inner json": `{"message":{"data":"` + base64.StdEncoding.EncodeToString([]byte("nope")) + `"}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeEvent([]byte(body)); !errors.Is(err, domain.ErrInvalidTrigger) {
				t.Fatalf("expected ErrInvalidTrigger, got %v", err)
			}
		})
	}
}
