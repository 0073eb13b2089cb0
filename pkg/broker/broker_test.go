package broker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubscription_Queue(t *testing.T) {
	assert.Equal(t, "booking-service.payment:made",
		Subscription{Subject: "payment:made", QueueGroup: "booking-service"}.Queue())
	assert.Equal(t, "booking-service.custom",
		Subscription{Subject: "payment:made", DurableName: "custom", QueueGroup: "booking-service"}.Queue())
}

func TestSubscription_Validate(t *testing.T) {
	assert.Error(t, Subscription{QueueGroup: "g"}.Validate())
	assert.Error(t, Subscription{Subject: "s"}.Validate())
	assert.NoError(t, Subscription{Subject: "s", QueueGroup: "g"}.Validate())
}

func TestInvoke_RecoversPanic(t *testing.T) {
	res := Invoke(context.Background(), func(context.Context, Message) Result {
		panic("boom")
	}, Message{})

	assert.Equal(t, ActionRetry, res.Action)
	assert.ErrorContains(t, res.Err, "boom")
}

func TestResultConstructors(t *testing.T) {
	cause := errors.New("x")
	assert.Equal(t, ActionAck, Ack().Action)
	assert.Equal(t, Result{Action: ActionRetry, Err: cause}, Retry(cause))
	assert.Equal(t, Result{Action: ActionReject, Err: cause}, Reject(cause))
	assert.Equal(t, "retry", ActionRetry.String())
}
