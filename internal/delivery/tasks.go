package delivery

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskDeliverReply = "conversation.reply.deliver"

type DeliverReplyPayload struct {
	BookingID string  `json:"bookingId"`
	Recipient string  `json:"recipient"`
	Kind      string  `json:"kind"`
	Source    string  `json:"source"`
	Text      string  `json:"text"`
	TaskID    *string `json:"taskId,omitempty"`
}

func NewDeliverReplyTask(payload DeliverReplyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverReply, data), nil
}

func ParseDeliverReplyPayload(task *asynq.Task) (DeliverReplyPayload, error) {
	var payload DeliverReplyPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DeliverReplyPayload{}, err
	}
	return payload, nil
}
