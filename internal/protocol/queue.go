package protocol

import (
	"fmt"

	json "github.com/goccy/go-json"
)

type QueueCommand int

const (
	QueueEnqueue QueueCommand = 1
	QueueDequeue QueueCommand = 2
	QueueSize    QueueCommand = 3
	QueueDelete  QueueCommand = 4
	QueueStats   QueueCommand = 98
	QueuePing    QueueCommand = 99
)

func (c QueueCommand) Valid() bool {
	switch c {
	case QueueEnqueue, QueueDequeue, QueueSize, QueueDelete, QueueStats, QueuePing:
		return true
	}
	return false
}

func (c QueueCommand) NeedsName() bool {
	switch c {
	case QueueEnqueue, QueueDequeue, QueueSize, QueueDelete:
		return true
	}
	return false
}

func (c QueueCommand) String() string {
	switch c {
	case QueueEnqueue:
		return "ENQUEUE"
	case QueueDequeue:
		return "DEQUEUE"
	case QueueSize:
		return "SIZE"
	case QueueDelete:
		return "DELETE"
	case QueueStats:
		return "STATS"
	case QueuePing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// QueueRequest is encoded as [command, queue, data, token].
type QueueRequest struct {
	Command QueueCommand
	Queue   string
	Data    Blob
	Token   string
}

func (r QueueRequest) MarshalJSON() ([]byte, error) {
	fields := []any{int(r.Command), r.Queue, r.Data}
	if r.Token != "" {
		fields = append(fields, r.Token)
	}
	return json.Marshal(fields)
}

func (r *QueueRequest) UnmarshalJSON(data []byte) error {
	fields, err := splitArray(data)
	if err != nil {
		return err
	}
	if len(fields) == 0 || fields[0].IsNull() {
		return fmt.Errorf("%w: missing command", ErrMalformed)
	}
	var (
		req QueueRequest
		cmd int
	)
	if err := decodeField(fields, 0, "command", &cmd); err != nil {
		return err
	}
	req.Command = QueueCommand(cmd)
	if err := decodeField(fields, 1, "queue", &req.Queue); err != nil {
		return err
	}
	if len(fields) > 2 {
		req.Data = fields[2]
	}
	if err := decodeField(fields, 3, "token", &req.Token); err != nil {
		return err
	}
	*r = req
	return nil
}

func DecodeQueueRequest(line []byte) (QueueRequest, error) {
	var req QueueRequest
	if err := req.UnmarshalJSON(line); err != nil {
		return QueueRequest{}, err
	}
	return req, nil
}

// QueueStatsReport is the data payload of a STATS response.
type QueueStatsReport struct {
	Queues   int              `json:"queues"`
	Items    int              `json:"items"`
	Sizes    map[string]int   `json:"sizes"`
	Counters map[string]int64 `json:"counters,omitempty"`
}
