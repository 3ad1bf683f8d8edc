package queue

import "errors"

// ErrRejected is reported for a task the queue did not accept.
var ErrRejected = errors.New("task rejected by queue")
