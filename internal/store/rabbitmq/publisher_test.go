package rabbitmq

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// The API process and the worker both declare the job queue; the broker
// refuses a re-declaration with different arguments, so both sides must
// derive the exact same tables from the queue name.
func TestQueueTopologyArgs(t *testing.T) {
	const queue = "coach_chat_jobs"

	assert.Equal(t, "coach_chat_jobs.dlq", dlqName(queue))
	assert.Equal(t, "coach_chat_jobs.retry", retryName(queue))

	main := mainQueueArgs(queue)
	assert.Equal(t, "", main["x-dead-letter-exchange"])
	assert.Equal(t, dlqName(queue), main["x-dead-letter-routing-key"])

	retry := retryQueueArgs(queue)
	assert.Equal(t, "", retry["x-dead-letter-exchange"])
	assert.Equal(t, queue, retry["x-dead-letter-routing-key"])
}
