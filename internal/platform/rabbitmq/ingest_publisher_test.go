package rabbitmq

import (
	"encoding/json"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gopherai-docqa/internal/app"
	"gopherai-docqa/internal/model"
)

func TestEncodeJob(t *testing.T) {
	title := model.ElementTitle
	pageNo := 1
	job := app.IngestJob{
		DocumentID: "doc-1",
		OwnerID:    "alice",
		Text:       "Intro",
		Elements: []app.IngestElement{{
			Content: "Intro",
			Metadata: model.StructuralMetadata{
				ElementType: &title,
				PageNumber:  &pageNo,
				BoundingBox: &model.BoundingBox{X1: 1, Y1: 2, X2: 3, Y2: 4},
			},
		}},
	}

	msg, err := EncodeJob(job)
	require.NoError(t, err)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "doc-1", msg.MessageId)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)

	var decoded app.IngestJob
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, job, decoded)
}
