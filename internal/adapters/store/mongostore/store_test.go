package mongostore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/randomtoy/tarot-reading/internal/domain"
)

type fakeColl struct {
	filter      interface{}
	replacement interface{}
	upsert      bool
	err         error
}

func (f *fakeColl) ReplaceOne(_ context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (*mongo.UpdateResult, error) {
	f.filter, f.replacement = filter, replacement
	for _, o := range opts {
		if o.Upsert != nil {
			f.upsert = *o.Upsert
		}
	}
	return &mongo.UpdateResult{}, f.err
}

func record() domain.MetricsRecord {
	return domain.MetricsRecord{
		RequestID: "01JREQ",
		Status:    domain.StatusAccepted,
		Attempts:  []domain.BackendAttempt{{Backend: "bedrock", Text: "raw text", Reason: domain.ReasonAccepted}},
	}
}

func TestSaveMetrics_UpsertsByRequestID(t *testing.T) {
	coll := &fakeColl{}
	s := &Store{coll: coll}

	require.NoError(t, s.SaveMetrics(context.Background(), record()))
	assert.Equal(t, bson.M{"_id": "01JREQ"}, coll.filter)
	assert.True(t, coll.upsert)
}

func TestRecordDocumentShape(t *testing.T) {
	raw, err := bson.Marshal(record())
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, "01JREQ", doc["_id"])
	assert.Equal(t, domain.StatusAccepted, doc["status"])

	attempts, ok := doc["attempts"].(bson.A)
	require.True(t, ok)
	first := attempts[0].(bson.M)
	assert.NotContains(t, first, "text")
	assert.NotContains(t, first, "prompts")
}

func TestSaveMetrics_WrapsError(t *testing.T) {
	s := &Store{coll: &fakeColl{err: errors.New("no primary")}}
	err := s.SaveMetrics(context.Background(), record())
	assert.ErrorContains(t, err, "01JREQ")
}
