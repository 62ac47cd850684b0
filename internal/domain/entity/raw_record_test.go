package entity_test

import (
	"encoding/json"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"jobsync/internal/domain/entity"
)

func TestRawRecord_UnmarshalJSON(t *testing.T) {
	var rec entity.RawRecord
	err := json.Unmarshal([]byte(`{
		"title": "Go Dev",
		"salary": 5000.5,
		"remote": true,
		"missing": null,
		"tags": ["a", "b"],
		"company": {"name": "Acme"}
	}`), &rec)
	require.NoError(t, err)

	assert.Equal(t, entity.KindString, rec["title"].Kind())
	assert.Equal(t, "Go Dev", rec["title"].String())
	assert.Equal(t, entity.KindNumber, rec["salary"].Kind())
	assert.Equal(t, "5000.5", rec["salary"].String())
	assert.Equal(t, "true", rec["remote"].String())
	assert.True(t, rec["missing"].IsNull())
	assert.True(t, rec["tags"].IsNull())
	assert.True(t, rec["company"].IsNull())
}

func TestValue_MarshalJSON(t *testing.T) {
	rec := entity.RawRecord{
		"a": entity.String("x"),
		"b": entity.Number(3),
		"c": entity.Null(),
	}
	out, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"x","b":3,"c":null}`, string(out))
}

func TestValue_BSONRoundTrip(t *testing.T) {
	type doc struct {
		Raw entity.RawRecord `bson:"raw"`
	}
	in := doc{Raw: entity.RawRecord{
		"title":  entity.String("Designer"),
		"salary": entity.Number(42),
		"empty":  entity.Null(),
	}}

	data, err := bson.Marshal(in)
	require.NoError(t, err)

	var out doc
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.Equal(t, in.Raw["title"], out.Raw["title"])
	assert.Equal(t, in.Raw["salary"], out.Raw["salary"])
	assert.True(t, out.Raw["empty"].IsNull())
}

func TestValue_Truthy(t *testing.T) {
	assert.False(t, entity.Null().Truthy())
	assert.False(t, entity.String("").Truthy())
	assert.False(t, entity.Number(0).Truthy())
	assert.True(t, entity.String("x").Truthy())
	assert.True(t, entity.Number(-1).Truthy())
}

func TestParseTaskStatus(t *testing.T) {
	for _, s := range []string{"idle", "running", "completed", "error"} {
		got, err := entity.ParseTaskStatus(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(got))
	}

	_, err := entity.ParseTaskStatus("paused")
	require.Error(t, err)
	assert.True(t, errors.Is(err, entity.ErrInvalidArgument))
}

func TestTaskStatus_IsActive(t *testing.T) {
	assert.True(t, entity.TaskStatusIdle.IsActive())
	assert.True(t, entity.TaskStatusRunning.IsActive())
	assert.False(t, entity.TaskStatusCompleted.IsActive())
	assert.False(t, entity.TaskStatusError.IsActive())
}

func TestClampPage(t *testing.T) {
	cases := []struct {
		offset     int64
		size       int
		wantOffset int64
		wantSize   int
	}{
		{-5, 10, 0, 10},
		{3, 0, 3, 1},
		{3, 5000, 3, 1000},
		{0, 1000, 0, 1000},
	}
	for _, c := range cases {
		off, size := entity.ClampPage(c.offset, c.size)
		assert.Equal(t, c.wantOffset, off)
		assert.Equal(t, c.wantSize, size)
	}
}
