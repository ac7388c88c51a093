package flag

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/agentsea/taskara/pkg/apierr"
	"github.com/agentsea/taskara/pkg/store"
	testdb "github.com/agentsea/taskara/test/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	client := testdb.NewTestClient(t)
	return New(store.New(client.DB()), nil, nil)
}

func TestValidateBoundingBoxRejectsMissingFields(t *testing.T) {
	err := ValidateBoundingBox(json.RawMessage(`{"bbox":[0,0,1,1]}`))
	var verr *apierr.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Fields, 2)
}

func TestValidateBoundingBoxAcceptsCompletePayload(t *testing.T) {
	err := ValidateBoundingBox(json.RawMessage(`{"img":"s3://x.png","target":"button","bbox":[0,0,1,1]}`))
	assert.NoError(t, err)
}

func TestCreateRejectsInvalidBoundingBoxPayload(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Create(context.Background(), "bounding_box", json.RawMessage(`{"bbox":[0,0,1,1]}`))
	assert.Error(t, err)
}

func TestCreateAndSetResultRoundTrips(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	f, err := svc.Create(ctx, "bounding_box", json.RawMessage(`{"img":"s3://x.png","target":"button","bbox":[0,0,1,1]}`))
	require.NoError(t, err)

	require.NoError(t, svc.SetResult(ctx, f.ID, json.RawMessage(`{"bbox":[1,1,2,2]}`)))

	got, err := svc.Get(ctx, f.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"bbox":[1,1,2,2]}`, string(got.Result))
}

func TestUnregisteredTypeSkipsValidation(t *testing.T) {
	svc := newTestService(t)
	f, err := svc.Create(context.Background(), "free_form", json.RawMessage(`{"note":"looks off"}`))
	require.NoError(t, err)
	assert.Equal(t, "free_form", f.Type)
}

func TestFindByTypeReturnsNewestFirst(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	svc.now = incrementingClock()

	_, err := svc.Create(ctx, "free_form", json.RawMessage(`{"n":1}`))
	require.NoError(t, err)
	_, err = svc.Create(ctx, "free_form", json.RawMessage(`{"n":2}`))
	require.NoError(t, err)

	found, err := svc.FindByType(ctx, "free_form")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.JSONEq(t, `{"n":2}`, string(found[0].Payload))
}

func incrementingClock() func() float64 {
	n := 0.0
	return func() float64 {
		n++
		return n
	}
}
