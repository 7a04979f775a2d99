package gateway

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/h2non/gock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	endpoint = "https://api.billing.test"

	terminateDoc = `
mutation terminateCustomerSubscription($input: TerminateSubscriptionInput!) {
  terminateSubscription(input: $input) {
    id
    customer { id activeSubscriptionCount }
  }
}`
)

type recordingInvalidator struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (r *recordingInvalidator) InvalidateQueries(_ context.Context, names ...string) error {
	r.mu.Lock()
	r.names = append(r.names, names...)
	r.mu.Unlock()
	return r.err
}

func newTestClient(t *testing.T, inval Invalidator) *Client {
	t.Helper()
	hc := &http.Client{}
	gock.InterceptClient(hc)
	t.Cleanup(func() {
		gock.RestoreClient(hc)
		gock.Off()
	})
	c, err := New(Config{Endpoint: endpoint + "/graphql", APIKey: "k-123", HTTPClient: hc, Invalidator: inval})
	require.NoError(t, err)
	return c
}

func terminateRequest() Request {
	return Request{
		Operation: "terminateCustomerSubscription",
		Document:  terminateDoc,
		Variables: map[string]any{"input": map[string]any{"id": "S1"}},
		Refetch:   []string{"getCustomerSubscriptionForList"},
	}
}

func TestSendSuccessInvalidatesRefetchList(t *testing.T) {
	inval := &recordingInvalidator{}
	c := newTestClient(t, inval)

	var sent map[string]any
	gock.New(endpoint).
		Post("/graphql").
		MatchHeader("Authorization", "Bearer k-123").
		MatchHeader("Content-Type", "application/json").
		HeaderPresent(HeaderRequestID).
		AddMatcher(func(req *http.Request, _ *gock.Request) (bool, error) {
			b, err := io.ReadAll(req.Body)
			if err != nil {
				return false, err
			}
			req.Body = io.NopCloser(bytes.NewReader(b))
			return true, json.Unmarshal(b, &sent)
		}).
		Reply(200).
		JSON(map[string]any{
			"data": map[string]any{
				"terminateSubscription": map[string]any{
					"id":       "S1",
					"customer": map[string]any{"id": "C1", "activeSubscriptionCount": 2},
				},
			},
		})

	res, err := c.Send(context.Background(), terminateRequest())
	require.NoError(t, err)
	assert.True(t, gock.IsDone())
	assert.NotEmpty(t, res.RequestID)

	p := res.Payload("terminateSubscription")
	require.NotNil(t, p)
	assert.Equal(t, "S1", p["id"])
	assert.Equal(t, []string{"getCustomerSubscriptionForList"}, inval.names)

	assert.Equal(t, "terminateCustomerSubscription", sent["operationName"])
	assert.Equal(t, map[string]any{"input": map[string]any{"id": "S1"}}, sent["variables"])
}

func TestSendGraphQLErrorIsServerError(t *testing.T) {
	inval := &recordingInvalidator{}
	c := newTestClient(t, inval)

	gock.New(endpoint).
		Post("/graphql").
		Reply(200).
		JSON(map[string]any{
			"data": map[string]any{"terminateSubscription": nil},
			"errors": []any{map[string]any{
				"message":    "Resource not found",
				"extensions": map[string]any{"code": "not_found", "status": 404},
			}},
		})

	_, err := c.Send(context.Background(), terminateRequest())
	var se *ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "not_found", se.Code)
	assert.Equal(t, "Resource not found", se.Message)
	assert.Equal(t, "not_found", Code(err))
	assert.Empty(t, inval.names, "failed operations must not invalidate")
}

func TestSendHTTPStatusIsServerError(t *testing.T) {
	c := newTestClient(t, nil)
	gock.New(endpoint).Post("/graphql").Reply(503).BodyString("upstream down")

	_, err := c.Send(context.Background(), terminateRequest())
	var se *ServerError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, 503, se.Status)
	assert.Equal(t, "service_unavailable", se.Code)
	assert.Equal(t, "upstream down", se.Message)
}

func TestSendTransportFailureIsNetworkError(t *testing.T) {
	inval := &recordingInvalidator{}
	c := newTestClient(t, inval)
	gock.New(endpoint).Post("/graphql").ReplyError(errors.New("connection reset"))

	_, err := c.Send(context.Background(), terminateRequest())
	var ne *NetworkError
	require.True(t, errors.As(err, &ne), "got %v", err)
	assert.NotEmpty(t, ne.RequestID)
	assert.Empty(t, inval.names)
}

func TestSendUndecodableBodyIsNetworkError(t *testing.T) {
	c := newTestClient(t, nil)
	gock.New(endpoint).Post("/graphql").Reply(200).BodyString("<html>")

	_, err := c.Send(context.Background(), terminateRequest())
	var ne *NetworkError
	assert.True(t, errors.As(err, &ne), "got %v", err)
}

func TestSendRejectsBadDocumentsLocally(t *testing.T) {
	c := newTestClient(t, nil)

	cases := []Request{
		{Operation: "terminateCustomerSubscription", Document: "mutation {"},
		{Operation: "createCustomerWallet", Document: terminateDoc},
		{Operation: "onWallet", Document: "subscription onWallet { wallet { id } }"},
	}
	for _, req := range cases {
		_, err := c.Send(context.Background(), req)
		assert.ErrorIs(t, err, ErrInvalidDocument, req.Operation)
	}
	_, err := c.Send(context.Background(), Request{Document: terminateDoc})
	assert.ErrorIs(t, err, ErrOperationRequired)
	assert.False(t, gock.HasUnmatchedRequest())
}

func TestInvalidationFailureDoesNotFailSend(t *testing.T) {
	c := newTestClient(t, &recordingInvalidator{err: errors.New("redis down")})
	gock.New(endpoint).Post("/graphql").Reply(200).
		JSON(map[string]any{"data": map[string]any{"terminateSubscription": map[string]any{"id": "S1"}}})

	_, err := c.Send(context.Background(), terminateRequest())
	assert.NoError(t, err)
}

func TestRootField(t *testing.T) {
	f, err := RootField(terminateDoc, "terminateCustomerSubscription")
	require.NoError(t, err)
	assert.Equal(t, "terminateSubscription", f)

	f, err = RootField(`query getCustomer($id: ID!) { customer(id: $id) { id } }`, "getCustomer")
	require.NoError(t, err)
	assert.Equal(t, "customer", f)

	f, err = RootField(`mutation m { w: createCustomerWallet(input: {}) { id } }`, "m")
	require.NoError(t, err)
	assert.Equal(t, "w", f)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrEndpointRequired)
}
