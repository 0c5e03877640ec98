package wall

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/harvestd/internal/common"
	"github.com/ternarybob/harvestd/internal/interfaces"
	"github.com/ternarybob/harvestd/internal/models"
	"github.com/ternarybob/harvestd/internal/services/client"
	"github.com/ternarybob/harvestd/internal/services/ratelimit"
)

func newTestTransport(t *testing.T, handler http.HandlerFunc) *Transport {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewTransport(common.SourceConfig{
		BaseURL:     srv.URL + "/method",
		AccessToken: "secret-token",
		APIVersion:  "5.199",
		Timeout:     "5s",
	})
}

func newTestWallClient(t *testing.T, transport *Transport) *Client {
	t.Helper()
	limiter, err := ratelimit.NewLimiter(100, time.Second, nil)
	require.NoError(t, err)

	policy := client.NewRetryPolicy()
	policy.InitialBackoff = time.Millisecond
	policy.MaxBackoff = 5 * time.Millisecond

	rc, err := client.NewClient(transport, limiter, client.WithRetryPolicy(policy))
	require.NoError(t, err)
	return NewClient(rc)
}

func testGroup() *models.MonitoredGroup {
	return models.NewMonitoredGroup("123", "Test group")
}

func TestTransportSendsTokenAndVersion(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/method/wall.get", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		assert.Equal(t, "5.199", r.URL.Query().Get("v"))
		assert.Equal(t, "-123", r.URL.Query().Get("owner_id"))
		fmt.Fprint(w, `{"response":{"count":0,"items":[]}}`)
	})

	raw, err := transport.Do(context.Background(), OpWallGet, map[string][]string{"owner_id": {"-123"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"items":[]}`, string(raw))
}

func TestTransportErrors(t *testing.T) {
	t.Run("http status", func(t *testing.T) {
		transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "2")
			http.Error(w, "busy", http.StatusServiceUnavailable)
		})
		_, err := transport.Do(context.Background(), OpWallGet, nil)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
		assert.True(t, apiErr.Temporary())
		assert.Equal(t, 2*time.Second, apiErr.RetryAfter())
	})

	t.Run("upstream payload", func(t *testing.T) {
		transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":{"error_code":15,"error_msg":"Access denied"}}`)
		})
		_, err := transport.Do(context.Background(), OpWallGetComments, nil)

		var upErr *UpstreamError
		require.ErrorAs(t, err, &upErr)
		assert.Equal(t, 15, upErr.Code)
		assert.Equal(t, OpWallGetComments, upErr.Operation)
		assert.False(t, upErr.Temporary())
	})

	t.Run("malformed body", func(t *testing.T) {
		transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `<html>`)
		})
		_, err := transport.Do(context.Background(), OpWallGet, nil)

		var decErr *DecodeError
		require.ErrorAs(t, err, &decErr)
		assert.True(t, models.IsPermanent(err))
	})
}

func TestUpstreamErrorTemporary(t *testing.T) {
	for _, code := range []int{1, 6, 9, 10, 29} {
		assert.True(t, (&UpstreamError{Code: code}).Temporary(), "code %d", code)
	}
	for _, code := range []int{5, 15, 18, 100} {
		assert.False(t, (&UpstreamError{Code: code}).Temporary(), "code %d", code)
	}
}

func TestFetchPosts(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("count"))
		fmt.Fprint(w, `{"response":{"count":2,"items":[
			{"id":11,"owner_id":-123,"from_id":-123,"date":1700000000,"text":"hello","is_pinned":1,
			 "likes":{"count":4},"comments":{"count":2},"reposts":{"count":1},"views":{"count":99},
			 "attachments":[{"type":"photo"}]},
			{"id":12,"owner_id":-123,"from_id":555,"date":1700000100,"text":"second"}
		]}}`)
	})
	c := newTestWallClient(t, transport)

	page, err := c.FetchPosts(context.Background(), testGroup(), interfaces.PageParams{Offset: 0, Count: 10})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.Total)

	first := page.Items[0]
	assert.Equal(t, "grp_123:11", first.Key)
	assert.Equal(t, "grp_123", first.GroupID)
	assert.Equal(t, "-123", first.AuthorID)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), first.PublishedAt)
	assert.True(t, first.IsPinned)
	assert.Equal(t, 4, first.LikeCount)
	assert.Equal(t, 99, first.ViewCount)
	assert.Equal(t, []string{"photo"}, first.AttachmentKind)
	assert.Equal(t, "https://vk.com/wall-123_11", first.URL)
	assert.Nil(t, page.Items[1].AttachmentKind)
}

func TestFetchCommentsResolvesProfiles(t *testing.T) {
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "11", q.Get("post_id"))
		assert.Equal(t, "1", q.Get("extended"))
		fmt.Fprint(w, `{"response":{"count":2,"items":[
			{"id":1,"from_id":777,"date":1700000200,"text":"nice","likes":{"count":1}},
			{"id":2,"from_id":-123,"date":1700000300,"text":"thanks","reply_to_comment":1}
		],"profiles":[{"id":777,"first_name":"Ivan","last_name":"Petrov"}],
		"groups":[{"id":123,"name":"Test group"}]}}`)
	})
	c := newTestWallClient(t, transport)

	group := testGroup()
	post := &models.Post{Key: models.PostKey(group.ID, "11"), GroupID: group.ID, ExternalPostID: "11"}
	page, err := c.FetchComments(context.Background(), group, post, interfaces.PageParams{Count: 100})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)

	assert.Equal(t, "grp_123:11:1", page.Items[0].Key)
	assert.Equal(t, post.Key, page.Items[0].PostKey)
	assert.Equal(t, "1", page.Items[1].ReplyToCommentID)
	require.Contains(t, page.Profiles, "777")
	assert.Equal(t, "Ivan Petrov", page.Profiles["777"].DisplayName)
	require.Contains(t, page.Profiles, "-123")
	assert.Equal(t, "Test group", page.Profiles["-123"].DisplayName)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "oops", http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"response":{"count":0,"items":[]}}`)
	})
	c := newTestWallClient(t, transport)

	page, err := c.FetchPosts(context.Background(), testGroup(), interfaces.PageParams{Count: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, int32(3), hits.Load())
}

func TestFetchPermanentUpstreamError(t *testing.T) {
	var hits atomic.Int32
	transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		body, _ := json.Marshal(map[string]any{"error": map[string]any{"error_code": 15, "error_msg": "Access denied"}})
		w.Write(body)
	})
	c := newTestWallClient(t, transport)

	_, err := c.FetchPosts(context.Background(), testGroup(), interfaces.PageParams{Count: 10})
	require.Error(t, err)
	assert.True(t, models.IsPermanent(err))
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchDoesNotRetryMalformedBodies(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "truncated", body: `{"response":{"count":1,"items":[`},
		{name: "empty", body: ``},
		{name: "missing response", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			transport := newTestTransport(t, func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				fmt.Fprint(w, tt.body)
			})
			c := newTestWallClient(t, transport)

			_, err := c.FetchPosts(context.Background(), testGroup(), interfaces.PageParams{Count: 10})
			require.Error(t, err)
			assert.True(t, models.IsPermanent(err))
			assert.Equal(t, int32(1), hits.Load())

			var decErr *DecodeError
			assert.ErrorAs(t, err, &decErr)
		})
	}
}

func TestOwnerID(t *testing.T) {
	for _, id := range []string{"42", "-42"} {
		g := models.NewMonitoredGroup(id, "g")
		assert.Equal(t, "-42", OwnerID(g), strconv.Quote(id))
	}
}
