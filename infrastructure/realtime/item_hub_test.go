package realtime_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
	"growth-automation/infrastructure/realtime"
)

func TestHub_PublishIsTenantScoped(t *testing.T) {
	h := realtime.NewHub()
	mine := h.Subscribe("t1")
	other := h.Subscribe("t2")

	require.NoError(t, h.Publish(context.Background(), model.DomainEvent{Type: model.EventItemPublished, TenantID: "t1", ItemID: "i1"}))

	select {
	case evt := <-mine:
		assert.Equal(t, "i1", evt.ItemID)
	case <-time.After(time.Second):
		t.Fatal("tenant subscriber did not receive the event")
	}
	select {
	case evt := <-other:
		t.Fatalf("unexpected event for other tenant: %+v", evt)
	default:
	}

	h.Unsubscribe("t1", mine)
	h.Unsubscribe("t1", mine)
	assert.Equal(t, 0, h.Subscribers("t1"))
	assert.Equal(t, 1, h.Subscribers("t2"))
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := realtime.NewHub()
	h.Subscribe("t1")
	for i := 0; i < 50; i++ {
		require.NoError(t, h.Publish(context.Background(), model.DomainEvent{Type: model.EventItemFailed, TenantID: "t1"}))
	}
}

func TestHub_Serve(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := realtime.NewHub()
	r := gin.New()
	r.GET("/stream", func(c *gin.Context) {
		c.Set("tenant_id", "t1")
		h.Serve(c)
	})
	r.GET("/anonymous", h.Serve)
	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/anonymous")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ":ok\n", line)

	require.Eventually(t, func() bool { return h.Subscribers("t1") == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, h.Publish(context.Background(), model.DomainEvent{Type: model.EventItemPublished, TenantID: "t1", ItemID: "i9"}))

	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.TrimSpace(line) != "" {
			lines = append(lines, strings.TrimSpace(line))
		}
	}
	assert.Equal(t, "event: item.published", lines[0])
	assert.Contains(t, lines[1], `"item_id":"i9"`)
}
