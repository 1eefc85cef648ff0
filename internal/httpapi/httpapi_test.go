package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/broker"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/config"
	"github.com/Siya-Moghe/yak-yet-another-kafka/internal/coordinator/coordinatortest"
	ilog "github.com/Siya-Moghe/yak-yet-another-kafka/internal/log"
)

func newTestServer(t *testing.T) (*httptest.Server, *broker.Broker) {
	cfg := config.DefaultBrokerConfig()
	cfg.BrokerID = 1
	cfg.DataDir = t.TempDir()
	cfg.MaxMessageBytes = 1 << 20

	coord := coordinatortest.New()
	b, err := broker.New(cfg, coord, ilog.New())
	require.NoError(t, err)

	s := New(b, ilog.New(), cfg.MaxMessageBytes)
	return httptest.NewServer(s), b
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func TestRegisterTopicRedirectsWhenNotLeader(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()

	resp := postJSON(t, srv.URL+"/register_topic", map[string]string{"topic": "orders"})
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "redirect", body["status"])
}

func TestRegisterTopicAndProduceWhenLeader(t *testing.T) {
	srv, b := newTestServer(t)
	defer srv.Close()

	b.TickForTest(context.Background())

	resp := postJSON(t, srv.URL+"/register_topic", map[string]string{"topic": "orders"})
	var regBody map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&regBody))
	resp.Body.Close()
	require.Equal(t, "ok", regBody["status"])

	produceResp := postJSON(t, srv.URL+"/produce", map[string]interface{}{"topic": "orders", "key": "a"})
	defer produceResp.Body.Close()
	var produceBody map[string]interface{}
	require.NoError(t, json.NewDecoder(produceResp.Body).Decode(&produceBody))
	require.Equal(t, "ok", produceBody["status"])
	require.Equal(t, float64(1), produceBody["offset"])

	consumeResp, err := http.Get(srv.URL + "/consume?topic=orders&offset=1")
	require.NoError(t, err)
	defer consumeResp.Body.Close()
	var consumeBody map[string]interface{}
	require.NoError(t, json.NewDecoder(consumeResp.Body).Decode(&consumeBody))
	messages := consumeBody["messages"].([]interface{})
	require.Len(t, messages, 1)

	msg := messages[0].(map[string]interface{})
	require.Equal(t, "orders", msg["topic"])
	require.Equal(t, "a", msg["key"])
	require.Equal(t, float64(1), msg["offset"])
}

func TestProduceToUnregisteredTopic(t *testing.T) {
	srv, b := newTestServer(t)
	defer srv.Close()
	b.TickForTest(context.Background())

	resp := postJSON(t, srv.URL+"/produce", map[string]interface{}{"topic": "ghost", "key": "a"})
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "error", body["status"])
}

func TestMetadataTopicsListsRegisteredTopics(t *testing.T) {
	srv, b := newTestServer(t)
	defer srv.Close()
	b.TickForTest(context.Background())

	resp := postJSON(t, srv.URL+"/register_topic", map[string]string{"topic": "orders"})
	resp.Body.Close()

	metaResp, err := http.Get(srv.URL + "/metadata/topics")
	require.NoError(t, err)
	defer metaResp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(metaResp.Body).Decode(&body))
	topics := body["topics"].([]interface{})
	require.Contains(t, topics, "orders")
}

func TestMetadataLeaderReportsCurrentLeader(t *testing.T) {
	srv, b := newTestServer(t)
	defer srv.Close()
	b.TickForTest(context.Background())

	resp, err := http.Get(srv.URL + "/metadata/leader")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	leader := body["leader"].(map[string]interface{})
	require.Equal(t, float64(1), leader["broker_id"])
}
