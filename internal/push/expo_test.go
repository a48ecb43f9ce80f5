package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"vehicle-auction/internal/biddingerrors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*ExpoClient, *test.Hook) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	logger, hook := test.NewNullLogger()
	return NewExpoClient(srv.URL, time.Second, logrus.NewEntry(logger)), hook
}

func TestExpoClient_SendPostsBatch(t *testing.T) {
	t.Parallel()

	var got []Message
	client, hook := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		_, _ = w.Write([]byte(`{"data":[{"status":"ok","id":"t1"},{"status":"ok","id":"t2"}]}`))
	})

	messages := []Message{
		{To: "ExponentPushToken[a]", Title: "Auction update", Body: "Latest bid: EUR 51,000.00", Sound: "default", Data: map[string]any{"type": "RESULT"}},
		{To: "ExponentPushToken[b]", Title: "Auction update", Body: "Latest bid: EUR 51,000.00", Sound: "default"},
	}
	require.NoError(t, client.Send(context.Background(), messages))
	require.Equal(t, messages[0].To, got[0].To)
	require.Equal(t, "RESULT", got[0].Data["type"])
	require.Len(t, got, 2)
	require.Empty(t, hook.AllEntries())
}

func TestExpoClient_SendResponses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    bool
		wantLogged int
	}{
		{name: "ok", status: http.StatusOK, body: `{"data":[{"status":"ok"}]}`},
		{name: "ticket_error_logged", status: http.StatusOK, body: `{"data":[{"status":"error","message":"DeviceNotRegistered"}]}`, wantLogged: 1},
		{name: "top_level_errors_logged", status: http.StatusOK, body: `{"errors":[{"code":"TOO_MANY"},{"code":"X"}]}`, wantLogged: 2},
		{name: "not_json", status: http.StatusOK, body: `<html>`},
		{name: "server_error", status: http.StatusBadGateway, body: `upstream`, wantErr: true},
		{name: "rate_limited", status: http.StatusTooManyRequests, body: `{}`, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, hook := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})

			err := client.Send(context.Background(), []Message{{To: "ExponentPushToken[a]", Title: "t", Body: "b"}})
			if tc.wantErr {
				require.ErrorIs(t, err, biddingerrors.ErrDelivery)
				return
			}
			require.NoError(t, err)

			errorEntries := 0
			for _, e := range hook.AllEntries() {
				if e.Level == logrus.ErrorLevel {
					errorEntries++
				}
			}
			require.Equal(t, tc.wantLogged, errorEntries)
		})
	}
}

func TestExpoClient_TransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewExpoClient(url, time.Second, nil)
	err := client.Send(context.Background(), []Message{{To: "x"}})
	require.ErrorIs(t, err, biddingerrors.ErrDelivery)
}

func TestExpoClient_EmptyBatchIsNoop(t *testing.T) {
	t.Parallel()

	calls := 0
	client, _ := newTestClient(t, func(http.ResponseWriter, *http.Request) { calls++ })
	require.NoError(t, client.Send(context.Background(), nil))
	require.Zero(t, calls)
}
