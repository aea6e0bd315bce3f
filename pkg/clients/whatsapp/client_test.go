package whatsapp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/marketminder/internal/config"
	"github.com/mamadbah2/marketminder/pkg/clients/whatsapp"
)

func newClient(srv *httptest.Server) *whatsapp.APIClient {
	return whatsapp.NewClient(config.WhatsAppConfig{
		AccessToken:   "token",
		PhoneNumberID: "12345",
		BaseURL:       srv.URL + "/",
		APIVersion:    "v20.0",
	})
}

func TestSendTextMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v20.0/12345/messages", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "254700000001", payload["to"])
		assert.Equal(t, "Recorded: RICE x2", payload["text"].(map[string]any)["body"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"messages":[{"id":"wamid.1"}]}`))
	}))
	defer srv.Close()

	resp, err := newClient(srv).SendTextMessage(context.Background(), whatsapp.SendTextMessageRequest{To: "254700000001", Body: "Recorded: RICE x2"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "wamid.1", resp.Messages[0].ID)
}

func TestSendTextMessage_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Recipient not in allowed list","code":131030}}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).SendTextMessage(context.Background(), whatsapp.SendTextMessageRequest{To: "1", Body: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "code=131030")
	assert.Contains(t, err.Error(), "Recipient not in allowed list")
}

func TestDownloadMedia(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v20.0/media-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/files/receipt.jpg","mime_type":"image/jpeg","file_size":3}`))
	})
	mux.HandleFunc("/files/receipt.jpg", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
	})

	media, err := newClient(srv).DownloadMedia(context.Background(), "media-1")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", media.MimeType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, media.Data)
}

func TestDownloadMedia_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"http://example.invalid/x","mime_type":"audio/ogg","file_size":99999999}`))
	}))
	defer srv.Close()

	_, err := newClient(srv).DownloadMedia(context.Background(), "big")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestDownloadMedia_BodyLargerThanDeclared(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/v20.0/voice-1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"url":"` + srv.URL + `/files/voice.ogg","mime_type":"audio/ogg","file_size":3}`))
	})
	mux.HandleFunc("/files/voice.ogg", func(w http.ResponseWriter, r *http.Request) {
		chunk := bytes.Repeat([]byte{0x4f}, 1<<20)
		for i := 0; i < 17; i++ {
			if _, err := w.Write(chunk); err != nil {
				return
			}
		}
	})

	_, err := newClient(srv).DownloadMedia(context.Background(), "voice-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}
