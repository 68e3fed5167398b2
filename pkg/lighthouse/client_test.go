package lighthouse

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

const testAddress = "0x00000000000000000000000000000000000000aa"

type fakeStorage struct {
	mu         sync.Mutex
	uploaded   []byte
	escrowed   []keyShard
	failAdd    bool
	refuseJWT  bool
	authHeader string
}

func (f *fakeStorage) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/get_message", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAddress, r.URL.Query().Get("publicKey"))
		_ = json.NewEncoder(w).Encode("Please sign this message to prove you own this wallet")
	})
	mux.HandleFunc("/api/message/get-jwt", func(w http.ResponseWriter, r *http.Request) {
		if f.refuseJWT {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "0xsig", body["signature"])
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "jwt-token"})
	})
	mux.HandleFunc("/api/v0/add", func(w http.ResponseWriter, r *http.Request) {
		if f.failAdd {
			http.Error(w, "node unavailable", http.StatusInternalServerError)
			return
		}
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		data, err := io.ReadAll(file)
		require.NoError(t, err)

		sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
		require.NoError(t, err)
		f.mu.Lock()
		f.uploaded = data
		f.authHeader = r.Header.Get("Authorization")
		f.mu.Unlock()

		_ = json.NewEncoder(w).Encode(map[string]string{
			"Name": header.Filename,
			"Hash": cid.NewCidV1(cid.Raw, sum).String(),
			"Size": strconv.Itoa(len(data)),
		})
	})
	mux.HandleFunc("/api/setSharedKey/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))
		var body struct {
			KeyShards []keyShard `json:"keyShards"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		f.escrowed = body.KeyShards
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

func newTestClient(t *testing.T, storage *fakeStorage) *Client {
	srv := httptest.NewServer(storage.handler(t))
	t.Cleanup(srv.Close)
	return New(Config{
		APIKey:        "api-key",
		APIURL:        srv.URL,
		NodeURL:       srv.URL,
		EncryptionURL: srv.URL,
		GatewayURL:    "https://gateway.lighthouse.storage",
		HTTPClient:    srv.Client(),
	})
}

func TestUploadEncryptedRoundTrip(t *testing.T) {
	storage := &fakeStorage{}
	client := newTestClient(t, storage)
	ctx := context.Background()

	message, err := client.AuthMessage(ctx, testAddress)
	require.NoError(t, err)
	assert.Contains(t, message, "Please sign")

	token, err := client.AccessToken(ctx, testAddress, "0xsig")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)

	plaintext := []byte("%PDF-1.4 passport scan")
	var progress []float64
	uploaded, err := client.UploadEncrypted(ctx, File{Name: "passport.pdf", Content: plaintext}, testAddress, token, func(f float64) {
		progress = append(progress, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", uploaded.Name)
	assert.Equal(t, int64(len(storage.uploaded)), uploaded.Size)
	assert.Equal(t, "Bearer api-key", storage.authHeader)

	require.NotEmpty(t, progress)
	assert.Equal(t, 1.0, progress[len(progress)-1])
	for i := 1; i < len(progress); i++ {
		assert.GreaterOrEqual(t, progress[i], progress[i-1])
	}

	assert.NotContains(t, string(storage.uploaded), "passport scan", "payload is encrypted")
	require.Len(t, storage.escrowed, shardCount)
	secret, err := recoverKey(storage.escrowed[1:4])
	require.NoError(t, err)
	key := secret.Bytes()
	opened, err := Decrypt(key[:], storage.uploaded)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)

	assert.Equal(t, "https://gateway.lighthouse.storage/ipfs/"+uploaded.Hash, client.GatewayURL(uploaded.Hash))
}

func TestUploadFailureNeverCompletesProgress(t *testing.T) {
	storage := &fakeStorage{failAdd: true}
	client := newTestClient(t, storage)

	var progress []float64
	_, err := client.UploadEncrypted(context.Background(), File{Name: "id.png", Content: []byte("png")}, testAddress, "jwt-token", func(f float64) {
		progress = append(progress, f)
	})
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrTransport.Code))
	for _, f := range progress {
		assert.Less(t, f, 1.0)
	}
}

func TestAccessTokenRefused(t *testing.T) {
	client := newTestClient(t, &fakeStorage{refuseJWT: true})
	_, err := client.AccessToken(context.Background(), testAddress, "0xsig")
	assert.True(t, appErrors.HasCode(err, appErrors.ErrAuthentication.Code))
}

func TestUploadRequiresAPIKey(t *testing.T) {
	client := New(Config{})
	assert.False(t, client.Configured())
	_, err := client.UploadEncrypted(context.Background(), File{Name: "a.pdf"}, testAddress, "t", nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrConfiguration.Code))
}

func TestUnreachableServiceIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Config{APIKey: "k", APIURL: srv.URL})
	_, err := client.AuthMessage(context.Background(), testAddress)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrTransport.Code))
}
