// Package lighthouse is a client for the Lighthouse encrypted storage service:
// signature based authentication, client side encryption and key escrow.
package lighthouse

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"golang.org/x/crypto/chacha20poly1305"

	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
)

// Config configures the client endpoints.
type Config struct {
	APIKey        string
	APIURL        string
	NodeURL       string
	EncryptionURL string
	GatewayURL    string
	HTTPClient    *http.Client
}

// Client talks to the storage service.
type Client struct {
	apiKey        string
	apiURL        string
	nodeURL       string
	encryptionURL string
	gatewayURL    string
	http          *http.Client
}

// File is a plaintext document to upload.
type File struct {
	Name    string
	Content []byte
}

// Uploaded describes a stored blob.
type Uploaded struct {
	Name string
	Hash string
	Size int64
}

// ProgressFunc receives the acknowledged fraction of the upload in [0, 1].
type ProgressFunc func(fraction float64)

// New constructs a Client.
func New(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Client{
		apiKey:        strings.TrimSpace(cfg.APIKey),
		apiURL:        strings.TrimRight(cfg.APIURL, "/"),
		nodeURL:       strings.TrimRight(cfg.NodeURL, "/"),
		encryptionURL: strings.TrimRight(cfg.EncryptionURL, "/"),
		gatewayURL:    strings.TrimRight(cfg.GatewayURL, "/"),
		http:          httpClient,
	}
}

// Configured reports whether an API key is present.
func (c *Client) Configured() bool {
	return c != nil && c.apiKey != ""
}

// GatewayURL returns the public gateway link for a content identifier.
func (c *Client) GatewayURL(hash string) string {
	return fmt.Sprintf("%s/ipfs/%s", c.gatewayURL, hash)
}

// AuthMessage requests the one-time challenge the address must sign.
func (c *Client) AuthMessage(ctx context.Context, address string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/auth/get_message?publicKey=%s", c.apiURL, url.QueryEscape(address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrInternal, "build auth message request")
	}
	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var message string
	if err := json.Unmarshal(body, &message); err != nil {
		message = string(bytes.TrimSpace(body))
	}
	if message == "" {
		return "", appErrors.Clone(appErrors.ErrAuthentication, "storage service returned an empty auth message")
	}
	return message, nil
}

// AccessToken exchanges a signed challenge for a short-lived access token.
func (c *Client) AccessToken(ctx context.Context, address, signature string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"address": address, "signature": signature})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.encryptionURL+"/api/message/get-jwt", bytes.NewReader(payload))
	if err != nil {
		return "", appErrors.WrapAs(err, appErrors.ErrInternal, "build token request")
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		if appErrors.HasCode(err, appErrors.ErrTransport.Code) {
			return "", err
		}
		return "", appErrors.WrapAs(err, appErrors.ErrAuthentication, "failed to get access token")
	}

	var out struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.Token == "" {
		return "", appErrors.Clone(appErrors.ErrAuthentication, "failed to get access token")
	}
	return out.Token, nil
}

// UploadEncrypted encrypts the file with a fresh key, uploads the ciphertext
// and escrows the key for address under token. progress may be nil; 1 is
// reported only once the upload and key escrow succeeded.
func (c *Client) UploadEncrypted(ctx context.Context, file File, address, token string, progress ProgressFunc) (*Uploaded, error) {
	if !c.Configured() {
		return nil, appErrors.Clone(appErrors.ErrConfiguration, "LIGHTHOUSE_API_KEY is not set")
	}
	tracker := newProgressTracker(progress)

	secret, key, err := newMasterKey()
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "generate file key")
	}
	shards, err := splitKey(secret, shardCount, shardThreshold)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "split file key")
	}
	if recovered, err := recoverKey(shards[:shardThreshold]); err != nil || !recovered.Equal(&secret) {
		return nil, appErrors.Clone(appErrors.ErrInternal, "file key shards do not reassemble")
	}
	sealed, err := encrypt(key, file.Content)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "encrypt document")
	}

	uploaded, err := c.add(ctx, file.Name, sealed, tracker)
	if err != nil {
		return nil, err
	}
	if _, err := cid.Decode(uploaded.Hash); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrTransport, "storage service returned an invalid content identifier")
	}
	if err := c.escrowKey(ctx, address, uploaded.Hash, token, shards); err != nil {
		return nil, err
	}

	tracker.complete()
	return uploaded, nil
}

func (c *Client) add(ctx context.Context, name string, payload []byte, tracker *progressTracker) (*Uploaded, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err == nil {
			_, err = io.Copy(part, &countingReader{r: bytes.NewReader(payload), total: int64(len(payload)), tracker: tracker})
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	endpoint := c.nodeURL + "/api/v0/add?wrap-with-directory=false&cid-version=1"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.Close()
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "build upload request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Encryption", "true")

	body, err := c.do(req)
	pr.Close()
	if err != nil {
		return nil, err
	}

	var out struct {
		Name string `json:"Name"`
		Hash string `json:"Hash"`
		Size string `json:"Size"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrTransport, "decode upload response")
	}
	size, _ := strconv.ParseInt(out.Size, 10, 64)
	if out.Name == "" {
		out.Name = name
	}
	return &Uploaded{Name: out.Name, Hash: out.Hash, Size: size}, nil
}

func (c *Client) escrowKey(ctx context.Context, address, hash, token string, shards []keyShard) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"address":   address,
		"cid":       hash,
		"keyShards": shards,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.encryptionURL+"/api/setSharedKey/", bytes.NewReader(payload))
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrInternal, "build key escrow request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	if _, err := c.do(req); err != nil {
		if appErrors.HasCode(err, appErrors.ErrAuthentication.Code) || appErrors.HasCode(err, appErrors.ErrTransport.Code) {
			return err
		}
		return appErrors.WrapAs(err, appErrors.ErrTransport, "failed to store encryption key")
	}
	return nil
}

// do executes the request and maps failures onto the error taxonomy.
func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrTransport, "storage service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrTransport, "read storage service response")
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, appErrors.Clone(appErrors.ErrAuthentication, fmt.Sprintf("storage service refused credentials (%d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, appErrors.Clone(appErrors.ErrTransport, fmt.Sprintf("storage service returned %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}
	return body, nil
}

// encrypt seals content with XChaCha20-Poly1305 under a random key. The
// output is nonce || ciphertext.
func encrypt(key, content []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(content)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, content, nil), nil
}

// Decrypt opens a payload produced by UploadEncrypted's encryption step.
func Decrypt(key, payload []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	if len(payload) < aead.NonceSize() {
		return nil, fmt.Errorf("ciphertext too short")
	}
	nonce, sealed := payload[:aead.NonceSize()], payload[aead.NonceSize():]
	return aead.Open(nil, nonce, sealed, nil)
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// progressTracker forwards non-decreasing fractions and holds back 1 until
// complete is called.
type progressTracker struct {
	mu   sync.Mutex
	fn   ProgressFunc
	last float64
}

func newProgressTracker(fn ProgressFunc) *progressTracker {
	return &progressTracker{fn: fn, last: -1}
}

const maxInFlightFraction = 0.99

func (p *progressTracker) report(fraction float64) {
	if fraction > maxInFlightFraction {
		fraction = maxInFlightFraction
	}
	if fraction < 0 {
		fraction = 0
	}
	p.emit(fraction)
}

func (p *progressTracker) complete() {
	p.emit(1)
}

func (p *progressTracker) emit(fraction float64) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if fraction <= p.last {
		return
	}
	p.last = fraction
	p.fn(fraction)
}

type countingReader struct {
	r       io.Reader
	read    int64
	total   int64
	tracker *progressTracker
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 && c.total > 0 {
		c.read += int64(n)
		c.tracker.report(float64(c.read) / float64(c.total))
	}
	return n, err
}
