package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/lighthouse"
)

type fakeUploadService struct {
	uploadErr error
	submitErr error
	lastFile  lighthouse.File
}

func (f *fakeUploadService) Upload(_ context.Context, _ *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, error) {
	f.lastFile = file
	progress(0.4)
	if f.uploadErr != nil {
		return &models.UploadResult{Success: false, DisplayName: file.Name, Error: f.uploadErr.Error()}, f.uploadErr
	}
	progress(1)
	return &models.UploadResult{Success: true, ID: "0b7ad9a4-4d1b-4b8e-9a51-8f35f2a5c1d1", CID: "bafk", DisplayName: file.Name, ByteSize: int64(len(file.Content)), GatewayURL: "https://gw/ipfs/bafk"}, nil
}

func (f *fakeUploadService) UploadAndSubmit(ctx context.Context, s *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, *ledger.Receipt, error) {
	result, err := f.Upload(ctx, s, file, progress)
	if err != nil {
		return result, nil, err
	}
	if f.submitErr != nil {
		return result, nil, f.submitErr
	}
	return result, &ledger.Receipt{TxHash: common.HexToHash("0x01"), BlockNumber: 9}, nil
}

func (f *fakeUploadService) ResubmitUpload(context.Context, *models.Session, string) (*ledger.Receipt, error) {
	return &ledger.Receipt{TxHash: common.HexToHash("0x02"), BlockNumber: 10}, nil
}

func (f *fakeUploadService) ListUnsubmitted(context.Context, *models.Session) ([]models.UploadRecord, error) {
	return nil, nil
}

func multipartRequest(t *testing.T, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())
	req := httptest.NewRequest(http.MethodPost, "/documents/upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func runUpload(t *testing.T, svc *fakeUploadService, req *http.Request, withSession bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req
	if withSession {
		c.Set(middleware.ContextSessionKey, &models.Session{Address: common.HexToAddress("0xaa")})
	}
	NewUploadHandler(svc, 64).Upload(c)

	var body map[string]interface{}
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestUploadHandlerSuccess(t *testing.T) {
	svc := &fakeUploadService{}
	rec, body := runUpload(t, svc, multipartRequest(t, "id.png", []byte("image"), nil), true)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	data := body["data"].(map[string]interface{})
	assert.Equal(t, true, data["success"])
	assert.Equal(t, "bafk", data["cid"])
	assert.Nil(t, data["submission"])
	assert.Equal(t, float64(1), body["meta"].(map[string]interface{})["upload_progress"])
	assert.Equal(t, []byte("image"), svc.lastFile.Content)
}

func TestUploadHandlerSubmitFailureKeepsUpload(t *testing.T) {
	svc := &fakeUploadService{submitErr: appErrors.Clone(appErrors.ErrTransport, "ledger unreachable")}
	rec, body := runUpload(t, svc, multipartRequest(t, "id.png", []byte("image"), map[string]string{"submit": "true"}), true)

	require.Equal(t, http.StatusCreated, rec.Code)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "ledger unreachable", data["submitError"])
	assert.Nil(t, data["submission"])
}

func TestUploadHandlerSubmits(t *testing.T) {
	rec, body := runUpload(t, &fakeUploadService{}, multipartRequest(t, "id.png", []byte("image"), map[string]string{"submit": "true"}), true)

	require.Equal(t, http.StatusCreated, rec.Code)
	submission := body["data"].(map[string]interface{})["submission"].(map[string]interface{})
	assert.Equal(t, float64(9), submission["blockNumber"])
}

func TestUploadHandlerFailures(t *testing.T) {
	rec, _ := runUpload(t, &fakeUploadService{}, multipartRequest(t, "id.png", []byte("x"), nil), false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = runUpload(t, &fakeUploadService{}, multipartRequest(t, "id.png", make([]byte, 65), nil), true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	noFile := httptest.NewRequest(http.MethodPost, "/documents/upload", nil)
	rec, _ = runUpload(t, &fakeUploadService{}, noFile, true)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	svc := &fakeUploadService{uploadErr: appErrors.WrapAs(errors.New("reset"), appErrors.ErrTransport, "upload interrupted")}
	rec, body := runUpload(t, svc, multipartRequest(t, "id.png", []byte("x"), nil), true)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "TRANSPORT_ERROR", body["error"].(map[string]interface{})["code"])
}

func TestResubmitValidatesID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/uploads/nope/submit", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}
	c.Set(middleware.ContextSessionKey, &models.Session{Address: common.HexToAddress("0xaa")})

	NewUploadHandler(&fakeUploadService{}, 0).Resubmit(c)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
