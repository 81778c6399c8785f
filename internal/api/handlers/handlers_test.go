package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/data-analyst/backend/internal/analysis"
	blobfs "github.com/data-analyst/backend/internal/blob/fs"
	"github.com/data-analyst/backend/internal/dataset"
	"github.com/data-analyst/backend/internal/query"
	"github.com/data-analyst/backend/internal/store"
	"github.com/data-analyst/backend/internal/store/docstore"
	"github.com/data-analyst/backend/internal/tasks"
)

type memDocs struct {
	mu   sync.Mutex
	docs map[string]map[string]docstore.Document
}

func newMemDocs() *memDocs {
	return &memDocs{docs: make(map[string]map[string]docstore.Document)}
}

func (m *memDocs) Create(ctx context.Context, collection, id string, doc docstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]docstore.Document)
	}
	m.docs[collection][id] = doc
	return nil
}

func (m *memDocs) Get(ctx context.Context, collection, id string) (docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return nil, docstore.ErrNotFound
	}
	return doc, nil
}

func (m *memDocs) List(ctx context.Context, collection, filterKey string, filterValue interface{}) ([]docstore.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []docstore.Document
	for _, doc := range m.docs[collection] {
		if doc[filterKey] == filterValue {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *memDocs) Update(ctx context.Context, collection, id string, fields docstore.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[collection][id]
	if !ok {
		return docstore.ErrNotFound
	}
	for k, v := range fields {
		doc[k] = v
	}
	return nil
}

func (m *memDocs) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[collection], id)
	return nil
}

// fakeEngine serves both the processing and the query side of the analysis
// client.
type fakeEngine struct {
	processResult *analysis.ProcessResult
	queryResult   *analysis.QueryResult
	err           error
	healthy       bool
}

func (f *fakeEngine) Process(ctx context.Context, datasetID, fileURL, fileName string) (*analysis.ProcessResult, error) {
	return f.processResult, f.err
}

func (f *fakeEngine) Query(ctx context.Context, datasetID, q, userID string) (*analysis.QueryResult, error) {
	return f.queryResult, f.err
}

func (f *fakeEngine) HealthCheck(ctx context.Context) bool {
	return f.healthy
}

type testApp struct {
	app     *fiber.App
	gateway *store.Gateway
	blobs   *blobfs.Store
	pool    *tasks.Pool
}

func newTestApp(t *testing.T, engine *fakeEngine) *testApp {
	t.Helper()

	blobs, err := blobfs.New(afero.NewMemMapFs(), "/blobs", "test-secret", "http://localhost:8080")
	require.NoError(t, err)

	gateway := store.NewGateway(newMemDocs())
	pool := tasks.NewPool(2, 8)
	t.Cleanup(pool.Stop)

	datasetService := dataset.NewService(gateway, blobs, engine, pool, nil, time.Hour)
	queryService := query.NewService(gateway, engine, nil)

	datasetHandler := NewDatasetHandler(datasetService)
	queryHandler := NewQueryHandler(queryService)
	chatHandler := NewChatHandler(queryService)
	connectionHandler := NewConnectionHandler(gateway)
	authHandler := NewAuthHandler(gateway)
	fileHandler := NewFileHandler(blobs)

	app := fiber.New()
	api := app.Group("/api")

	api.Post("/datasets/upload", datasetHandler.Upload)
	api.Get("/datasets", datasetHandler.List)
	api.Get("/datasets/:id/url", datasetHandler.RefreshURL)
	api.Get("/datasets/:id", datasetHandler.Get)
	api.Delete("/datasets/:id", datasetHandler.Delete)

	api.Post("/query", queryHandler.Query)
	api.Get("/query/history/:datasetId", queryHandler.History)
	api.Get("/query/health", queryHandler.Health)

	api.Post("/chat", chatHandler.Save)
	api.Get("/chat/:datasetId", chatHandler.History)

	api.Post("/connections", connectionHandler.Save)
	api.Get("/connections/:userId", connectionHandler.ListForUser)
	api.Delete("/connections/:connectionId", connectionHandler.Delete)

	api.Post("/auth/register", authHandler.Register)
	api.Post("/auth/verify", authHandler.Verify)
	api.Get("/auth/user/:uid", authHandler.GetUser)

	api.Get("/files/*", fileHandler.Download)

	return &testApp{app: app, gateway: gateway, blobs: blobs, pool: pool}
}

func multipartUpload(t *testing.T, fileName, contentType, userID string, data []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)

	if userID != "" {
		require.NoError(t, writer.WriteField("userId", userID))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
}

func TestUploadEndpoint(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{processResult: &analysis.ProcessResult{Success: true, RowCount: 10, ColumnCount: 3}})

	req := multipartUpload(t, "sales.csv", "text/csv", "u1", []byte("a,b\n1,2\n"))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success       bool   `json:"success"`
		Message       string `json:"message"`
		DatasetID     string `json:"datasetId"`
		FileName      string `json:"fileName"`
		FileSizeBytes int64  `json:"fileSizeBytes"`
		StoragePath   string `json:"storagePath"`
	}
	decodeJSON(t, resp, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "File uploaded successfully", body.Message)
	assert.NotEmpty(t, body.DatasetID)
	assert.Equal(t, "sales.csv", body.FileName)
	assert.Equal(t, int64(8), body.FileSizeBytes)
	assert.True(t, strings.HasPrefix(body.StoragePath, "datasets/u1/"))
}

func TestUploadEndpointRejectsEmptyFile(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	req := multipartUpload(t, "sales.csv", "text/csv", "u1", nil)
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "File is empty", body["message"])
}

func TestUploadEndpointRejectsWrongType(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	req := multipartUpload(t, "report.pdf", "application/pdf", "u1", []byte("%PDF"))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "Invalid file type. Only CSV and Excel files are supported.", body["message"])
}

func TestUploadEndpointRequiresUserID(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	req := multipartUpload(t, "sales.csv", "text/csv", "", []byte("a,b\n"))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUploadEndpointRequiresFile(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("userId", "u1"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetAndListDatasets(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{processResult: &analysis.ProcessResult{Success: true}})

	req := multipartUpload(t, "sales.csv", "text/csv", "u1", []byte("a,b\n1,2\n"))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var uploaded struct {
		DatasetID string `json:"datasetId"`
	}
	decodeJSON(t, resp, &uploaded)

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/datasets/"+uploaded.DatasetID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ds map[string]interface{}
	decodeJSON(t, resp, &ds)
	assert.Equal(t, "sales.csv", ds["fileName"])
	assert.Equal(t, "CSV", ds["fileType"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/datasets?userId=u1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list []map[string]interface{}
	decodeJSON(t, resp, &list)
	assert.Len(t, list, 1)
}

func TestGetDatasetNotFound(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/datasets/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListDatasetsRequiresUserID(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/datasets", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDeleteDatasetEndpoint(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{processResult: &analysis.ProcessResult{Success: true}})

	req := multipartUpload(t, "sales.csv", "text/csv", "u1", []byte("a,b\n"))
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)

	var uploaded struct {
		DatasetID string `json:"datasetId"`
	}
	decodeJSON(t, resp, &uploaded)

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodDelete, "/api/datasets/"+uploaded.DatasetID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Dataset deleted successfully", body["message"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/datasets/"+uploaded.DatasetID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDeleteDatasetNotFound(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodDelete, "/api/datasets/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestQueryEndpoint(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{queryResult: &analysis.QueryResult{Success: true, Response: "42"}})

	payload := `{"datasetId":"d1","query":"what is the answer?","userId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body query.Result
	decodeJSON(t, resp, &body)
	assert.True(t, body.Success)
	assert.Equal(t, "42", body.Response)
	assert.NotEmpty(t, body.MessageID)

	// The exchange lands in the dataset's history.
	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/query/history/d1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var history []map[string]interface{}
	decodeJSON(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "what is the answer?", history[0]["userMessage"])
	assert.Equal(t, "42", history[0]["aiResponse"])
}

func TestQueryEndpointEngineFailure(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{queryResult: &analysis.QueryResult{Success: false, Error: "no such column"}})

	payload := `{"datasetId":"d1","query":"sum the widgets","userId":"u1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body query.Result
	decodeJSON(t, resp, &body)
	assert.False(t, body.Success)
	assert.Equal(t, "no such column", body.Error)
}

func TestQueryEndpointValidation(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	for name, payload := range map[string]string{
		"missing dataset": `{"query":"anything","userId":"u1"}`,
		"missing query":   `{"datasetId":"d1","userId":"u1"}`,
		"bad json":        `{not json`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/query", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		resp, err := ta.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, name)
	}
}

func TestQueryHealthEndpoint(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{healthy: true})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/query/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "UP", body["pythonService"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestQueryHealthEndpointEngineDown(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{healthy: false})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/query/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode, "the service itself is up even when the engine is down")

	var body map[string]interface{}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "DOWN", body["pythonService"])
}

func TestChatSaveAndHistory(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	payload := `{"datasetId":"d1","userId":"u1","userMessage":"hi","aiResponse":"hello"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var saved map[string]interface{}
	decodeJSON(t, resp, &saved)
	assert.NotEmpty(t, saved["id"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/chat/d1", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var history []map[string]interface{}
	decodeJSON(t, resp, &history)
	require.Len(t, history, 1)
	assert.Equal(t, "hi", history[0]["userMessage"])
}

func TestConnectionLifecycle(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	payload := `{"userId":"u1","name":"reports","type":"mysql","host":"db.internal","port":3307,"database":"reports","username":"reader","password":"secret"}`
	req := httptest.NewRequest(http.MethodPost, "/api/connections", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var saved map[string]interface{}
	decodeJSON(t, resp, &saved)
	connID, _ := saved["id"].(string)
	assert.True(t, strings.HasPrefix(connID, "conn_"))
	assert.NotEmpty(t, saved["createdAt"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/connections/u1", nil), -1)
	require.NoError(t, err)
	var list []map[string]interface{}
	decodeJSON(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "reports", list[0]["name"])
	assert.Equal(t, float64(3307), list[0]["port"])

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodDelete, "/api/connections/"+connID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/connections/u1", nil), -1)
	require.NoError(t, err)
	decodeJSON(t, resp, &list)
	assert.Empty(t, list)
}

func TestAuthRegisterAndGetUser(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	payload := `{"email":"analyst@example.com","displayName":"Analyst"}`
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
		User    struct {
			UID   string `json:"uid"`
			Email string `json:"email"`
		} `json:"user"`
	}
	decodeJSON(t, resp, &body)
	assert.True(t, body.Success)
	assert.Equal(t, body.User.UID, body.Token)

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/user/"+body.User.UID, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var user map[string]interface{}
	decodeJSON(t, resp, &user)
	assert.Equal(t, "analyst@example.com", user["email"])
}

func TestAuthGetUserNotFound(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/auth/user/missing", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthVerify(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodPost, "/api/auth/verify", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer anything")
	resp, err = ta.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFileDownload(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})
	ctx := context.Background()

	data := []byte("a,b\n1,2\n")
	require.NoError(t, ta.blobs.Put(ctx, "datasets/u1/sales.csv", data, "text/csv"))

	signedURL, err := ta.blobs.SignedURL("datasets/u1/sales.csv", time.Hour)
	require.NoError(t, err)

	parsed, err := url.Parse(signedURL)
	require.NoError(t, err)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, parsed.Path+"?"+parsed.RawQuery, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, data, body)
}

func TestFileDownloadRejectsBadSignature(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})
	ctx := context.Background()

	require.NoError(t, ta.blobs.Put(ctx, "datasets/u1/sales.csv", []byte("x"), "text/csv"))

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet,
		"/api/files/datasets/u1/sales.csv?exp=9999999999&sig=deadbeef", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestFileDownloadRejectsMissingParams(t *testing.T) {
	ta := newTestApp(t, &fakeEngine{})

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/api/files/datasets/u1/sales.csv", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
