package listing_test

import (
	"bytes"
	"encoding/base64"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"EcoMarket/internal/catalog"
	"EcoMarket/internal/listing"
)

type part struct {
	name, value string
}

func uploadRequest(t *testing.T, fields []part, photo []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range fields {
		require.NoError(t, mw.WriteField(f.name, f.value))
	}
	if photo != nil {
		fw, err := mw.CreateFormFile("foto", "foto.png")
		require.NoError(t, err)
		_, err = fw.Write(photo)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/products", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestServerCreate(t *testing.T) {
	svc, _ := newService(t, nil)
	srv := &listing.Server{Service: svc}

	req := uploadRequest(t, []part{
		{"titulo", "Bicicleta"},
		{"descartador", "Pedro"},
		{"categorias", "Metales"},
		{"categorias", "Chatarra"},
	}, pngBytes(t))
	rr := httptest.NewRecorder()
	srv.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var p catalog.Product
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &p))
	assert.Equal(t, "001", p.SKU)
	assert.Equal(t, []string{"Metales", "Chatarra"}, p.Categories)
	assert.NotEmpty(t, p.ImageRef)
}

func TestServerCreate_CameraCapture(t *testing.T) {
	svc, _ := newService(t, nil)
	srv := &listing.Server{Service: svc}

	du := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))
	req := uploadRequest(t, []part{
		{"titulo", "Silla"},
		{"descartador", "Ana"},
		{"foto_camara", du},
	}, nil)
	rr := httptest.NewRecorder()
	srv.Create(rr, req)

	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), ".png")
}

func TestServerCreate_Errors(t *testing.T) {
	svc, _ := newService(t, nil)
	srv := &listing.Server{Service: svc}

	rr := httptest.NewRecorder()
	srv.Create(rr, uploadRequest(t, []part{{"titulo", "Sin receptor"}}, nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "descartador")

	rr = httptest.NewRecorder()
	srv.Create(rr, uploadRequest(t, []part{{"titulo", "x"}, {"descartador", "y"}}, []byte("plain text")))
	assert.Equal(t, http.StatusUnsupportedMediaType, rr.Code)

	rr = httptest.NewRecorder()
	srv.Create(rr, uploadRequest(t, []part{{"titulo", "x"}, {"descartador", "y"}, {"foto_camara", "data:x"}}, nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
