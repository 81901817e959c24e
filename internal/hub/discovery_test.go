package hub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1.0/bridge" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"name":"Bridge","serialNumber":"10-aa","currentFirmwareVersion":"2.3.1","type":1}`))
	}))
}

// Discovery probes every candidate and returns the first one answering like
// a hub.
func TestDiscoverFindsHubAmongCandidates(t *testing.T) {
	good := fakeHubServer(t)
	defer good.Close()

	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Something answering HTTP that is not a hub.
		w.Write([]byte(`<html>router admin</html>`))
	}))
	defer bad.Close()

	d := NewDiscovery("secret")
	d.candidates = []string{bad.URL, good.URL}

	url, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, good.URL, url)
}

func TestDiscoverNoHub(t *testing.T) {
	bad := httptest.NewServer(http.NotFoundHandler())
	defer bad.Close()

	d := NewDiscovery("secret")
	d.candidates = []string{bad.URL}

	_, err := d.Discover(context.Background())
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	good := fakeHubServer(t)
	defer good.Close()

	d := NewDiscovery("secret")

	info, err := d.Verify(context.Background(), good.URL)
	require.NoError(t, err)
	assert.Equal(t, "Bridge", info.Name)

	_, err = d.Verify(context.Background(), "http://127.0.0.1:1")
	assert.Error(t, err)
}
