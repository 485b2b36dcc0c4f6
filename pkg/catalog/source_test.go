package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecode_JSONListNormalizesLooseRecords(t *testing.T) {
	props, err := Decode([]byte(`[
		{"id": 1, "title": " Nairobi House ", "location": "Nairobi", "price": 8000000, "type": "house"},
		{"id": "p2", "title": "Beach Flat", "location": "Mombasa", "price": "KES 4,500,000", "type": "apartment", "size": 120},
		{"id": "p3", "title": "", "location": "Nakuru", "price": 100, "type": "land"},
		{"id": "p4", "title": "Missing price", "location": "Thika", "type": "land"}
	]`))
	require.NoError(t, err)
	require.Len(t, props, 2)

	require.Equal(t, "1", props[0].ID)
	require.Equal(t, "Nairobi House", props[0].Title)
	require.Equal(t, int64(8000000), props[0].Price)

	require.Equal(t, int64(4500000), props[1].Price)
	require.Equal(t, "120", props[1].Size)
}

func TestDecode_YAMLDocumentWithPropertiesKey(t *testing.T) {
	props, err := Decode([]byte(`
properties:
  - id: l1
    title: Kitengela plot
    location: Kitengela
    county: Kajiado
    price: 1500000
    type: land
`))
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.Equal(t, "Kajiado", props[0].County)
}

func TestDecode_Empty(t *testing.T) {
	props, err := Decode(nil)
	require.NoError(t, err)
	require.Empty(t, props)
}

func TestFileSource_SnapshotIsACopy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- {id: a, title: A, location: X, price: 1, type: land}\n"), 0o644))

	src := NewFileSource(path)
	first, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, first, 1)
	first[0].Title = "mutated"

	second, err := src.Snapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "A", second[0].Title)
}

func TestHTTPSource_Snapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"properties":[{"id":"h1","title":"House","location":"Karen","price":9000000,"type":"house"}]}`))
	}))
	t.Cleanup(srv.Close)

	props, err := NewHTTPSource(srv.URL, 0).Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.Equal(t, "Karen", props[0].Location)
}

func TestHTTPSource_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	_, err := NewHTTPSource(srv.URL, 0).Snapshot(context.Background())
	require.ErrorContains(t, err, "502")
}

func TestExcerpt(t *testing.T) {
	props := make([]Property, 60)
	require.Len(t, Excerpt(props, PromptLimit), 50)
	require.Len(t, Excerpt(props[:3], PromptLimit), 3)
}
