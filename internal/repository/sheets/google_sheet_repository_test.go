package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"
)

func TestWriteRowAppendsValues(t *testing.T) {
	var got sheetsapi.ValueRange
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/v4/spreadsheets/sheet-1/values/")
		assert.Equal(t, "RAW", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"spreadsheetId":"sheet-1"}`))
	}))
	defer srv.Close()

	svc, err := sheetsapi.NewService(context.Background(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	repo := &GoogleSheetRepository{service: svc, spreadsheetID: "sheet-1", logger: zap.NewNop()}
	require.NoError(t, repo.WriteRow(context.Background(), TotalsRange, []interface{}{"2024-05-12", "u1", 2}))

	require.Len(t, got.Values, 1)
	assert.Equal(t, []interface{}{"2024-05-12", "u1", float64(2)}, got.Values[0])
}

func TestWriteRowRequiresRange(t *testing.T) {
	repo := &GoogleSheetRepository{}
	assert.Error(t, repo.WriteRow(context.Background(), "", nil))
}
