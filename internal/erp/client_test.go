package erp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *miniredis.Miniredis) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	mr := miniredis.RunT(t)
	cache := NewSessionCache(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	client := NewClient(server.URL, Credentials{CompanyDB: "TEST", UserName: "manager", Password: "secret"}, cache, nil)
	return client, mr
}

func TestValidateItemResolvesManagementType(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/Login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		_ = json.NewEncoder(w).Encode(map[string]any{"SessionId": "sess-1", "SessionTimeout": 30})
	})
	mux.HandleFunc("/Items('BATCH01')", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("B1SESSION")
		require.NoError(t, err)
		require.Equal(t, "sess-1", cookie.Value)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ItemCode":           "BATCH01",
			"ItemName":           "Batch item",
			"ManageBatchNumbers": "tYES",
		})
	})
	mux.HandleFunc("/Items('SER01')", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ItemCode":            "SER01",
			"ManageSerialNumbers": "tYES",
		})
	})
	mux.HandleFunc("/Items('PLAIN01')", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ItemCode": "PLAIN01"})
	})

	client, _ := newTestClient(t, mux)
	ctx := context.Background()

	info, err := client.ValidateItem(ctx, "BATCH01")
	require.NoError(t, err)
	require.Equal(t, BatchManaged, info.Management)

	info, err = client.ValidateItem(ctx, "SER01")
	require.NoError(t, err)
	require.Equal(t, SerialManaged, info.Management)

	info, err = client.ValidateItem(ctx, "PLAIN01")
	require.NoError(t, err)
	require.Equal(t, Unmanaged, info.Management)

	// The session is cached, so three calls share one login.
	require.Equal(t, 1, logins)
}

func TestValidateItemUnknownCode(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"SessionId": "sess-1", "SessionTimeout": 30})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.ValidateItem(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrItemNotFound)
}

func TestExpiredSessionIsRefreshedOnce(t *testing.T) {
	logins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/Login", func(w http.ResponseWriter, r *http.Request) {
		logins++
		_ = json.NewEncoder(w).Encode(map[string]any{"SessionId": "sess-2", "SessionTimeout": 30})
	})
	mux.HandleFunc("/PurchaseDeliveryNotes", func(w http.ResponseWriter, r *http.Request) {
		cookie, _ := r.Cookie("B1SESSION")
		if cookie == nil || cookie.Value != "sess-2" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(PostResult{DocEntry: 991, DocNum: "GRPO-991"})
	})

	client, mr := newTestClient(t, mux)
	// Seed a stale session so the first attempt is rejected.
	require.NoError(t, mr.Set("erp:service_layer:session", "stale"))

	result, err := client.PostGoodsReceipt(context.Background(), GoodsReceipt{
		CardCode: "V10001",
		DocDate:  "2026-03-14",
		Lines:    []GoodsReceiptLine{{ItemCode: "BATCH01", Quantity: 10, WarehouseCode: "WH1"}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(991), result.DocEntry)
	require.Equal(t, 1, logins)
}

func TestPostRejectedSurfacesSentinel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/Login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"SessionId": "sess-1", "SessionTimeout": 30})
	})
	mux.HandleFunc("/DeliveryNotes", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	client, _ := newTestClient(t, mux)
	_, err := client.PostDelivery(context.Background(), Delivery{CardCode: "C1", DocDate: "2026-03-14"})
	require.ErrorIs(t, err, ErrPostRejected)
}
