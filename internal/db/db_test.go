package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transit-explorer/core/internal/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := ConnectSQLite(filepath.Join(t.TempDir(), "transit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.EnsureSchema(context.Background()))
	return database
}

func count(t *testing.T, database *DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, database.Conn().QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM t WHERE a = ? AND b = ?"
	assert.Equal(t, q, Rebind(SQLite, q))
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", Rebind(Postgres, q))
}

func TestStatements(t *testing.T) {
	stmts := statements("-- header\n\nCREATE TABLE a (x INTEGER);\n-- only a comment;\nCREATE TABLE b (y TEXT);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INTEGER)", "CREATE TABLE b (y TEXT)"}, stmts)
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	database := openTestDB(t)
	require.NoError(t, database.EnsureSchema(context.Background()))
	assert.Equal(t, SQLite, database.Dialect())
}

func TestSaveBoard(t *testing.T) {
	database := openTestDB(t)
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	eta := 4

	id, err := database.SaveBoard(context.Background(), models.DepartureBoard{
		Stop:          models.Stop{ID: "S1"},
		GeneratedAt:   at,
		LiveAvailable: true,
		Departures: []models.Departure{
			{Route: "A1", Time: at.Add(4 * time.Minute), IsLive: true, VehicleID: "MH12-1", ETAMins: &eta},
			{Route: "B2", Time: at.Add(10 * time.Minute), Synthetic: true},
		},
	})
	require.NoError(t, err)
	assert.Len(t, id, 36)
	assert.Equal(t, 1, count(t, database, "board_snapshots"))
	assert.Equal(t, 2, count(t, database, "board_departures"))

	var vehicle *string
	var etaMins *int
	require.NoError(t, database.Conn().QueryRow(
		"SELECT vehicle_id, eta_mins FROM board_departures WHERE snapshot_id = ? AND position = 1", id,
	).Scan(&vehicle, &etaMins))
	assert.Nil(t, vehicle)
	assert.Nil(t, etaMins)
}

func TestUpsertVehiclePositions(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

	pos := models.VehiclePosition{VehicleID: "MH12-1", RouteID: "R1", Latitude: 18.5, Longitude: 73.86, Timestamp: at}
	require.NoError(t, database.UpsertVehiclePositions(ctx, at, []models.VehiclePosition{pos}))

	pos.Latitude = 18.51
	pos.Timestamp = at.Add(30 * time.Second)
	require.NoError(t, database.UpsertVehiclePositions(ctx, at.Add(30*time.Second), []models.VehiclePosition{pos}))
	// same fix again only touches current
	require.NoError(t, database.UpsertVehiclePositions(ctx, at.Add(60*time.Second), []models.VehiclePosition{pos}))

	assert.Equal(t, 1, count(t, database, "vehicle_current"))
	assert.Equal(t, 2, count(t, database, "vehicle_history"))

	var lat float64
	require.NoError(t, database.Conn().QueryRow("SELECT latitude FROM vehicle_current WHERE vehicle_key = ?", VehicleKey("R1", "MH12-1")).Scan(&lat))
	assert.Equal(t, 18.51, lat)

	err := database.UpsertVehiclePositions(ctx, at, []models.VehiclePosition{{VehicleID: "X"}})
	assert.Error(t, err)
}

func TestCleanup(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	for _, at := range []time.Time{now.Add(-48 * time.Hour), now.Add(-time.Hour)} {
		_, err := database.SaveBoard(ctx, models.DepartureBoard{
			Stop:        models.Stop{ID: "S1"},
			GeneratedAt: at,
			Departures:  []models.Departure{{Route: "A1", Time: at}},
		})
		require.NoError(t, err)
		require.NoError(t, database.UpsertVehiclePositions(ctx, at, []models.VehiclePosition{
			{VehicleID: "V1", RouteID: "R1", Latitude: 18.5, Longitude: 73.8, Timestamp: at},
		}))
	}

	require.NoError(t, database.Cleanup(ctx, 24*time.Hour, now))
	assert.Equal(t, 1, count(t, database, "board_snapshots"))
	assert.Equal(t, 1, count(t, database, "board_departures"))
	assert.Equal(t, 1, count(t, database, "vehicle_history"))
	assert.Equal(t, 1, count(t, database, "vehicle_current"))
}
