package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	logx "remindbot/pkg/logx"
)

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tasks.db")

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.Persist(ctx, 10, "survive restart"))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	tasks, err := st.FindByRoom(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, "survive restart", tasks[0].Text)
	require.Equal(t, "10", tasks[0].RoomKey)
	require.False(t, tasks[0].CreatedAt.IsZero())
}

func TestSQLiteUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "bolt", Path: "x"}, logx.Nop())
	require.Error(t, err)
}
