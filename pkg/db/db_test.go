package db

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(Config{Type: "oracle"})
	require.EqualError(t, err, "unsupported oracle type")
}

func TestDialectBuildsKnownTypes(t *testing.T) {
	for _, typ := range []string{TypeMySQL, TypePostgres, TypeSQLite} {
		d, err := Dialect(Config{Type: typ, Host: "localhost", Port: "1", Name: "academia", User: "u"})
		require.NoError(t, err, typ)
		assert.Equal(t, typ, d.Name())
	}
}

func TestPing(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, Ping(context.Background(), conn))
}
