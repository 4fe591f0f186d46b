package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/prodir?sslmode=disable", MigrateURL("postgres://u:p@db:5432/prodir?sslmode=disable"))
	assert.Equal(t, "pgx5://u@db/prodir", MigrateURL("postgresql://u@db/prodir"))
	assert.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}
