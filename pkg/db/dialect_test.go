package db

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relstore/relstore/pkg/core"
)

func TestDialects(t *testing.T) {
	tests := []struct {
		dialect       core.Dialect
		name          string
		style         core.ParamStyle
		quoted        string
		placeholder   string
		returning     string
		autoPK        string
		defaultValues string
	}{
		{
			dialect:       SQLiteDialect{},
			name:          "sqlite",
			style:         core.ParamStyleNamed,
			quoted:        `"col"`,
			placeholder:   ":key",
			returning:     ` RETURNING "id"`,
			autoPK:        `"id" INTEGER PRIMARY KEY`,
			defaultValues: " DEFAULT VALUES",
		},
		{
			dialect:       PostgresDialect{},
			name:          "postgres",
			style:         core.ParamStyleOrdinal,
			quoted:        `"col"`,
			placeholder:   "$3",
			returning:     ` RETURNING "id"`,
			autoPK:        `"id" SERIAL PRIMARY KEY`,
			defaultValues: " DEFAULT VALUES",
		},
		{
			dialect:       MySQLDialect{},
			name:          "mysql",
			style:         core.ParamStyleQMark,
			quoted:        "`col`",
			placeholder:   "?",
			returning:     "",
			autoPK:        "`id` INT AUTO_INCREMENT PRIMARY KEY",
			defaultValues: " () VALUES ()",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.dialect
			assert.Equal(t, tt.name, d.Name())
			assert.Equal(t, tt.style, d.ParamStyle())
			assert.Equal(t, tt.quoted, d.Quote("col"))
			assert.Equal(t, tt.placeholder, d.Placeholder("key", 3))
			assert.Equal(t, tt.returning, d.ReturningClause("id"))
			assert.Equal(t, tt.autoPK, d.AutoPKSQL("id"))
			assert.Equal(t, tt.defaultValues, d.DefaultValuesSQL())
			assert.Equal(t, tt.returning != "", d.SupportsReturning())
		})
	}
}
