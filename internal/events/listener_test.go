package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseChange(t *testing.T) {
	e, err := ParseChange(`{"table":"messages","op":"INSERT","user_ids":["u2","u1","u2",null]}`)
	require.NoError(t, err)

	assert.Equal(t, DatabaseChange, e.Type)
	assert.Equal(t, []string{"u2", "u1"}, e.UserIDs)
	assert.Equal(t, "messages", e.Data["table"])
	assert.Equal(t, "INSERT", e.Data["op"])
}

func TestParseChangeMalformed(t *testing.T) {
	_, err := ParseChange("not json")
	assert.Error(t, err)
}
