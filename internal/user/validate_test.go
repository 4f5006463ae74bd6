package user

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestValidateUsername(t *testing.T) {
	assert.NoError(t, ValidateUsername("cast_taro"))
	assert.Error(t, ValidateUsername("ab"))
	assert.Error(t, ValidateUsername("has space"))
	assert.Error(t, ValidateUsername(strings.Repeat("a", 21)))
}

func TestValidateEmailAndPassword(t *testing.T) {
	assert.NoError(t, ValidateEmail("taro@example.com"))
	assert.Error(t, ValidateEmail("Taro <taro@example.com>"))
	assert.Error(t, ValidateEmail("nope"))

	assert.NoError(t, ValidatePassword("12345678"))
	assert.Error(t, ValidatePassword("short"))
}

func TestValidateProfile(t *testing.T) {
	tests := []struct {
		name    string
		input   UpdateProfileInput
		wantErr bool
	}{
		{name: "empty input", input: UpdateProfileInput{}},
		{name: "valid vrchat id", input: UpdateProfileInput{VRChatID: ptr("usr_12345678-abcd-ef01-2345-6789abcdef01")}},
		{name: "clearing vrchat id", input: UpdateProfileInput{VRChatID: ptr("  ")}},
		{name: "bad vrchat id", input: UpdateProfileInput{VRChatID: ptr("usr_nothex")}, wantErr: true},
		{name: "blank display name", input: UpdateProfileInput{DisplayName: ptr("   ")}, wantErr: true},
		{name: "long bio", input: UpdateProfileInput{Bio: ptr(strings.Repeat("あ", 501))}, wantErr: true},
		{name: "discord snowflake", input: UpdateProfileInput{DiscordID: ptr("123456789012345678")}},
		{name: "bad discord", input: UpdateProfileInput{DiscordID: ptr("Bad Name!")}, wantErr: true},
		{name: "twitter with at", input: UpdateProfileInput{TwitterID: ptr("@castchat")}},
		{name: "bad twitter", input: UpdateProfileInput{TwitterID: ptr("way_too_long_handle_x")}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProfile(&tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateProfileNormalizes(t *testing.T) {
	in := UpdateProfileInput{
		Username:    ptr("  taro_1 "),
		DisplayName: ptr(" Taro "),
		TwitterID:   ptr("@taro"),
	}
	require.NoError(t, ValidateProfile(&in))

	assert.Equal(t, "taro_1", *in.Username)
	assert.Equal(t, "Taro", *in.DisplayName)
	assert.Equal(t, "taro", *in.TwitterID)
}
