package puller

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PluralKit/avatars/internal/faults"
)

func TestParseURL_Valid(t *testing.T) {
	src, err := ParseURL("https://cdn.discordapp.com/attachments/920123456789/1089988776655443322/avatar.png")
	require.NoError(t, err)

	assert.Equal(t, uint64(920123456789), src.ChannelID)
	assert.Equal(t, uint64(1089988776655443322), src.AttachmentID)
	assert.Equal(t, "avatar.png", src.Filename)
	assert.Equal(t, "https://cdn.discordapp.com/attachments/920123456789/1089988776655443322/avatar.png", src.FullURL)
}

func TestParseURL_MediaHost(t *testing.T) {
	src, err := ParseURL("https://media.discordapp.net/attachments/1/2/banner.jpg")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), src.AttachmentID)
}

func TestParseURL_Invalid(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"plain http", "http://cdn.discordapp.com/attachments/1/2/a.png"},
		{"wrong host", "https://example.com/attachments/1/2/a.png"},
		{"subdomain of allowed host", "https://evil.cdn.discordapp.com/attachments/1/2/a.png"},
		{"too few segments", "https://cdn.discordapp.com/attachments/1/a.png"},
		{"too many segments", "https://cdn.discordapp.com/attachments/1/2/3/a.png"},
		{"non-numeric channel", "https://cdn.discordapp.com/attachments/abc/2/a.png"},
		{"non-numeric attachment", "https://cdn.discordapp.com/attachments/1/abc/a.png"},
		{"negative id", "https://cdn.discordapp.com/attachments/1/-2/a.png"},
		{"empty path", "https://cdn.discordapp.com"},
		{"missing filename", "https://cdn.discordapp.com/attachments/1/2/"},
		{"not a url", "::not a url::"},
		{"empty", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseURL(tt.url)
			require.Error(t, err)

			var fe *faults.Error
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, faults.InvalidSource, fe.Kind)
			assert.Equal(t, faults.ClassPermanent, faults.Classify(err))
		})
	}
}
