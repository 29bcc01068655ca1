package filecsv

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
)

func TestReadPlannedItems(t *testing.T) {
	in := `Platform,Caption,Hashtags,Link,Media_URLs,Not_Before
twitter,Spring drop is live,"#spring, sale",https://shop.example/spring,,
instagram,,,,https://cdn.example/a.jpg https://cdn.example/b.jpg,2026-04-01T09:00:00Z

x,Short one,,,,
`
	items, err := ReadPlannedItems(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, model.PlatformTwitter, items[0].Platform)
	assert.Equal(t, []string{"#spring", "sale"}, items[0].Payload.Hashtags)
	assert.Equal(t, "https://shop.example/spring", items[0].Payload.Link)
	assert.Nil(t, items[0].NotBefore)

	assert.Equal(t, model.PlatformInstagram, items[1].Platform)
	assert.Len(t, items[1].Payload.MediaURLs, 2)
	require.NotNil(t, items[1].NotBefore)
	assert.True(t, items[1].NotBefore.Equal(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)))

	assert.Equal(t, model.PlatformTwitter, items[2].Platform)
}

func TestReadPlannedItems_Rejections(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"no platform":    "caption\nhello\n",
		"bad platform":   "platform,caption\nmyspace,hello\n",
		"nothing to say": "platform,caption\ntwitter,\n",
		"bad time":       "platform,caption,not_before\ntwitter,hi,tomorrow\n",
		"header only":    "platform,caption\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadPlannedItems(strings.NewReader(in))
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}
