package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smallfab/smallfab/core/txn"
)

func TestParseFields(t *testing.T) {
	fields, err := parseFields([]string{"name=M3x10 bolt", "mpn=HB-M3-10", "notes=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"name":  "M3x10 bolt",
		"mpn":   "HB-M3-10",
		"notes": "a=b",
	}, fields)

	_, err = parseFields([]string{"noequals"})
	assert.Error(t, err)

	_, err = parseFields([]string{"=value"})
	assert.Error(t, err)
}

func TestPublishMode(t *testing.T) {
	cases := map[string]txn.PublishMode{
		"off":       txn.PublishOff,
		"":          txn.PublishOff,
		"sync":      txn.PublishSync,
		"async":     txn.PublishAsync,
		"coalesced": txn.PublishCoalesced,
	}
	for raw, want := range cases {
		flagPublish = raw
		mode, err := publishMode()
		require.NoError(t, err, raw)
		assert.Equal(t, want, mode, raw)
	}

	flagPublish = "bogus"
	_, err := publishMode()
	assert.Error(t, err)
	flagPublish = "off"
}
