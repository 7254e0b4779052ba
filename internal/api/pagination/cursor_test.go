package pagination

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	timestamp := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)

	cursor := Encode(timestamp, "  01hyx3kqw7ertv9xnbm2p8qjzf ")

	decoded, err := Decode(cursor)

	require.NoError(t, err)
	require.Equal(t, timestamp, decoded.Timestamp)
	require.Equal(t, "01HYX3KQW7ERTV9XNBM2P8QJZF", decoded.ID)
}

func TestDecodeCursorErrors(t *testing.T) {
	_, err := Decode("")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = Decode("not-base64!")
	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = Decode("bm90LWFfdmFsaWRfZm9ybWF0")
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestParsePage(t *testing.T) {
	page, err := ParsePage(url.Values{})
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, page.Limit)
	require.Empty(t, page.After)

	cursor := Encode(time.Unix(100, 0), "01HYX3KQW7ERTV9XNBM2P8QJZF")
	page, err = ParsePage(url.Values{"limit": {"10"}, "after": {cursor}})
	require.NoError(t, err)
	require.Equal(t, 10, page.Limit)
	require.Equal(t, cursor, page.After)

	ts, id, err := Keyset(page.After)
	require.NoError(t, err)
	require.Equal(t, time.Unix(100, 0).UTC(), *ts)
	require.Equal(t, "01HYX3KQW7ERTV9XNBM2P8QJZF", *id)

	ts, id, err = Keyset("")
	require.NoError(t, err)
	require.Nil(t, ts)
	require.Nil(t, id)

	_, err = ParsePage(url.Values{"limit": {"0"}})
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = ParsePage(url.Values{"limit": {"abc"}})
	require.ErrorIs(t, err, ErrInvalidLimit)

	_, err = ParsePage(url.Values{"after": {"garbage"}})
	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestTrim(t *testing.T) {
	type row struct {
		at time.Time
		id string
	}
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rows := []row{{base, "A"}, {base.Add(time.Second), "B"}, {base.Add(2 * time.Second), "C"}}
	key := func(r row) (time.Time, string) { return r.at, r.id }

	out, next := Trim(rows, 2, key)
	require.Len(t, out, 2)
	require.Equal(t, Encode(base.Add(time.Second), "B"), next)

	out, next = Trim(rows, 3, key)
	require.Len(t, out, 3)
	require.Empty(t, next)
}
