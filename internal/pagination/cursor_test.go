package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type item struct {
	seq int64
	at  time.Time
}

func seqOf(i item) int64      { return i.seq }
func timeOf(i item) time.Time { return i.at }

func items(n int) []item {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := make([]item, n)
	for i := range out {
		out[i] = item{seq: int64(i + 1), at: base.Add(time.Duration(i) * time.Second)}
	}
	return out
}

func TestCursor_RoundTrip(t *testing.T) {
	at := time.Date(2026, 5, 6, 7, 8, 9, 123, time.UTC)
	c, err := DecodeCursor(EncodeCursor(42, at))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int64(42), c.Seq)
	assert.True(t, at.Equal(c.Timestamp))
}

func TestDecodeCursor_Empty(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, in := range []string{"%%%", "bm8tc2VwYXJhdG9y", "YWJjfDIwMjYtMDEtMDFUMDA6MDA6MDBa", "NXxub3QtYS10aW1l"} {
		_, err := DecodeCursor(in)
		assert.ErrorIs(t, err, ErrInvalidCursor, in)
	}
}

func TestPaginate_WalksAllPages(t *testing.T) {
	all := items(5)

	first := Paginate(all, nil, 2, seqOf, timeOf)
	require.Len(t, first.Items, 2)
	assert.True(t, first.HasMore)
	assert.NotEmpty(t, first.Cursor)

	c, err := DecodeCursor(first.Cursor)
	require.NoError(t, err)
	second := Paginate(all, c, 2, seqOf, timeOf)
	assert.Equal(t, []int64{3, 4}, []int64{second.Items[0].seq, second.Items[1].seq})

	c, err = DecodeCursor(second.Cursor)
	require.NoError(t, err)
	last := Paginate(all, c, 2, seqOf, timeOf)
	require.Len(t, last.Items, 1)
	assert.False(t, last.HasMore)
	assert.Empty(t, last.Cursor)
}

func TestPaginate_ExactFit(t *testing.T) {
	page := Paginate(items(3), nil, 3, seqOf, timeOf)
	assert.Len(t, page.Items, 3)
	assert.False(t, page.HasMore)
	assert.Empty(t, page.Cursor)
}
