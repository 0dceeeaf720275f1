package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ id string }

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2024-05-01T00:00:00Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
}

func TestDecodeCursorEmptyAndInvalid(t *testing.T) {
	cursor, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)

	_, err = DecodeCursor("!!!")
	assert.ErrorIs(t, err, ErrInvalidPageToken)
}

func TestBuildCursorPageInfo(t *testing.T) {
	data := []*row{{id: "1"}, {id: "2"}, {id: "3"}}
	extract := func(r *row) Cursor { return Cursor{ID: r.id} }

	page, info, err := BuildCursorPageInfo(data, 2, extract)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.True(t, info.HasMore)

	next, err := DecodeCursor(info.NextPageToken)
	require.NoError(t, err)
	assert.Equal(t, "2", next.ID)

	page, info, err = BuildCursorPageInfo(data, 5, extract)
	require.NoError(t, err)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
}

func TestLimit(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Limit())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Limit())
	assert.Equal(t, 10, Pagination{PageSize: 10}.Limit())
}
