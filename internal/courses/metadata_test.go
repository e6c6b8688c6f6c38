package courses

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCourseMetadataRoundTrip(t *testing.T) {
	meta := &CourseMetadata{
		Author:        "Ada",
		Title:         "Intro to Ledgers",
		Description:   "From genesis to finality",
		ContentPoints: []string{"blocks", "consensus", "finality"},
		Topics:        []string{"blockchain", "distributed systems"},
		Duration:      "6h",
	}

	data, err := meta.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCourseMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, meta, decoded)
}

func TestDecodeCourseMetadataRejectsGarbage(t *testing.T) {
	_, err := DecodeCourseMetadata([]byte("{not json"))
	require.Error(t, err)
}

func TestDecodeCourseMetadataTolerantOfMissingFields(t *testing.T) {
	meta, err := DecodeCourseMetadata([]byte(`{"title":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "x", meta.Title)
	assert.Empty(t, meta.Topics)
}
